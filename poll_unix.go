//go:build linux || darwin || freebsd || netbsd || openbsd

package conduit

import (
	"io"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// pollSlice bounds a single poll so that a concurrent Close, which waits for
// in-flight descriptor use, is never held up for long.
const pollSlice = 50 * time.Millisecond

// pollReadable reports whether the descriptor behind rc is readable (or, for
// a listener, has a pending connection). A negative timeout blocks until it
// is; zero polls without blocking. Waiting ends early, reporting false, once
// stopped returns true.
func pollReadable(rc syscall.RawConn, timeout time.Duration, stopped func() bool) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		wait := pollSlice
		switch {
		case timeout == 0:
			wait = 0
		case timeout > 0:
			if remaining := time.Until(deadline); remaining < wait {
				wait = remaining
			}
			if wait < 0 {
				wait = 0
			}
		}

		ready, err := pollOnce(rc, wait)
		if err != nil || ready {
			return ready, err
		}
		if timeout == 0 || (timeout > 0 && !time.Now().Before(deadline)) {
			return false, nil
		}
		if stopped != nil && stopped() {
			return false, nil
		}
	}
}

// pollOnce runs a single poll(2) for POLLIN, rounding wait up to whole
// milliseconds.
func pollOnce(rc syscall.RawConn, wait time.Duration) (bool, error) {
	ms := int((wait + time.Millisecond - 1) / time.Millisecond)

	var (
		ready bool
		opErr error
	)
	err := rc.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		for {
			n, err := unix.Poll(fds, ms)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				opErr = err
				return
			}
			ready = n > 0 && fds[0].Revents != 0
			return
		}
	})
	if err != nil {
		return false, err
	}
	if opErr != nil {
		return false, errors.Wrap(opErr, "poll")
	}
	return ready, nil
}

// readNow performs one read without waiting. It returns 0 and no error when
// nothing is available, and io.EOF once the peer has closed.
func readNow(rc syscall.RawConn, p []byte) (int, error) {
	var (
		n     int
		opErr error
	)
	err := rc.Read(func(fd uintptr) bool {
		n, opErr = unix.Read(int(fd), p)
		return true
	})
	if err != nil {
		return 0, err
	}
	switch {
	case opErr == unix.EAGAIN || opErr == unix.EWOULDBLOCK || opErr == unix.EINTR:
		return 0, nil
	case opErr != nil:
		return 0, opErr
	case n == 0 && len(p) > 0:
		return 0, io.EOF
	}
	return n, nil
}

// writeNow performs one write without waiting. It returns 0 and no error when
// the socket send buffer is full.
func writeNow(rc syscall.RawConn, p []byte) (int, error) {
	var (
		n     int
		opErr error
	)
	err := rc.Write(func(fd uintptr) bool {
		n, opErr = unix.Write(int(fd), p)
		return true
	})
	if err != nil {
		return 0, err
	}
	switch {
	case opErr == unix.EAGAIN || opErr == unix.EWOULDBLOCK || opErr == unix.EINTR:
		return 0, nil
	case opErr != nil:
		return 0, opErr
	}
	return n, nil
}
