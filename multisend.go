package conduit

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Multisend sends the same message to every conduit in conns. The message is
// serialized once per byte order in use (normally once) and the identical
// buffer is written to each conduit. Nothing is written unless every encoding
// succeeds. Writes to different conduits proceed in parallel; every conduit is
// attempted and the first error is returned. A conduit listed n times
// receives the message n times.
func Multisend(conns []*Conn, msgType uint32, m Serializer) error {
	if len(conns) == 0 {
		return nil
	}

	// Group repeated entries so one goroutine owns each conduit's writes.
	var targets []*Conn
	repeats := make(map[*Conn]int, len(conns))
	encoded := make(map[binary.ByteOrder][]byte, 1)
	for _, c := range conns {
		if repeats[c] == 0 {
			targets = append(targets, c)
		}
		repeats[c]++

		if _, ok := encoded[c.opts.byteOrder]; ok {
			continue
		}
		data, err := encodeMessage(c.opts.byteOrder, msgType, m)
		if err != nil {
			return err
		}
		encoded[c.opts.byteOrder] = data
	}

	var group errgroup.Group
	for _, c := range targets {
		c := c // per-iteration copy (pre-Go 1.22 loop semantics)
		data := encoded[c.opts.byteOrder]
		n := repeats[c]
		group.Go(func() error {
			for i := 0; i < n; i++ {
				if !c.OK() {
					return errors.Wrapf(ErrConnectionClosed, "multisend to %s", c.id)
				}
				if err := c.sendBuffer(data); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return group.Wait()
}
