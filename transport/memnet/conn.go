package memnet

import (
	"slices"

	"github.com/jd-code76/provinent-scripture-study-sub000/transport"
)

// conn is one side of an in-process connection.
type conn struct {
	*transport.Mailbox
	ep     *endpoint
	remote string
	peer   *conn
}

func newConn(ep *endpoint, remote string) *conn {
	return &conn{Mailbox: transport.NewMailbox(), ep: ep, remote: remote}
}

func (c *conn) RemoteID() string {
	return c.remote
}

func (c *conn) Send(data []byte) error {
	if c.Closed() || !c.peer.Data(slices.Clone(data)) {
		return transport.ErrClosed
	}
	return nil
}

func (c *conn) Close() error {
	c.shutdown()
	c.peer.shutdown()
	return nil
}

func (c *conn) shutdown() {
	if c.Mailbox.Close() {
		c.ep.untrack(c)
	}
}
