package sftp

import (
	"net"
	"time"
)

// idleConn pushes the connection deadline forward on every read and write,
// so a connection is only closed after timeout without any traffic.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func newIdleConn(conn net.Conn, timeout time.Duration) *idleConn {
	c := &idleConn{Conn: conn, timeout: timeout}
	c.extend()
	return c
}

func (c *idleConn) Read(b []byte) (int, error) {
	c.extend()
	return c.Conn.Read(b)
}

func (c *idleConn) Write(b []byte) (int, error) {
	c.extend()
	return c.Conn.Write(b)
}

func (c *idleConn) extend() {
	_ = c.Conn.SetDeadline(time.Now().Add(c.timeout))
}
