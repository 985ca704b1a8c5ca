package sftp

import (
	"encoding/binary"
	"io"
	"sync"
)

// SFTP packet types inspected or produced by Channel.
const (
	packetOpen   = 3
	packetStatus = 101
)

// maxPacketLength mirrors the inbound limit of pkg/sftp. Longer packets are
// passed through untouched and pkg/sftp rejects them.
const maxPacketLength = 256 * 1024

// dispatchedFlags are the open bits pkg/sftp routes to a handler.
const dispatchedFlags = FlagRead | FlagWrite | FlagAppend | FlagCreat | FlagTrunc

// Channel sits between the SSH channel and pkg/sftp's RequestServer.
//
// OPEN requests whose flags have none of the dispatched bits are answered
// here through the session, so they are logged and refused like every other
// undecodable flag value instead of failing inside pkg/sftp.
//
// Outbound writes are regrouped into whole packets, so a status injected by
// the read side never lands between the header and payload of a response.
type Channel struct {
	rw      io.ReadWriteCloser
	session *Session

	// in holds the unread remainder of the last forwarded packet.
	in []byte

	// passthrough is set once an oversized packet was seen; framing is
	// lost after that.
	passthrough bool

	wmu     sync.Mutex
	pending []byte
}

// NewChannel wraps rw for a RequestServer serving session.
func NewChannel(rw io.ReadWriteCloser, session *Session) *Channel {
	return &Channel{rw: rw, session: session}
}

// Read returns the inbound byte stream minus the OPEN packets answered here.
func (c *Channel) Read(p []byte) (int, error) {
	for len(c.in) == 0 {
		if c.passthrough {
			return c.rw.Read(p)
		}
		if err := c.nextPacket(); err != nil {
			return 0, err
		}
	}

	n := copy(p, c.in)
	c.in = c.in[n:]
	return n, nil
}

// nextPacket reads one packet and either queues it for Read or answers it.
func (c *Channel) nextPacket() error {
	var header [4]byte
	if _, err := io.ReadFull(c.rw, header[:]); err != nil {
		return err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > maxPacketLength {
		c.passthrough = true
		c.in = header[:]
		return nil
	}

	packet := make([]byte, 4+length)
	copy(packet, header[:])
	if _, err := io.ReadFull(c.rw, packet[4:]); err != nil {
		return err
	}

	if id, path, flags, ok := parseOpen(packet[4:]); ok && flags&dispatchedFlags == 0 {
		status := c.session.openUndispatched(path, flags)
		_, err := c.Write(marshalStatus(id, status))
		return err
	}

	c.in = packet
	return nil
}

// Write forwards whole packets to the channel.
func (c *Channel) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.pending = append(c.pending, p...)
	for len(c.pending) >= 4 {
		size := 4 + int(binary.BigEndian.Uint32(c.pending))
		if len(c.pending) < size {
			break
		}
		if _, err := c.rw.Write(c.pending[:size]); err != nil {
			return 0, err
		}
		c.pending = append(c.pending[:0], c.pending[size:]...)
	}
	return len(p), nil
}

// Close closes the underlying channel.
func (c *Channel) Close() error {
	return c.rw.Close()
}

// parseOpen decodes id, filename and pflags from an OPEN packet body
// (type byte onwards).
func parseOpen(body []byte) (id uint32, path string, flags uint32, ok bool) {
	if len(body) < 1+4+4 || body[0] != packetOpen {
		return 0, "", 0, false
	}
	id = binary.BigEndian.Uint32(body[1:])
	rest := body[5:]

	nameLen := binary.BigEndian.Uint32(rest)
	rest = rest[4:]
	if uint64(len(rest)) < uint64(nameLen)+4 {
		return 0, "", 0, false
	}
	path = string(rest[:nameLen])
	flags = binary.BigEndian.Uint32(rest[nameLen:])
	return id, path, flags, true
}

// marshalStatus builds an SSH_FXP_STATUS packet, length prefix included.
func marshalStatus(id uint32, code StatusCode) []byte {
	msg := code.String()
	const lang = "en"

	body := make([]byte, 0, 1+4+4+4+len(msg)+4+len(lang))
	body = append(body, packetStatus)
	body = binary.BigEndian.AppendUint32(body, id)
	body = binary.BigEndian.AppendUint32(body, uint32(code))
	body = binary.BigEndian.AppendUint32(body, uint32(len(msg)))
	body = append(body, msg...)
	body = binary.BigEndian.AppendUint32(body, uint32(len(lang)))
	body = append(body, lang...)

	packet := binary.BigEndian.AppendUint32(make([]byte, 0, 4+len(body)), uint32(len(body)))
	return append(packet, body...)
}
