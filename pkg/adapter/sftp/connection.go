package sftp

import (
	"context"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	gosftp "github.com/pkg/sftp"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/ssh"

	"github.com/marmos91/dittosftp/internal/logger"
	protocol "github.com/marmos91/dittosftp/internal/protocol/sftp"
	"github.com/marmos91/dittosftp/internal/telemetry"
)

// subsystemSFTP is the only subsystem served.
const subsystemSFTP = "sftp"

// SFTPConnection handles one TCP connection: the SSH handshake followed by
// any number of session channels, each of which may start the sftp
// subsystem.
type SFTPConnection struct {
	adapter *SFTPAdapter
	conn    net.Conn
}

// Serve runs the SSH server side of the connection until the client
// disconnects, the idle timeout fires or ctx is cancelled.
func (c *SFTPConnection) Serve(ctx context.Context) {
	defer c.handleConnectionClose()

	clientAddr := c.conn.RemoteAddr().String()

	var netConn net.Conn = c.conn
	if c.adapter.config.IdleTimeout > 0 {
		netConn = newIdleConn(c.conn, c.adapter.config.IdleTimeout)
	}

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, c.adapter.sshConfig)
	if err != nil {
		// Authentication failures were already logged by the callbacks.
		logger.Debug("SSH handshake failed", "address", clientAddr, "error", err)
		return
	}
	defer func() { _ = sshConn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = sshConn.Close() })
	defer stop()

	go ssh.DiscardRequests(reqs)

	var wg sync.WaitGroup
	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			logger.Debug("Rejected channel", "address", clientAddr, "type", newChannel.ChannelType())
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			logger.Debug("Failed to accept channel", "address", clientAddr, "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			c.serveChannel(ctx, sshConn, channel, requests)
		}()
	}

	wg.Wait()
	logTermination("SSH connection ended", clientAddr, sshConn.Wait())
}

// serveChannel waits for a subsystem request on a session channel. Every
// other request type (pty, shell, exec, env) is refused.
func (c *SFTPConnection) serveChannel(ctx context.Context, sshConn *ssh.ServerConn, channel ssh.Channel, requests <-chan *ssh.Request) {
	defer func() { _ = channel.Close() }()

	for req := range requests {
		ok := req.Type == "subsystem" && subsystemName(req.Payload) == subsystemSFTP
		if req.WantReply {
			_ = req.Reply(ok, nil)
		}
		if !ok {
			logger.Debug("Refused channel request", "address", sshConn.RemoteAddr().String(), "type", req.Type)
			continue
		}

		go ssh.DiscardRequests(requests)
		c.serveSFTP(ctx, sshConn, channel)
		return
	}
}

// serveSFTP runs a pkg/sftp RequestServer backed by a fresh protocol
// Session until the channel closes.
func (c *SFTPConnection) serveSFTP(ctx context.Context, sshConn *ssh.ServerConn, channel ssh.Channel) {
	ext := sshConn.Permissions.Extensions
	clientIP := hostOf(sshConn.RemoteAddr())

	ctx = logger.WithContext(ctx, logger.NewLogContext(clientIP))
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSSHSession,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			telemetry.ClientIP(clientIP),
			telemetry.Username(sshConn.User()),
			telemetry.ServerID(ext[extServerID]),
			telemetry.RequestID(ext[extRequestID]),
		))
	defer span.End()

	session := protocol.NewSession(ctx, protocol.Config{
		RequestID: ext[extRequestID],
		ServerID:  ext[extServerID],
		Token:     ext[extToken],
		Username:  sshConn.User(),
		ClientIP:  clientIP,
		ReadOnly:  c.adapter.config.ReadOnly,
		Lookup:    c.adapter.lookupTenant,
		Metrics:   c.adapter.metrics,
	})

	c.adapter.sessionStarted()
	defer c.adapter.sessionEnded()

	server := gosftp.NewRequestServer(protocol.NewChannel(channel, session), session.Handlers())
	start := time.Now()
	err := server.Serve()

	_ = server.Close()
	session.Close()

	if err != nil && !isNormalTermination(err) {
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "SFTP session ended with error", "error", err, "duration", time.Since(start))
		return
	}
	logger.DebugCtx(ctx, "SFTP session ended", "duration", time.Since(start))
}

func (c *SFTPConnection) handleConnectionClose() {
	if r := recover(); r != nil {
		logger.Error("Panic in connection handler",
			"address", c.conn.RemoteAddr().String(),
			"error", r,
			"stack", string(debug.Stack()))
	}
	_ = c.conn.Close()
}

// subsystemName decodes the payload of a "subsystem" channel request.
func subsystemName(payload []byte) string {
	var msg struct {
		Name string
	}
	if err := ssh.Unmarshal(payload, &msg); err != nil {
		return ""
	}
	return msg.Name
}

// isNormalTermination reports errors that just mean the peer went away or
// the connection timed out.
func isNormalTermination(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func logTermination(msg, addr string, err error) {
	if isNormalTermination(err) {
		logger.Debug(msg, "address", addr, "error", err)
		return
	}
	logger.Warn(msg, "address", addr, "error", err)
}
