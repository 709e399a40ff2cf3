package remote

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/prismplay/internal/certs"
	"github.com/zsiec/prismplay/internal/player"
)

// Client sends control requests to a remote player over one stream.
type Client struct {
	conn quic.Connection

	mu  sync.Mutex
	str quic.Stream
	br  *bufio.Reader
}

// Dial connects to the control endpoint at addr, accepting only the
// certificate with the given fingerprint.
func Dial(ctx context.Context, addr string, fingerprint [32]byte) (*Client, error) {
	tlsConfig := certs.PinnedClientConfig(fingerprint, ALPN)
	conn, err := quic.DialAddr(ctx, addr, tlsConfig, &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("remote: dial %s: %w", addr, err)
	}
	str, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, fmt.Errorf("remote: open stream: %w", err)
	}
	return &Client{conn: conn, str: str, br: bufio.NewReader(str)}, nil
}

// Close ends the control connection.
func (c *Client) Close() error {
	c.str.Close()
	return c.conn.CloseWithError(0, "")
}

// TogglePause pauses or resumes the remote player.
func (c *Client) TogglePause(ctx context.Context) error {
	_, err := c.command(ctx, MsgPause, nil)
	return err
}

// Step advances the remote player by one video frame.
func (c *Client) Step(ctx context.Context) error {
	_, err := c.command(ctx, MsgStep, nil)
	return err
}

// Quit stops the remote player.
func (c *Client) Quit(ctx context.Context) error {
	_, err := c.command(ctx, MsgQuit, nil)
	return err
}

// Seek asks the remote player to reposition. It reports false when the
// player dropped the request because another seek was pending.
func (c *Client) Seek(ctx context.Context, req Seek) (bool, error) {
	ok, err := c.command(ctx, MsgSeek, SerializeSeek(req))
	return ok.Accepted, err
}

// Status fetches a snapshot of the remote session.
func (c *Client) Status(ctx context.Context) (player.Status, error) {
	replyType, payload, err := c.roundTrip(ctx, MsgStatus, nil)
	if err != nil {
		return player.Status{}, err
	}
	if replyType != MsgStatusReply {
		return player.Status{}, replyError(replyType, payload)
	}
	return ParseStatus(payload)
}

func (c *Client) command(ctx context.Context, msgType uint64, payload []byte) (OK, error) {
	replyType, reply, err := c.roundTrip(ctx, msgType, payload)
	if err != nil {
		return OK{}, err
	}
	if replyType != MsgOK {
		return OK{}, replyError(replyType, reply)
	}
	return ParseOK(reply)
}

func (c *Client) roundTrip(ctx context.Context, msgType uint64, payload []byte) (uint64, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, _ := ctx.Deadline()
	c.str.SetDeadline(deadline)

	if err := WriteMsg(c.str, msgType, payload); err != nil {
		return 0, nil, fmt.Errorf("remote: send: %w", err)
	}
	replyType, reply, err := ReadMsg(c.br)
	if err != nil {
		return 0, nil, fmt.Errorf("remote: receive: %w", err)
	}
	return replyType, reply, nil
}

func replyError(replyType uint64, payload []byte) error {
	if replyType != MsgError {
		return fmt.Errorf("%w: %#x", ErrUnexpectedReply, replyType)
	}
	rerr, err := ParseErrorReply(payload)
	if err != nil {
		return err
	}
	return rerr
}
