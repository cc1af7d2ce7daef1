package busclient

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/virtpad/virtpad/internal/server/auth"
	"github.com/virtpad/virtpad/wire"
)

// Config controls low-level transport behavior such as timeouts.
type Config struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Password     string
}

func defaultConfig() Config {
	return Config{
		DialTimeout:  3 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// frame is any client-originated frame that can be written with an
// assigned sequence number.
type frame interface {
	Write(w io.Writer) error
}

// Transport is the low-level bus control protocol implementation used
// by the higher-level Client. It keeps one persistent connection and
// serializes requests: a single frame is in flight at a time, so each
// response is matched against the sequence number it was sent with. A
// blocked notification request therefore blocks the whole transport;
// callers that want to watch feedback while submitting reports use a
// second client.
type Transport struct {
	addr string
	cfg  Config

	// mu serializes requests; connMu guards the connection pointers so
	// Close can interrupt a blocked read without waiting for mu.
	mu     sync.Mutex
	connMu sync.Mutex
	conn   net.Conn
	br     *bufio.Reader
	seq    uint32
}

// NewTransport creates a new low-level transport.
func NewTransport(addr string) *Transport { return NewTransportWithConfig(addr, nil) }

func NewTransportWithPassword(addr, password string) *Transport {
	cfg := defaultConfig()
	cfg.Password = password
	return NewTransportWithConfig(addr, &cfg)
}

// NewTransportWithConfig creates a new low-level transport with optional timeouts configuration.
func NewTransportWithConfig(addr string, cfg *Config) *Transport {
	c := defaultConfig()
	if cfg != nil {
		c = *cfg
	}
	return &Transport{addr: addr, cfg: c}
}

// Close tears down the persistent connection, unblocking any request
// waiting on it. The transport reconnects on the next request.
func (t *Transport) Close() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.br = nil
	return err
}

// discard drops the connection if it is still the one the failed
// request used.
func (t *Transport) discard(conn net.Conn) {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	conn.Close()
	if t.conn == conn {
		t.conn = nil
		t.br = nil
	}
}

func (t *Transport) connectLocked(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	d := &net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			slog.Warn("failed to set TCP_NODELAY", "error", err)
		}
	}

	if t.cfg.Password != "" {
		key, err := auth.DeriveKey(t.cfg.Password)
		if err != nil {
			conn.Close()
			return err
		}
		if t.cfg.WriteTimeout > 0 {
			_ = conn.SetDeadline(time.Now().Add(t.cfg.WriteTimeout))
		}
		r := bufio.NewReader(conn)
		clientNonce, serverNonce, err := auth.HandleAuthHandshake(r, conn, key, true)
		if err != nil {
			conn.Close()
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return auth.ErrUnauthorized
			}
			return err
		}
		sessionKey := auth.DeriveSessionKey(key, serverNonce, clientNonce)
		conn, err = auth.WrapConn(conn, sessionKey)
		if err != nil {
			conn.Close()
			return err
		}
	}

	t.conn = conn
	t.br = bufio.NewReader(conn)
	return nil
}

// roundTrip sends one frame and waits for its response. build receives
// the assigned sequence number. blocking requests (parked notification
// waits) run without a read timeout; they are bounded only by ctx.
func (t *Transport) roundTrip(ctx context.Context, blocking bool, build func(seq uint32) frame) (*wire.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.connMu.Lock()
	if err := t.connectLocked(ctx); err != nil {
		t.connMu.Unlock()
		return nil, err
	}
	conn := t.conn
	br := t.br
	t.connMu.Unlock()

	t.seq++
	seq := t.seq

	// Cancellation unblocks the pending read by poisoning the deadline;
	// the connection is then discarded so a late response can never be
	// matched against a future request.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if t.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	if err := build(seq).Write(conn); err != nil {
		t.discard(conn)
		return nil, fmt.Errorf("write: %w", err)
	}

	if !blocking && t.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}

	var resp wire.Response
	if err := resp.Read(br); err != nil {
		t.discard(conn)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("read: %w", err)
	}
	if resp.Seq != seq {
		t.discard(conn)
		return nil, fmt.Errorf("response sequence mismatch: got %d, want %d", resp.Seq, seq)
	}
	return &resp, nil
}

// Dispatch submits one operation and returns its terminal response.
func (t *Transport) Dispatch(ctx context.Context, op wire.OpCode, input []byte, outputCap uint32, blocking bool) (*wire.Response, error) {
	return t.roundTrip(ctx, blocking, func(seq uint32) frame {
		return &wire.DispatchFrame{Seq: seq, Op: op, OutputCap: outputCap, Input: input}
	})
}

// PushFeedback sends device feedback toward a target.
func (t *Transport) PushFeedback(ctx context.Context, typ wire.TargetType, serial uint32, payload []byte) (*wire.Response, error) {
	return t.roundTrip(ctx, false, func(seq uint32) frame {
		return &wire.FeedbackFrame{Seq: seq, TargetType: typ, SerialNo: serial, Payload: payload}
	})
}
