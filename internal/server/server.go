// Package server exposes the bus over a framed TCP control protocol.
// Each connection may pipeline dispatch and feedback frames; responses
// carry the originating sequence number, and responses to parked
// notification requests arrive whenever feedback (or unplug) completes
// them.
package server

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/virtpad/virtpad/bus"
	"github.com/virtpad/virtpad/internal/log"
	"github.com/virtpad/virtpad/internal/server/auth"
	"github.com/virtpad/virtpad/target"
	"github.com/virtpad/virtpad/wire"
)

type Server struct {
	config     *Config
	logger     *slog.Logger
	rawLogger  log.RawLogger
	registry   *bus.Registry
	dispatcher *bus.Dispatcher
	authKey    []byte
	ready      chan struct{}
	readyOnce  sync.Once
	ln         net.Listener
}

func New(config Config, registry *bus.Registry, logger *slog.Logger, rawLogger log.RawLogger) (*Server, error) {
	var key []byte
	if config.Password != "" {
		k, err := auth.DeriveKey(config.Password)
		if err != nil {
			return nil, err
		}
		key = k
	}
	return &Server{
		config:     &config,
		logger:     logger,
		rawLogger:  rawLogger,
		registry:   registry,
		dispatcher: bus.NewDispatcher(registry, logger),
		authKey:    key,
		ready:      make(chan struct{}),
	}, nil
}

// Registry returns the registry this server dispatches against.
func (s *Server) Registry() *bus.Registry { return s.registry }

// ListenAndServe starts the control server and handles incoming connections.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("bus control server listening", "addr", s.config.Addr)
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || strings.Contains(strings.ToLower(err.Error()), "use of closed network connection") {
				s.logger.Info("bus control server stopped")
				return nil
			}
			s.logger.Error("Accept error", "error", err)
			continue
		}
		s.logger.Info("Client connected", "remote", c.RemoteAddr())
		go func() {
			if err := s.handleConn(c); err != nil {
				if isClientDisconnect(err) {
					s.logger.Info("Client disconnected", "error", err)
				} else {
					s.logger.Error("Connection handler error", "error", err)
				}
			}
		}()
	}
}

// Ready returns a channel that is closed once the server has successfully bound
// to its listen address and is ready to accept connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Close stops the control server by closing its listener.
func (s *Server) Close() error {
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// Addr returns the bound listen address, or the configured one before
// ListenAndServe.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.config.Addr
}

// GetListenPort extracts and returns the port number from the server's listen address.
func (s *Server) GetListenPort() uint16 {
	_, portStr, err := net.SplitHostPort(s.Addr())
	if err != nil {
		return 0
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(port)
}

// --

// conn wraps one client connection with the state needed for pipelined
// responses: a write lock serializing response frames and the set of
// parked requests to cancel on disconnect.
type clientConn struct {
	net.Conn
	writeMu  sync.Mutex
	parkedMu sync.Mutex
	parked   map[uint32]*target.Pending
}

func (c *clientConn) writeResponse(resp *wire.Response) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return resp.Write(c)
}

// park records a pending request under its sequence number. A sequence
// that is already parked is refused; accepting it would displace the
// earlier handle from the cancel-on-disconnect set and leak its target
// slot.
func (c *clientConn) park(seq uint32, p *target.Pending) bool {
	c.parkedMu.Lock()
	defer c.parkedMu.Unlock()
	if _, ok := c.parked[seq]; ok {
		return false
	}
	c.parked[seq] = p
	return true
}

func (c *clientConn) unpark(seq uint32) {
	c.parkedMu.Lock()
	delete(c.parked, seq)
	c.parkedMu.Unlock()
}

// cancelParked aborts every request still parked on behalf of this
// connection. Cancellation frees the target slots; losers of the race
// against a concurrent feedback delivery are no-ops.
func (c *clientConn) cancelParked() {
	c.parkedMu.Lock()
	pending := make([]*target.Pending, 0, len(c.parked))
	for _, p := range c.parked {
		pending = append(pending, p)
	}
	c.parked = make(map[uint32]*target.Pending)
	c.parkedMu.Unlock()
	for _, p := range pending {
		p.Cancel()
	}
}

func (s *Server) handleConn(raw net.Conn) error {
	defer raw.Close()
	var conn net.Conn = &logConn{Conn: raw, s: s}
	if err := conn.SetDeadline(time.Now().Add(s.connectionTimeout())); err != nil {
		s.logger.Warn("Failed to set deadline", "error", err)
	}

	br := bufio.NewReader(conn)
	if s.authKey != nil {
		ok, err := auth.IsAuthHandshake(br)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("client did not authenticate")
		}
		clientNonce, serverNonce, err := auth.HandleAuthHandshake(br, conn, s.authKey, false)
		if err != nil {
			return err
		}
		session := auth.DeriveSessionKey(s.authKey, serverNonce, clientNonce)
		wrapped, err := auth.WrapConn(conn, session)
		if err != nil {
			return err
		}
		conn = wrapped
		br = bufio.NewReader(conn)
	}

	// Notification requests park for arbitrarily long; the timeout only
	// covers the connection setup phase.
	_ = conn.SetDeadline(time.Time{})

	cc := &clientConn{Conn: conn, parked: make(map[uint32]*target.Pending)}
	defer cc.cancelParked()

	for {
		ft, err := wire.ReadFrameType(br)
		if err != nil {
			return err
		}
		switch ft {
		case wire.FrameDispatch:
			var f wire.DispatchFrame
			if err := f.Read(br); err != nil {
				return err
			}
			if err := s.handleDispatch(cc, &f); err != nil {
				return err
			}
		case wire.FrameFeedback:
			var f wire.FeedbackFrame
			if err := f.Read(br); err != nil {
				return err
			}
			if err := s.handleFeedback(cc, &f); err != nil {
				return err
			}
		}
	}
}

func (s *Server) handleDispatch(cc *clientConn, f *wire.DispatchFrame) error {
	res, pending := s.dispatcher.Dispatch(f.Op, f.Input, int(f.OutputCap))
	if pending == nil {
		return cc.writeResponse(&wire.Response{Seq: f.Seq, Status: res.Status, Output: res.Output})
	}

	if !cc.park(f.Seq, pending) {
		pending.Cancel()
		s.logger.Warn("sequence number already parked", "op", f.Op.String(), "seq", f.Seq)
		return cc.writeResponse(&wire.Response{Seq: f.Seq, Status: wire.StatusInvalidParameter})
	}
	s.logger.Debug("notification request parked", "op", f.Op.String(), "seq", f.Seq)
	go func(seq uint32, p *target.Pending) {
		<-p.Done()
		cc.unpark(seq)
		r := p.Result()
		if err := cc.writeResponse(&wire.Response{Seq: seq, Status: r.Status, Output: r.Output}); err != nil {
			s.logger.Debug("write parked response", "seq", seq, "error", err)
		}
	}(f.Seq, pending)
	return nil
}

func (s *Server) handleFeedback(cc *clientConn, f *wire.FeedbackFrame) error {
	st := wire.StatusSuccess
	switch {
	case f.SerialNo == 0:
		st = wire.StatusInvalidParameter
	default:
		t, ok := s.registry.Lookup(f.TargetType, f.SerialNo)
		if !ok {
			st = wire.StatusDeviceDoesNotExist
		} else {
			st = t.PushFeedback(f.Payload)
		}
	}
	return cc.writeResponse(&wire.Response{Seq: f.Seq, Status: st})
}

func (s *Server) connectionTimeout() time.Duration {
	if s.config.ConnectionTimeout > 0 {
		return s.config.ConnectionTimeout
	}
	return 10 * time.Second
}

type logConn struct {
	net.Conn
	s *Server
}

func (lc *logConn) Read(p []byte) (int, error) {
	n, err := lc.Conn.Read(p)
	if n > 0 && lc.s.rawLogger != nil {
		lc.s.rawLogger.Log(true, p[:n])
	}
	return n, err
}

func (lc *logConn) Write(p []byte) (int, error) {
	n, err := lc.Conn.Write(p)
	if n > 0 && lc.s.rawLogger != nil {
		lc.s.rawLogger.Log(false, p[:n])
	}
	return n, err
}

// isClientDisconnect tests whether an error represents a normal client
// disconnect (EOF, ECONNRESET, broken pipe, or the Windows WSAECONNRESET
// translated error). We treat those as normal client disconnects and log
// them at Info level instead of Error.
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		// On many platforms the underlying error will be a syscall.Errno
		switch t := opErr.Err.(type) {
		case syscall.Errno:
			if t == syscall.ECONNRESET || t == syscall.EPIPE {
				return true
			}
		}
	}
	// Fallback to checking the message for platform-specific strings.
	e := strings.ToLower(err.Error())
	if strings.Contains(e, "connection reset by peer") || strings.Contains(e, "forcibly closed") || strings.Contains(e, "an existing connection was forcibly closed") || strings.Contains(e, "aborted") {
		return true
	}
	return false
}
