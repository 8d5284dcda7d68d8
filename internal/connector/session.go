// Package connector manages persistent links to external creative tools.
//
// A Session owns one websocket to a tool's bridge listener. It launches the
// tool when no listener answers, keeps exactly one command in flight, and
// tracks DISCONNECTED -> CONNECTING -> CONNECTED -> (ERROR | DISCONNECTED).
package connector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/miktos/bridge/internal/common/errors"
	"github.com/miktos/bridge/internal/common/logger"
	v1 "github.com/miktos/bridge/pkg/api/v1"
	"github.com/miktos/bridge/pkg/connector/protocol"
)

const inboundBuffer = 16

// Config holds the timing of a session.
type Config struct {
	// DisplayName is used in user-facing error messages, e.g. "Blender".
	DisplayName       string
	ProbeTimeout      time.Duration
	SettleDelay       time.Duration
	PollInterval      time.Duration
	ConnectionTimeout time.Duration
	CommandTimeout    time.Duration
}

// DefaultConfig returns the standard timings.
func DefaultConfig(displayName string) Config {
	return Config{
		DisplayName:       displayName,
		ProbeTimeout:      2 * time.Second,
		SettleDelay:       5 * time.Second,
		PollInterval:      time.Second,
		ConnectionTimeout: 30 * time.Second,
		CommandTimeout:    10 * time.Second,
	}
}

// StateListener is called after every state change.
type StateListener func(status v1.ConnectorStatus)

// Session is the generic connection protocol to one external tool.
type Session struct {
	name     string
	cfg      Config
	dialer   Dialer
	launcher Launcher
	logger   *logger.Logger

	mu        sync.Mutex
	state     v1.ConnectorState
	lastError string
	conn      Conn
	inbound   chan *protocol.Response
	done      chan struct{}
	process   Process
	listeners []StateListener
	closed    bool
	// cancelConnect aborts the Connect in progress, if any.
	cancelConnect context.CancelFunc

	connectMu sync.Mutex // one connect attempt at a time
	sendMu    sync.Mutex // one outstanding command at a time
}

// NewSession creates a disconnected session. launcher may be nil, in which
// case Connect only succeeds against an already running listener.
func NewSession(name string, cfg Config, dialer Dialer, launcher Launcher, log *logger.Logger) *Session {
	if cfg.DisplayName == "" {
		cfg.DisplayName = name
	}
	return &Session{
		name:     name,
		cfg:      cfg,
		dialer:   dialer,
		launcher: launcher,
		logger:   log.WithConnector(name),
		state:    v1.ConnectorStateDisconnected,
	}
}

// Name returns the connector name.
func (s *Session) Name() string {
	return s.name
}

// OnStateChange registers a listener for state changes.
func (s *Session) OnStateChange(l StateListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Status returns the cached status without touching the network.
func (s *Session) Status() v1.ConnectorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() v1.ConnectorStatus {
	return v1.ConnectorStatus{
		Name:      s.name,
		State:     s.state,
		Connected: s.state == v1.ConnectorStateConnected && s.conn != nil,
		LastError: s.lastError,
	}
}

// Connect establishes the persistent session, launching the tool if no
// listener answers the initial probe. The whole attempt is bounded by
// ConnectionTimeout. On failure the state is ERROR and the returned error
// is connector-unavailable. A Connect aborted by Close leaves the session
// DISCONNECTED.
func (s *Session) Connect(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectionTimeout)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.closedError()
	}
	if s.state == v1.ConnectorStateConnected && s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.cancelConnect = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancelConnect = nil
		s.mu.Unlock()
	}()

	s.setState(v1.ConnectorStateConnecting, "")
	s.logger.Info("connecting to tool listener")

	conn, err := s.probe(ctx)
	if err != nil {
		conn, err = s.launchAndWait(ctx)
	}
	if err == nil && !s.attach(conn) {
		_ = conn.Close()
		err = s.closedError()
	}
	if err != nil {
		if s.isClosed() {
			s.setState(v1.ConnectorStateDisconnected, "")
			s.logger.Info("connect abandoned, session closed")
			return s.closedError()
		}
		s.setState(v1.ConnectorStateError, apperrors.Message(err))
		s.logger.Error("connect failed", zap.Error(err))
		return err
	}

	s.logger.Info("connected to tool listener")
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) closedError() error {
	return apperrors.ConnectorUnavailable(s.cfg.DisplayName+" connector is closed", nil)
}

func (s *Session) launchAndWait(ctx context.Context) (Conn, error) {
	if s.launcher == nil {
		return nil, apperrors.ConnectorUnavailable(s.cfg.DisplayName+" is not running and cannot be launched", nil)
	}

	s.logger.Info("no listener found, launching tool")
	proc, err := s.launcher.Launch(ctx)
	if err != nil {
		return nil, apperrors.ConnectorUnavailable("Failed to start "+s.cfg.DisplayName, err)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Info("session closed during launch, stopping tool", zap.Stringer("process", proc))
		if err := proc.Stop(context.Background()); err != nil {
			s.logger.Warn("failed to stop launched tool", zap.Error(err))
		}
		return nil, s.closedError()
	}
	previous := s.process
	s.process = proc
	s.mu.Unlock()
	if previous != nil {
		s.logger.Warn("replacing previously launched tool", zap.Stringer("process", previous))
		go func() { _ = previous.Stop(context.Background()) }()
	}
	s.logger.Info("tool launched", zap.Stringer("process", proc))

	if !sleepCtx(ctx, s.cfg.SettleDelay) {
		return nil, s.connectTimeout()
	}

	for {
		conn, err := s.probe(ctx)
		if err == nil {
			return conn, nil
		}
		s.logger.Debug("listener not ready", zap.Error(err))
		if !sleepCtx(ctx, s.cfg.PollInterval) {
			return nil, s.connectTimeout()
		}
	}
}

func (s *Session) connectTimeout() error {
	return apperrors.Timeout("Connection timeout - " + s.cfg.DisplayName + " not responding")
}

// probe makes one short connection attempt.
func (s *Session) probe(ctx context.Context) (Conn, error) {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()
	return s.dialer.Dial(probeCtx)
}

// attach makes conn the session connection. It reports false, leaving conn
// untouched, once the session is closed.
func (s *Session) attach(conn Conn) bool {
	inbound := make(chan *protocol.Response, inboundBuffer)
	done := make(chan struct{})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.conn = conn
	s.inbound = inbound
	s.done = done
	s.state = v1.ConnectorStateConnected
	s.lastError = ""
	status, listeners := s.statusLocked(), s.listeners
	s.mu.Unlock()

	go s.readLoop(conn, inbound)
	s.emit(listeners, status)
	return true
}

// readLoop forwards every reply frame to inbound until the connection fails.
func (s *Session) readLoop(conn Conn, inbound chan<- *protocol.Response) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.detach(conn, v1.ConnectorStateDisconnected, "connection closed: "+err.Error()) {
				s.logger.Warn("tool listener connection lost", zap.Error(err))
			}
			return
		}

		resp, err := protocol.ParseResponse(data)
		if err != nil {
			s.logger.Warn("dropping malformed frame", zap.Error(err), zap.ByteString("data", data))
			continue
		}

		select {
		case inbound <- resp:
		default:
			s.logger.Warn("inbound buffer full, dropping reply", zap.String("status", resp.Status))
		}
	}
}

// detach drops conn if it is still the current connection and moves to
// state. It reports whether conn was current.
func (s *Session) detach(conn Conn, state v1.ConnectorState, reason string) bool {
	s.mu.Lock()
	if s.conn == nil || s.conn != conn {
		s.mu.Unlock()
		return false
	}
	s.conn = nil
	close(s.done)
	s.state = state
	s.lastError = reason
	status, listeners := s.statusLocked(), s.listeners
	s.mu.Unlock()

	_ = conn.Close()
	s.emit(listeners, status)
	return true
}

// SendCommand writes one request and waits for the next reply, bounded by
// CommandTimeout. The session stays up after a timeout; a reply that arrives
// late is discarded before the next command is sent.
func (s *Session) SendCommand(ctx context.Context, command string, data map[string]interface{}) (*protocol.Response, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	conn, inbound, done := s.conn, s.inbound, s.done
	s.mu.Unlock()

	if conn == nil {
		return nil, apperrors.ConnectorUnavailable("No WebSocket connection to "+s.cfg.DisplayName, nil)
	}

	s.drainStale(inbound)

	timer := time.NewTimer(s.cfg.CommandTimeout)
	defer timer.Stop()

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.CommandTimeout))
	if err := conn.WriteJSON(protocol.NewRequest(command, data)); err != nil {
		return nil, apperrors.ConnectorUnavailable("Failed to send command to "+s.cfg.DisplayName, err)
	}
	s.logger.Debug("command sent", zap.String("command", command))

	select {
	case resp := <-inbound:
		return resp, nil
	case <-done:
		return nil, apperrors.ConnectorUnavailable("Connection to "+s.cfg.DisplayName+" closed", nil)
	case <-timer.C:
		s.logger.Warn("command timed out",
			zap.String("command", command),
			zap.Duration("timeout", s.cfg.CommandTimeout))
		return nil, apperrors.Timeout("Command timeout - " + s.cfg.DisplayName + " not responding")
	case <-ctx.Done():
		return nil, apperrors.Wrap(ctx.Err(), "command "+command+" abandoned")
	}
}

func (s *Session) drainStale(inbound <-chan *protocol.Response) {
	for {
		select {
		case resp := <-inbound:
			s.logger.Warn("discarding late reply", zap.String("status", resp.Status))
		default:
			return
		}
	}
}

// Call sends a command and converts an error reply into a remote execution error.
func (s *Session) Call(ctx context.Context, command string, data map[string]interface{}) (map[string]interface{}, error) {
	resp, err := s.SendCommand(ctx, command, data)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, apperrors.RemoteExecution(resp.ErrorMessage())
	}
	if resp.Data == nil {
		return map[string]interface{}{}, nil
	}
	return resp.Data, nil
}

// IsConnected checks liveness with a ping round trip. A failed ping demotes
// the session to DISCONNECTED.
func (s *Session) IsConnected(ctx context.Context) bool {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return false
	}

	resp, err := s.SendCommand(ctx, protocol.CommandPing, nil)
	if err == nil && resp.OK() {
		return true
	}

	reason := "ping failed"
	if err != nil {
		reason = "ping failed: " + apperrors.Message(err)
	}
	if s.detach(conn, v1.ConnectorStateDisconnected, reason) {
		s.logger.Warn("liveness check failed", zap.String("reason", reason))
	}
	return false
}

// Disconnect closes the session. A tool process launched by Connect keeps running.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn != nil && s.detach(conn, v1.ConnectorStateDisconnected, "") {
		s.logger.Info("disconnected from tool listener")
	}
}

// Close disconnects and stops any tool process this session launched. A
// Connect still in progress is aborted, and later calls to Connect fail.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.cancelConnect != nil {
		s.cancelConnect()
	}
	s.mu.Unlock()

	s.Disconnect()

	s.mu.Lock()
	proc := s.process
	s.process = nil
	s.mu.Unlock()

	if proc == nil {
		return nil
	}
	s.logger.Info("stopping launched tool", zap.Stringer("process", proc))
	return proc.Stop(ctx)
}

func (s *Session) setState(state v1.ConnectorState, lastError string) {
	s.mu.Lock()
	if s.state == state && s.lastError == lastError {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.lastError = lastError
	status, listeners := s.statusLocked(), s.listeners
	s.mu.Unlock()

	s.emit(listeners, status)
}

func (s *Session) emit(listeners []StateListener, status v1.ConnectorStatus) {
	s.logger.Debug("connector state", zap.String("state", string(status.State)))
	for _, l := range listeners {
		l(status)
	}
}

// sleepCtx waits for d and reports false if ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
