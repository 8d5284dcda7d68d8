package connector

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/miktos/bridge/internal/common/errors"
	"github.com/miktos/bridge/internal/common/logger"
	v1 "github.com/miktos/bridge/pkg/api/v1"
	"github.com/miktos/bridge/pkg/connector/protocol"
)

// fakeTool is a websocket listener standing in for a tool's bridge addon.
type fakeTool struct {
	srv    *httptest.Server
	handle func(req protocol.Request) (*protocol.Response, time.Duration)

	mu       sync.Mutex
	received []protocol.Request
	conns    []*websocket.Conn
}

func newFakeTool(t *testing.T, handle func(req protocol.Request) (*protocol.Response, time.Duration)) *fakeTool {
	ft := &fakeTool{handle: handle}
	ft.srv = httptest.NewUnstartedServer(http.HandlerFunc(ft.serve))
	t.Cleanup(ft.close)
	return ft
}

func startFakeTool(t *testing.T, handle func(req protocol.Request) (*protocol.Response, time.Duration)) *fakeTool {
	ft := newFakeTool(t, handle)
	ft.srv.Start()
	return ft
}

func echo(req protocol.Request) (*protocol.Response, time.Duration) {
	return &protocol.Response{
		Status: protocol.StatusSuccess,
		Data:   map[string]interface{}{"command": req.Command},
	}, 0
}

func (ft *fakeTool) serve(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ft.mu.Lock()
	ft.conns = append(ft.conns, conn)
	ft.mu.Unlock()

	for {
		var req protocol.Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		ft.mu.Lock()
		ft.received = append(ft.received, req)
		ft.mu.Unlock()

		resp, delay := ft.handle(req)
		if delay > 0 {
			time.Sleep(delay)
		}
		if resp != nil {
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}
}

func (ft *fakeTool) dialer() Dialer {
	return NewWebsocketDialerURL("ws://" + ft.srv.Listener.Addr().String() + "/")
}

func (ft *fakeTool) requests() []protocol.Request {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	out := make([]protocol.Request, len(ft.received))
	copy(out, ft.received)
	return out
}

func (ft *fakeTool) dropConnections() {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for _, c := range ft.conns {
		_ = c.Close()
	}
	ft.conns = nil
}

func (ft *fakeTool) close() {
	ft.dropConnections()
	ft.srv.Close()
}

type fakeLauncher struct {
	err      error
	onLaunch func()
	launched int32
	stopped  int32
}

func (l *fakeLauncher) Launch(ctx context.Context) (Process, error) {
	atomic.AddInt32(&l.launched, 1)
	if l.err != nil {
		return nil, l.err
	}
	if l.onLaunch != nil {
		l.onLaunch()
	}
	return &fakeProcess{l: l}, nil
}

type fakeProcess struct{ l *fakeLauncher }

func (p *fakeProcess) Stop(ctx context.Context) error {
	atomic.AddInt32(&p.l.stopped, 1)
	return nil
}

func (p *fakeProcess) String() string { return "fake" }

func fastConfig() Config {
	return Config{
		DisplayName:       "Blender",
		ProbeTimeout:      100 * time.Millisecond,
		SettleDelay:       10 * time.Millisecond,
		PollInterval:      20 * time.Millisecond,
		ConnectionTimeout: 500 * time.Millisecond,
		CommandTimeout:    200 * time.Millisecond,
	}
}

// closedAddrDialer points at a port nothing listens on.
func closedAddrDialer(t *testing.T) Dialer {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return NewWebsocketDialerURL("ws://" + addr + "/")
}

func connected(t *testing.T, ft *fakeTool) *Session {
	s := NewSession("blender", fastConfig(), ft.dialer(), nil, logger.NewNop())
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestConnectToRunningListener(t *testing.T) {
	ft := startFakeTool(t, echo)
	launcher := &fakeLauncher{}
	s := NewSession("blender", fastConfig(), ft.dialer(), launcher, logger.NewNop())
	defer func() { _ = s.Close(context.Background()) }()

	var states []v1.ConnectorState
	var mu sync.Mutex
	s.OnStateChange(func(st v1.ConnectorStatus) {
		mu.Lock()
		states = append(states, st.State)
		mu.Unlock()
	})

	require.NoError(t, s.Connect(context.Background()))

	status := s.Status()
	assert.Equal(t, v1.ConnectorStateConnected, status.State)
	assert.True(t, status.Connected)
	assert.Empty(t, status.LastError)
	assert.Equal(t, int32(0), atomic.LoadInt32(&launcher.launched))

	mu.Lock()
	assert.Equal(t, []v1.ConnectorState{v1.ConnectorStateConnecting, v1.ConnectorStateConnected}, states)
	mu.Unlock()

	// already connected
	require.NoError(t, s.Connect(context.Background()))
}

func TestConnectUnreachableWithoutLauncher(t *testing.T) {
	s := NewSession("blender", fastConfig(), closedAddrDialer(t), nil, logger.NewNop())

	start := time.Now()
	err := s.Connect(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, apperrors.IsConnectorUnavailable(err))
	assert.Less(t, elapsed, fastConfig().ConnectionTimeout+250*time.Millisecond)

	status := s.Status()
	assert.Equal(t, v1.ConnectorStateError, status.State)
	assert.NotEmpty(t, status.LastError)
}

func TestConnectLaunchFailure(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("exec: \"blender\": executable file not found in $PATH")}
	s := NewSession("blender", fastConfig(), closedAddrDialer(t), launcher, logger.NewNop())

	err := s.Connect(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsConnectorUnavailable(err))
	assert.Equal(t, "Failed to start Blender", apperrors.Message(err))
	assert.Equal(t, v1.ConnectorStateError, s.Status().State)
	assert.Equal(t, int32(1), atomic.LoadInt32(&launcher.launched))
}

func TestConnectTimesOutWhenLaunchedToolNeverListens(t *testing.T) {
	launcher := &fakeLauncher{}
	cfg := fastConfig()
	s := NewSession("blender", cfg, closedAddrDialer(t), launcher, logger.NewNop())

	start := time.Now()
	err := s.Connect(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err))
	assert.Equal(t, "Connection timeout - Blender not responding", apperrors.Message(err))
	assert.GreaterOrEqual(t, elapsed, cfg.ConnectionTimeout-50*time.Millisecond)
	assert.Less(t, elapsed, cfg.ConnectionTimeout+250*time.Millisecond)

	status := s.Status()
	assert.Equal(t, v1.ConnectorStateError, status.State)
	assert.Equal(t, "Connection timeout - Blender not responding", status.LastError)
}

func TestConnectLaunchesAndPolls(t *testing.T) {
	ft := newFakeTool(t, echo)
	launcher := &fakeLauncher{onLaunch: ft.srv.Start}
	s := NewSession("blender", fastConfig(), ft.dialer(), launcher, logger.NewNop())

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, v1.ConnectorStateConnected, s.Status().State)
	assert.Equal(t, int32(1), atomic.LoadInt32(&launcher.launched))

	s.Disconnect()
	assert.Equal(t, int32(0), atomic.LoadInt32(&launcher.stopped), "disconnect leaves the tool running")

	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&launcher.stopped))
}

func TestCloseDuringSettleStopsLaunchedTool(t *testing.T) {
	ft := newFakeTool(t, echo)
	launcher := &fakeLauncher{onLaunch: ft.srv.Start}
	cfg := fastConfig()
	cfg.SettleDelay = 300 * time.Millisecond
	cfg.ConnectionTimeout = 2 * time.Second
	s := NewSession("blender", cfg, ft.dialer(), launcher, logger.NewNop())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Connect(context.Background()) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&launcher.launched) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close(context.Background()))

	var err error
	select {
	case err = <-errCh:
	case <-time.After(time.Second):
		t.Fatal("connect did not return after close")
	}
	require.Error(t, err)
	assert.True(t, apperrors.IsConnectorUnavailable(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&launcher.stopped))

	status := s.Status()
	assert.NotEqual(t, v1.ConnectorStateConnected, status.State)
	assert.False(t, status.Connected)
}

func TestConnectAfterClose(t *testing.T) {
	ft := startFakeTool(t, echo)
	launcher := &fakeLauncher{}
	s := NewSession("blender", fastConfig(), ft.dialer(), launcher, logger.NewNop())

	require.NoError(t, s.Close(context.Background()))

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConnectorUnavailable(err))
	assert.Equal(t, "Blender connector is closed", apperrors.Message(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&launcher.launched))
	assert.False(t, s.Status().Connected)
}

func TestSendCommandRoundTrip(t *testing.T) {
	ft := startFakeTool(t, echo)
	s := connected(t, ft)

	resp, err := s.SendCommand(context.Background(), protocol.CommandGetSceneInfo, nil)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, protocol.CommandGetSceneInfo, resp.Data["command"])

	reqs := ft.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, protocol.CommandGetSceneInfo, reqs[0].Command)
	assert.NotNil(t, reqs[0].Data)
}

func TestSendCommandWithoutConnection(t *testing.T) {
	s := NewSession("blender", fastConfig(), closedAddrDialer(t), nil, logger.NewNop())

	_, err := s.SendCommand(context.Background(), protocol.CommandPing, nil)

	require.Error(t, err)
	assert.True(t, apperrors.IsConnectorUnavailable(err))
	assert.Equal(t, "No WebSocket connection to Blender", apperrors.Message(err))
}

func TestSendCommandTimeoutKeepsSessionAndDropsLateReply(t *testing.T) {
	var calls int32
	ft := startFakeTool(t, func(req protocol.Request) (*protocol.Response, time.Duration) {
		resp, _ := echo(req)
		if atomic.AddInt32(&calls, 1) == 1 {
			return resp, 300 * time.Millisecond
		}
		return resp, 0
	})
	s := connected(t, ft)
	cfg := fastConfig()

	start := time.Now()
	_, err := s.SendCommand(context.Background(), protocol.CommandGetSceneInfo, nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err))
	assert.Equal(t, "Command timeout - Blender not responding", apperrors.Message(err))
	assert.GreaterOrEqual(t, elapsed, cfg.CommandTimeout)
	assert.Less(t, elapsed, cfg.CommandTimeout+150*time.Millisecond)
	assert.Equal(t, v1.ConnectorStateConnected, s.Status().State)

	// let the late reply land in the inbound buffer
	time.Sleep(250 * time.Millisecond)

	resp, err := s.SendCommand(context.Background(), protocol.CommandGetSelectedObjects, nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.CommandGetSelectedObjects, resp.Data["command"])
}

func TestSendCommandContextCancelled(t *testing.T) {
	ft := startFakeTool(t, func(req protocol.Request) (*protocol.Response, time.Duration) {
		return nil, 0
	})
	s := connected(t, ft)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.SendCommand(ctx, protocol.CommandPing, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallRemoteError(t *testing.T) {
	ft := startFakeTool(t, func(req protocol.Request) (*protocol.Response, time.Duration) {
		return &protocol.Response{Status: protocol.StatusError, Error: "Object Cube not found"}, 0
	})
	s := connected(t, ft)

	_, err := s.Call(context.Background(), protocol.CommandApplyTexture, nil)

	require.Error(t, err)
	assert.True(t, apperrors.IsRemoteExecution(err))
	assert.Equal(t, "Object Cube not found", apperrors.Message(err))
}

func TestIsConnected(t *testing.T) {
	ft := startFakeTool(t, echo)
	s := connected(t, ft)

	assert.True(t, s.IsConnected(context.Background()))
	assert.Equal(t, protocol.CommandPing, ft.requests()[0].Command)
}

func TestIsConnectedDemotesOnFailedPing(t *testing.T) {
	ft := startFakeTool(t, func(req protocol.Request) (*protocol.Response, time.Duration) {
		return &protocol.Response{Status: protocol.StatusError, Error: "busy"}, 0
	})
	s := connected(t, ft)

	assert.False(t, s.IsConnected(context.Background()))
	status := s.Status()
	assert.Equal(t, v1.ConnectorStateDisconnected, status.State)
	assert.False(t, status.Connected)
	assert.False(t, s.IsConnected(context.Background()))
}

func TestRemoteCloseMarksDisconnected(t *testing.T) {
	ft := startFakeTool(t, echo)
	s := connected(t, ft)

	ft.dropConnections()

	require.Eventually(t, func() bool {
		return s.Status().State == v1.ConnectorStateDisconnected
	}, time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, s.Status().LastError)

	_, err := s.SendCommand(context.Background(), protocol.CommandPing, nil)
	assert.True(t, apperrors.IsConnectorUnavailable(err))

	// reconnect is explicit
	require.NoError(t, s.Connect(context.Background()))
	assert.True(t, s.IsConnected(context.Background()))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	ft := startFakeTool(t, echo)
	s := connected(t, ft)

	s.Disconnect()
	s.Disconnect()

	status := s.Status()
	assert.Equal(t, v1.ConnectorStateDisconnected, status.State)
	assert.Empty(t, status.LastError)
}

func TestWebsocketDialerURL(t *testing.T) {
	d := NewWebsocketDialer("localhost", 9999)
	assert.Equal(t, "ws://localhost:9999/", d.URL)
	assert.True(t, strings.HasPrefix(d.URL, "ws://"))
}
