package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AetheriusMC/aetherius/pkg/component"
	"github.com/AetheriusMC/aetherius/pkg/events"
	"github.com/AetheriusMC/aetherius/pkg/storage"
	"github.com/AetheriusMC/aetherius/pkg/supervisor"
	"github.com/AetheriusMC/aetherius/pkg/types"
)

// stubServer satisfies GameServer without a real child process
type stubServer struct {
	mu       sync.Mutex
	sent     []string
	execErr  string
	started  bool
	stopped  bool
}

func (s *stubServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *stubServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *stubServer) Restart() error { return nil }

func (s *stubServer) flags() (started, stopped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.stopped
}

func (s *stubServer) SendCommand(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	return nil
}

func (s *stubServer) ExecuteCommand(_ context.Context, text string, _ time.Duration) *types.CommandResult {
	s.mu.Lock()
	s.sent = append(s.sent, text)
	failWith := s.execErr
	s.mu.Unlock()
	if failWith != "" {
		return &types.CommandResult{Status: types.CommandCompleted, Success: false, Error: failWith}
	}
	return &types.CommandResult{
		Status:  types.CommandCompleted,
		Success: true,
		Output:  "There are no players online",
	}
}

func (s *stubServer) Status() supervisor.Status {
	return supervisor.Status{State: types.ServerRunning, PID: 4242, UptimeSeconds: 60}
}

func (s *stubServer) Metrics() types.ProcessMetrics {
	return types.ProcessMetrics{CPUPercent: 1.5, RSSMiB: 512, Threads: 12}
}

func (s *stubServer) sentCommands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type testClient struct {
	conn net.Conn
	sc   *bufio.Scanner
}

func dialDaemon(t *testing.T, socketPath string) *testClient {
	t.Helper()
	var conn net.Conn
	require.Eventually(t, func() bool {
		var err error
		conn, err = net.Dial("unix", socketPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(func() { conn.Close() })
	return &testClient{conn: conn, sc: bufio.NewScanner(conn)}
}

func (c *testClient) submit(t *testing.T, command string) {
	t.Helper()
	data, err := json.Marshal(&Frame{Type: FrameCommand, Command: command})
	require.NoError(t, err)
	_, err = c.conn.Write(append(data, '\n'))
	require.NoError(t, err)
}

// next reads frames until one of the wanted type arrives
func (c *testClient) next(t *testing.T, frameType string) *Frame {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for c.sc.Scan() {
		var f Frame
		require.NoError(t, json.Unmarshal(c.sc.Bytes(), &f))
		if f.Type == frameType {
			return &f
		}
	}
	t.Fatalf("connection closed while waiting for a %s frame", frameType)
	return nil
}

func newTestDaemon(t *testing.T, components component.Registry, store storage.Store) (*Daemon, *stubServer, *events.Bus) {
	t.Helper()
	bus := events.NewBus(events.Config{})
	server := &stubServer{}
	d := New(Config{
		SocketPath:     filepath.Join(t.TempDir(), "d.sock"),
		CommandTimeout: 2 * time.Second,
	}, server, components, bus, store)
	require.NoError(t, d.Start())
	t.Cleanup(d.Shutdown)
	return d, server, bus
}

func TestGameCommandRoundTrip(t *testing.T) {
	d, server, _ := newTestDaemon(t, nil, nil)
	client := dialDaemon(t, d.cfg.SocketPath)

	client.submit(t, "/list")
	res := client.next(t, FrameResponse)

	assert.True(t, res.Success)
	assert.Contains(t, res.Output, "There are no players online")
	assert.Equal(t, []string{"list"}, server.sentCommands(),
		"the / prefix must be stripped before the server sees the command")
}

func TestGameCommandFailurePropagates(t *testing.T) {
	d, server, _ := newTestDaemon(t, nil, nil)
	server.mu.Lock()
	server.execErr = "server is not running"
	server.mu.Unlock()
	client := dialDaemon(t, d.cfg.SocketPath)

	client.submit(t, "/list")
	res := client.next(t, FrameResponse)

	assert.False(t, res.Success)
	assert.Equal(t, "server is not running", res.Error)
}

func TestBareTextGetsHintNotForwarded(t *testing.T) {
	d, server, _ := newTestDaemon(t, nil, nil)
	client := dialDaemon(t, d.cfg.SocketPath)

	client.submit(t, "hello there")
	hint := client.next(t, FrameLog)

	assert.Contains(t, hint.Content, "unrecognised input")
	assert.Empty(t, server.sentCommands())
}

func TestLogBroadcastReachesAllSessions(t *testing.T) {
	d, _, bus := newTestDaemon(t, nil, nil)
	a := dialDaemon(t, d.cfg.SocketPath)
	b := dialDaemon(t, d.cfg.SocketPath)

	// Both sessions must be registered before the fire
	a.submit(t, "!status")
	a.next(t, FrameResponse)
	b.submit(t, "!status")
	b.next(t, FrameResponse)

	bus.Fire(&events.ServerLog{
		Base:  events.NewBase(),
		Level: "ERROR",
		Raw:   "[Server thread/ERROR]: something broke",
	})

	for _, c := range []*testClient{a, b} {
		f := c.next(t, FrameLog)
		assert.Contains(t, f.Content, "something broke")
		assert.True(t, f.IsError)
	}
}

func TestClientDisconnectLeavesOthersAlone(t *testing.T) {
	d, _, bus := newTestDaemon(t, nil, nil)

	gone := dialDaemon(t, d.cfg.SocketPath)
	stay := dialDaemon(t, d.cfg.SocketPath)
	stay.submit(t, "!status")
	stay.next(t, FrameResponse)

	gone.conn.Close()
	time.Sleep(50 * time.Millisecond)

	bus.Fire(&events.ServerLog{Base: events.NewBase(), Level: "INFO", Raw: "still here"})
	f := stay.next(t, FrameLog)
	assert.Contains(t, f.Content, "still here")
}

func TestSystemStatus(t *testing.T) {
	d, _, _ := newTestDaemon(t, nil, nil)
	client := dialDaemon(t, d.cfg.SocketPath)

	client.submit(t, "!status")
	res := client.next(t, FrameResponse)

	require.True(t, res.Success)
	assert.Contains(t, res.Output, "server: running")
	assert.Contains(t, res.Output, "pid 4242")
	assert.Contains(t, res.Output, "sessions: 1")
}

func TestSystemQuit(t *testing.T) {
	d, _, _ := newTestDaemon(t, nil, nil)
	client := dialDaemon(t, d.cfg.SocketPath)

	client.submit(t, "!quit")
	res := client.next(t, FrameResponse)
	assert.True(t, res.Success)

	select {
	case <-d.Quit():
	case <-time.After(time.Second):
		t.Fatal("quit channel never closed")
	}
}

func TestSystemServerVerbs(t *testing.T) {
	d, server, _ := newTestDaemon(t, nil, nil)
	client := dialDaemon(t, d.cfg.SocketPath)

	client.submit(t, "!server stop")
	res := client.next(t, FrameResponse)
	require.True(t, res.Success)
	assert.Contains(t, res.Output, "stopped")

	client.submit(t, "!server start")
	res = client.next(t, FrameResponse)
	require.True(t, res.Success)

	started, stopped := server.flags()
	assert.True(t, started)
	assert.True(t, stopped)

	client.submit(t, "!server sideways")
	res = client.next(t, FrameResponse)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "usage")
}

func TestUnknownSystemCommand(t *testing.T) {
	d, _, _ := newTestDaemon(t, nil, nil)
	client := dialDaemon(t, d.cfg.SocketPath)

	client.submit(t, "!format-disk")
	res := client.next(t, FrameResponse)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown system command")
}

func TestComponentVerbsAgainstRealLoader(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "backup")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "component.yaml"),
		[]byte("name: backup\nversion: 1.0.0\n"), 0o644))

	bus := events.NewBus(events.Config{})
	loader := component.NewLoader(component.Config{Dir: root}, bus)

	d := New(Config{
		SocketPath: filepath.Join(t.TempDir(), "d.sock"),
	}, &stubServer{}, loader, bus, nil)
	require.NoError(t, d.Start())
	t.Cleanup(d.Shutdown)
	client := dialDaemon(t, d.cfg.SocketPath)

	client.submit(t, "$scan")
	res := client.next(t, FrameResponse)
	require.True(t, res.Success)
	assert.Contains(t, res.Output, "1 components known")

	client.submit(t, "$load")
	res = client.next(t, FrameResponse)
	require.True(t, res.Success, res.Error)

	client.submit(t, "$enable backup")
	res = client.next(t, FrameResponse)
	require.True(t, res.Success, res.Error)

	client.submit(t, "$list")
	res = client.next(t, FrameResponse)
	require.True(t, res.Success)
	assert.Contains(t, res.Output, "backup")
	assert.Contains(t, res.Output, string(types.ComponentEnabled))
}

func TestComponentVerbWithoutLoader(t *testing.T) {
	d, _, _ := newTestDaemon(t, nil, nil)
	client := dialDaemon(t, d.cfg.SocketPath)

	client.submit(t, "$list")
	res := client.next(t, FrameResponse)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not available")
}

func TestSocketInUse(t *testing.T) {
	d, _, _ := newTestDaemon(t, nil, nil)

	second := New(Config{SocketPath: d.cfg.SocketPath}, &stubServer{},
		nil, events.NewBus(events.Config{}), nil)
	err := second.Start()
	assert.ErrorIs(t, err, ErrSocketInUse)
}

func TestStaleSocketIsReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.sock")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	d := New(Config{SocketPath: path}, &stubServer{},
		nil, events.NewBus(events.Config{}), nil)
	require.NoError(t, d.Start())
	t.Cleanup(d.Shutdown)

	client := dialDaemon(t, path)
	client.submit(t, "!status")
	assert.True(t, client.next(t, FrameResponse).Success)
}

func TestRestartedDaemonAuditsOnce(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	bus := events.NewBus(events.Config{})
	socket := filepath.Join(t.TempDir(), "d.sock")

	first := New(Config{SocketPath: socket}, &stubServer{}, nil, bus, store)
	require.NoError(t, first.Start())
	first.Shutdown()

	second := New(Config{SocketPath: socket}, &stubServer{}, nil, bus, store)
	require.NoError(t, second.Start())
	t.Cleanup(second.Shutdown)

	bus.Fire(&events.PlayerJoin{Base: events.NewBase(), Player: "Alice"})

	evts, err := store.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, evts, 1,
		"the first daemon's audit listener must not survive its shutdown")
}

func TestAuditStoreRecordsCommandsAndEvents(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	d, _, bus := newTestDaemon(t, nil, store)
	client := dialDaemon(t, d.cfg.SocketPath)

	client.submit(t, "/list")
	client.next(t, FrameResponse)

	bus.Fire(&events.PlayerJoin{Base: events.NewBase(), Player: "Alice"})

	cmds, err := store.RecentCommands(10)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "list", cmds[0].Command)
	assert.True(t, cmds[0].Success)

	evts, err := store.RecentEvents(10)
	require.NoError(t, err)
	require.NotEmpty(t, evts)
	assert.Equal(t, events.TopicPlayerJoin, evts[len(evts)-1].Topic)
}
