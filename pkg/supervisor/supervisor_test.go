package supervisor

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AetheriusMC/aetherius/pkg/events"
	"github.com/AetheriusMC/aetherius/pkg/types"
)

// eventTrap records every event fired on the bus for later assertions
type eventTrap struct {
	mu     sync.Mutex
	events []events.Event
}

func (tr *eventTrap) record(e events.Event) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, e)
}

func (tr *eventTrap) first(topic string) events.Event {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, e := range tr.events {
		if e.Topic() == topic {
			return e
		}
	}
	return nil
}

func (tr *eventTrap) count(topic string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n := 0
	for _, e := range tr.events {
		if e.Topic() == topic {
			n++
		}
	}
	return n
}

func newTestSupervisor(t *testing.T, script string, mutate func(*Config)) (*Supervisor, *eventTrap) {
	t.Helper()
	bus := events.NewBus(events.Config{})
	trap := &eventTrap{}
	bus.Register(events.TopicAll, events.Lowest, trap.record)

	cfg := Config{
		WorkingDir:     t.TempDir(),
		Command:        []string{"/bin/sh", "-c", script},
		StopTimeout:    2 * time.Second,
		KillGrace:      time.Second,
		StartupGrace:   300 * time.Millisecond,
		CaptureWindow:  400 * time.Millisecond,
		RestartBackoff: 100 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	s := New(cfg, bus)
	t.Cleanup(func() {
		if !s.State().Terminal() {
			_ = s.Kill()
		}
	})
	return s, trap
}

// deadPid returns a pid that is guaranteed not to be running
func deadPid(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	return cmd.ProcessState.Pid()
}

// echoScript replies to every stdin line with the given server log line,
// and exits cleanly on "stop"
const noPlayersScript = `while read line; do
  if [ "$line" = "stop" ]; then exit 0; fi
  echo "[12:00:00] [Server thread/INFO]: There are no players online"
done`

func TestCleanStartStop(t *testing.T) {
	script := `echo '[12:00:00] [Server thread/INFO]: Done (0.42s)! For help, type "help"'
read line
exit 0`
	s, trap := newTestSupervisor(t, script, nil)

	require.NoError(t, s.Start())

	require.Eventually(t, func() bool {
		return trap.first(events.TopicServerStarted) != nil
	}, 3*time.Second, 20*time.Millisecond, "ServerStarted never fired")

	started := trap.first(events.TopicServerStarted).(*events.ServerStarted)
	assert.InDelta(t, 0.42, started.StartupSeconds, 0.001,
		"startup time must come from the ready line, not wall clock")
	assert.Equal(t, types.ServerRunning, s.State())

	st, err := LoadState(StateFilePath(s.cfg.WorkingDir))
	require.NoError(t, err, "persistent state file must exist while running")
	assert.Equal(t, s.Status().PID, st.PID)

	require.NoError(t, s.Stop())
	assert.Equal(t, types.ServerStopped, s.State())

	stopped := trap.first(events.TopicServerStopped)
	require.NotNil(t, stopped, "ServerStopped never fired")
	assert.Equal(t, 0, stopped.(*events.ServerStopped).ExitCode)

	_, err = LoadState(StateFilePath(s.cfg.WorkingDir))
	assert.True(t, os.IsNotExist(err), "persistent state must be cleared on clean stop")

	assert.Equal(t, 1, trap.count(events.TopicServerStarted))
	assert.Equal(t, 1, trap.count(events.TopicServerStopped))
	assert.Zero(t, trap.count(events.TopicServerCrashed))
}

func TestCrashDetection(t *testing.T) {
	s, trap := newTestSupervisor(t, `sleep 0.2; exit 139`, nil)

	require.NoError(t, s.Start())

	require.Eventually(t, func() bool {
		return trap.first(events.TopicServerCrashed) != nil
	}, 3*time.Second, 20*time.Millisecond, "ServerCrashed never fired")

	crashed := trap.first(events.TopicServerCrashed).(*events.ServerCrashed)
	assert.Equal(t, 139, crashed.ExitCode)
	assert.False(t, crashed.WillRestart)
	assert.Equal(t, types.ServerCrashed, s.State())

	// No auto-restart by default
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, types.ServerCrashed, s.State())
}

func TestCrashCarriesStderrTail(t *testing.T) {
	s, trap := newTestSupervisor(t, `echo "fatal: out of memory" >&2; exit 1`, nil)

	require.NoError(t, s.Start())

	require.Eventually(t, func() bool {
		return trap.first(events.TopicServerCrashed) != nil
	}, 3*time.Second, 20*time.Millisecond)

	crashed := trap.first(events.TopicServerCrashed).(*events.ServerCrashed)
	assert.Contains(t, crashed.LastStderr, "out of memory")
}

func TestStartFailsWhenJarMissing(t *testing.T) {
	s, _ := newTestSupervisor(t, "", func(c *Config) {
		c.Command = nil
		c.JarPath = "missing.jar"
	})

	err := s.Start()
	require.ErrorIs(t, err, ErrJarNotFound)
	assert.Equal(t, types.ServerStopped, s.State())

	_, err = LoadState(StateFilePath(s.cfg.WorkingDir))
	assert.True(t, os.IsNotExist(err))
}

func TestStopWhenStopped(t *testing.T) {
	s, _ := newTestSupervisor(t, "sleep 1", nil)
	assert.ErrorIs(t, s.Stop(), ErrNotRunning)
}

func TestStartWhileRunning(t *testing.T) {
	s, _ := newTestSupervisor(t, `read line; exit 0`, nil)

	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)
	require.NoError(t, s.Stop())
}

func TestSendCommandRequiresRunning(t *testing.T) {
	s, _ := newTestSupervisor(t, "sleep 1", nil)
	assert.ErrorIs(t, s.SendCommand("list"), ErrNotRunning)
}

func TestExecuteCommandCapturesReply(t *testing.T) {
	s, _ := newTestSupervisor(t, noPlayersScript, nil)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return s.State() == types.ServerRunning
	}, 3*time.Second, 20*time.Millisecond)

	res := s.ExecuteCommand(context.Background(), "list", 2*time.Second)
	assert.True(t, res.Success)
	assert.Contains(t, res.Output, "There are no players online")
	assert.Equal(t, types.CommandCompleted, res.Status)

	require.NoError(t, s.Stop())
}

func TestExecuteCommandKeepsUnrecognisedReply(t *testing.T) {
	// The stub echoes every command back in a shape no verb pattern knows
	script := `while read line; do
  if [ "$line" = "stop" ]; then exit 0; fi
  echo "[12:00:00] [Server thread/INFO]: echo $line"
done`
	s, _ := newTestSupervisor(t, script, nil)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return s.State() == types.ServerRunning
	}, 3*time.Second, 20*time.Millisecond)

	res := s.ExecuteCommand(context.Background(), "list", 2*time.Second)
	assert.True(t, res.Success)
	assert.Contains(t, res.Output, "echo list",
		"an unmatched reply must fall back to the window's raw lines")

	require.NoError(t, s.Stop())
}

func TestExecuteCommandZeroTimeout(t *testing.T) {
	s, _ := newTestSupervisor(t, "sleep 1", nil)

	res := s.ExecuteCommand(context.Background(), "list", 0)
	assert.Equal(t, types.CommandTimeout, res.Status)
	assert.False(t, res.Success)
}

func TestBridgeForwardsCommands(t *testing.T) {
	script := `while read line; do
  if [ "$line" = "stop" ]; then exit 0; fi
  echo "[12:00:00] [Server thread/INFO]: got $line"
done`
	s, trap := newTestSupervisor(t, script, nil)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return s.State() == types.ServerRunning
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, bridgeSend(bridgePath(s.Status().PID), "list"))

	require.Eventually(t, func() bool {
		trap.mu.Lock()
		defer trap.mu.Unlock()
		for _, e := range trap.events {
			if l, ok := e.(*events.ServerLog); ok && l.Message == "got list" {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond, "bridge command never reached the child")

	require.NoError(t, s.Stop())
}

func TestBrokenStdinMarksCrashed(t *testing.T) {
	// Child closes its stdin immediately, then lingers: the next write
	// hits a broken pipe while the process is still alive
	script := `exec 0<&-
echo '[12:00:00] [Server thread/INFO]: Done (0.1s)! For help, type "help"'
sleep 2`
	s, trap := newTestSupervisor(t, script, nil)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return s.State() == types.ServerRunning
	}, 3*time.Second, 20*time.Millisecond)

	err := s.SendCommand("list")
	require.Error(t, err)
	assert.Equal(t, types.ServerCrashed, s.State(),
		"a broken stdin must promote to Crashed before the exit is reaped")

	// The monitor reaps the exit without a second Crashed transition
	require.Eventually(t, func() bool {
		return trap.first(events.TopicServerCrashed) != nil
	}, 4*time.Second, 20*time.Millisecond)

	trap.mu.Lock()
	crashedTransitions := 0
	for _, e := range trap.events {
		if sc, ok := e.(*events.ServerStateChanged); ok && sc.To == types.ServerCrashed {
			crashedTransitions++
		}
	}
	trap.mu.Unlock()
	assert.Equal(t, 1, crashedTransitions)
	assert.Equal(t, 1, trap.count(events.TopicServerCrashed))
}

func TestStopEscalatesToKill(t *testing.T) {
	// Child ignores both the stop command and SIGTERM
	script := `trap '' TERM
while :; do sleep 0.2; done`
	s, trap := newTestSupervisor(t, script, func(c *Config) {
		c.StopTimeout = 300 * time.Millisecond
		c.KillGrace = 300 * time.Millisecond
	})

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return s.State() == types.ServerRunning
	}, 3*time.Second, 20*time.Millisecond)

	start := time.Now()
	require.NoError(t, s.Stop())
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, types.ServerStopped, s.State())
	assert.NotNil(t, trap.first(events.TopicServerStopped))
}

func TestAdoptWithoutStateFile(t *testing.T) {
	s, _ := newTestSupervisor(t, "sleep 1", nil)

	adopted, err := s.Adopt()
	require.NoError(t, err)
	assert.False(t, adopted)
	assert.Equal(t, types.ServerStopped, s.State())
}

func TestAdoptRemovesStaleState(t *testing.T) {
	s, _ := newTestSupervisor(t, "sleep 1", nil)

	// A pid that is guaranteed dead: run a process to completion
	deadPID := deadPid(t)

	path := StateFilePath(s.cfg.WorkingDir)
	require.NoError(t, writeState(path, &types.PersistentState{
		PID:       deadPID,
		StartTime: time.Now(),
		JarPath:   "server.jar",
	}))

	adopted, err := s.Adopt()
	require.NoError(t, err)
	assert.False(t, adopted)
	assert.Equal(t, types.ServerStopped, s.State())

	_, err = LoadState(path)
	assert.True(t, os.IsNotExist(err), "stale state file must be removed")
}

func TestAdoptLiveProcess(t *testing.T) {
	s, _ := newTestSupervisor(t, "sleep 1", func(c *Config) {
		c.StopTimeout = 300 * time.Millisecond
		c.KillGrace = 500 * time.Millisecond
	})

	// Stand-in for an orphaned server, in its own process group so the
	// stop escalation can signal it
	orphan := exec.Command("/bin/sh", "-c", "sleep 30")
	orphan.SysProcAttr = procAttr()
	require.NoError(t, orphan.Start())
	t.Cleanup(func() {
		kill(orphan.Process.Pid)
		_, _ = orphan.Process.Wait()
	})

	path := StateFilePath(s.cfg.WorkingDir)
	require.NoError(t, writeState(path, &types.PersistentState{
		PID:       orphan.Process.Pid,
		StartTime: time.Now(),
		JarPath:   "sh",
	}))

	adopted, err := s.Adopt()
	require.NoError(t, err)
	require.True(t, adopted)
	assert.Equal(t, types.ServerRunning, s.State())
	assert.True(t, s.Status().Adopted)

	require.NoError(t, s.Stop())
	assert.Equal(t, types.ServerStopped, s.State())
	_, err = LoadState(path)
	assert.True(t, os.IsNotExist(err))
}

func TestMetricsWhileRunning(t *testing.T) {
	s, _ := newTestSupervisor(t, `read line; exit 0`, nil)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return s.State() == types.ServerRunning
	}, 3*time.Second, 20*time.Millisecond)

	m := s.Metrics()
	assert.Greater(t, m.Threads, int32(0))

	require.NoError(t, s.Stop())
	assert.Equal(t, types.ProcessMetrics{}, s.Metrics())
}

func TestPersistRoundTrip(t *testing.T) {
	path := StateFilePath(t.TempDir())
	want := &types.PersistentState{
		PID:              4242,
		StartTime:        time.Now().Truncate(time.Second),
		JarPath:          "server.jar",
		WorkingDirectory: "/srv/mc",
	}
	require.NoError(t, writeState(path, want))

	got, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, want.PID, got.PID)
	assert.True(t, want.StartTime.Equal(got.StartTime))
	assert.Equal(t, want.JarPath, got.JarPath)
	assert.Equal(t, want.WorkingDirectory, got.WorkingDirectory)
}
