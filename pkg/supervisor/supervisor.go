package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AetheriusMC/aetherius/pkg/events"
	"github.com/AetheriusMC/aetherius/pkg/log"
	"github.com/AetheriusMC/aetherius/pkg/parser"
	"github.com/AetheriusMC/aetherius/pkg/pipeline"
	"github.com/AetheriusMC/aetherius/pkg/types"
)

var (
	ErrJarNotFound    = errors.New("server jar not found")
	ErrAlreadyRunning = errors.New("server already running")
	ErrNotRunning     = errors.New("server not running")
)

// Config describes how the supervisor launches and stops the child
type Config struct {
	// JarPath is the server jar; relative paths resolve against WorkingDir
	JarPath    string
	WorkingDir string
	JavaBin    string
	JavaArgs   []string
	// Command overrides the whole launch argv. When set, JavaBin/JavaArgs
	// are ignored.
	Command []string
	// StopTimeout bounds the graceful stop before signal escalation
	StopTimeout time.Duration
	// KillGrace is the wait between the terminate signal and SIGKILL
	KillGrace time.Duration
	// StartupGrace promotes Starting to Running when no ready line appears
	StartupGrace time.Duration
	// CaptureWindow is the in-process command reply window
	CaptureWindow time.Duration
	// AutoRestart re-runs Start after a crash
	AutoRestart    bool
	RestartBackoff time.Duration
	// StateFile overrides the persistent state location
	// (default <WorkingDir>/server_state.json)
	StateFile string
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.JavaBin == "" {
		out.JavaBin = "java"
	}
	if out.StopTimeout <= 0 {
		out.StopTimeout = 30 * time.Second
	}
	if out.KillGrace <= 0 {
		out.KillGrace = 5 * time.Second
	}
	if out.StartupGrace <= 0 {
		out.StartupGrace = 15 * time.Second
	}
	if out.CaptureWindow <= 0 {
		out.CaptureWindow = 2 * time.Second
	}
	if out.RestartBackoff <= 0 {
		out.RestartBackoff = 5 * time.Second
	}
	return out
}

// Status is a point-in-time snapshot of the supervised process
type Status struct {
	State         types.ServerState `json:"state"`
	PID           int               `json:"pid,omitempty"`
	StartTime     time.Time         `json:"start_time,omitempty"`
	UptimeSeconds float64           `json:"uptime_seconds,omitempty"`
	Adopted       bool              `json:"adopted,omitempty"`
}

// Supervisor owns exactly one child process at a time and surfaces its
// lifecycle through the five-state machine. All transitions happen under
// one mutex; events fire after the lock is released, state change first.
type Supervisor struct {
	cfg      Config
	bus      *events.Bus
	parser   *parser.Parser
	captures *pipeline.CaptureSet
	logger   zerolog.Logger

	mu         sync.Mutex
	state      types.ServerState
	gen        uint64
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	pid        int
	startTime  time.Time
	adopted    bool
	bridge     *bridge
	done       chan struct{}
	stderrTail *tail
}

// New creates a supervisor in the Stopped state. The ready transition is
// driven by the parser's ServerReady event on the shared bus, with the
// startup grace timer as fallback.
func New(cfg Config, bus *events.Bus) *Supervisor {
	s := &Supervisor{
		cfg:      cfg.withDefaults(),
		bus:      bus,
		parser:   parser.New(),
		captures: pipeline.NewCaptureSet(pipeline.DefaultCaptureMaxAge),
		logger:   log.WithComponent("supervisor"),
		state:    types.ServerStopped,
	}

	if n := sweepStaleBridges(); n > 0 {
		s.logger.Info().Int("removed", n).Msg("removed stale command bridges")
	}

	bus.Register(events.TopicServerReady, events.High, func(e events.Event) {
		r, ok := e.(*events.ServerReady)
		if !ok {
			return
		}
		s.mu.Lock()
		gen := s.gen
		s.mu.Unlock()
		s.markRunning(gen, r.StartupSeconds)
	})

	return s
}

// State returns the current lifecycle state
func (s *Supervisor) State() types.ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the supervised process
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state, Adopted: s.adopted}
	if !s.state.Terminal() {
		st.PID = s.pid
		st.StartTime = s.startTime
		st.UptimeSeconds = time.Since(s.startTime).Seconds()
	}
	return st
}

// Captures exposes the capture set fed by the stdout pump, for the queue
// processor that shares it
func (s *Supervisor) Captures() *pipeline.CaptureSet {
	return s.captures
}

// Start spawns the child process and transitions Stopped -> Starting.
// The Running transition follows the ready log line, or StartupGrace.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if !s.state.Terminal() {
		s.mu.Unlock()
		return fmt.Errorf("%w: state is %s", ErrAlreadyRunning, s.state)
	}

	argv, err := s.launchArgv()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.cfg.WorkingDir
	// Own process group: closing the controlling terminal must not
	// signal the child
	cmd.SysProcAttr = procAttr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to spawn server: %w", err)
	}

	s.gen++
	gen := s.gen
	s.cmd = cmd
	s.stdin = stdin
	s.pid = cmd.Process.Pid
	s.startTime = time.Now()
	s.adopted = false
	s.done = make(chan struct{})
	s.stderrTail = newTail(stderrTailLines)
	done := s.done
	tail := s.stderrTail
	started := s.startTime
	stateEv := s.transitionLocked(types.ServerStarting)
	s.mu.Unlock()

	s.bus.Fire(stateEv)
	s.logger.Info().Int("pid", cmd.Process.Pid).Strs("argv", argv).Msg("server process spawned")

	if err := writeState(s.stateFile(), &types.PersistentState{
		PID:              cmd.Process.Pid,
		StartTime:        started,
		JarPath:          s.cfg.JarPath,
		WorkingDirectory: s.cfg.WorkingDir,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write persistent state")
	}

	if br, err := openBridge(bridgePath(cmd.Process.Pid)); err != nil {
		s.logger.Warn().Err(err).Msg("command bridge unavailable")
	} else {
		s.mu.Lock()
		s.bridge = br
		s.mu.Unlock()
		go br.listen(s, s.logger)
	}

	go s.pumpStdout(stdout)
	go s.pumpStderr(stderr, tail)
	go s.monitor(cmd, gen, done, tail)

	time.AfterFunc(s.cfg.StartupGrace, func() {
		s.markRunning(gen, time.Since(started).Seconds())
	})

	return nil
}

// launchArgv resolves the child's command line, verifying the jar exists
func (s *Supervisor) launchArgv() ([]string, error) {
	jar := s.cfg.JarPath
	if jar != "" {
		if !filepath.IsAbs(jar) {
			jar = filepath.Join(s.cfg.WorkingDir, jar)
		}
		if _, err := os.Stat(jar); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrJarNotFound, jar)
		}
	}
	if len(s.cfg.Command) > 0 {
		return s.cfg.Command, nil
	}
	if jar == "" {
		return nil, fmt.Errorf("%w: no jar path configured", ErrJarNotFound)
	}
	argv := []string{s.cfg.JavaBin}
	argv = append(argv, s.cfg.JavaArgs...)
	return append(argv, "-jar", jar, "nogui"), nil
}

// markRunning promotes Starting to Running once per generation
func (s *Supervisor) markRunning(gen uint64, startupSeconds float64) {
	s.mu.Lock()
	if s.gen != gen || s.state != types.ServerStarting {
		s.mu.Unlock()
		return
	}
	pid := s.pid
	stateEv := s.transitionLocked(types.ServerRunning)
	s.mu.Unlock()

	s.bus.Fire(stateEv)
	s.bus.Fire(&events.ServerStarted{
		Base:           events.NewBase(),
		PID:            pid,
		StartupSeconds: startupSeconds,
	})
	s.logger.Info().Int("pid", pid).Float64("startup_seconds", startupSeconds).
		Msg("server is running")
}

// Stop shuts the child down gracefully, escalating to signals after the
// configured timeout. Valid from Running or Starting only.
func (s *Supervisor) Stop() error {
	return s.stop(s.cfg.StopTimeout, false)
}

// Kill skips the graceful stop command and goes straight to signals
func (s *Supervisor) Kill() error {
	return s.stop(0, true)
}

func (s *Supervisor) stop(timeout time.Duration, force bool) error {
	s.mu.Lock()
	if s.state != types.ServerRunning && s.state != types.ServerStarting {
		s.mu.Unlock()
		return fmt.Errorf("%w: state is %s", ErrNotRunning, s.state)
	}
	stateEv := s.transitionLocked(types.ServerStopping)
	stdin := s.stdin
	pid := s.pid
	adopted := s.adopted
	done := s.done
	s.mu.Unlock()
	s.bus.Fire(stateEv)

	if adopted {
		return s.stopAdopted(pid, timeout)
	}

	if !force && stdin != nil {
		if _, err := io.WriteString(stdin, "stop\n"); err != nil {
			s.logger.Warn().Err(err).Msg("stop command write failed, escalating to signal")
			force = true
		}
	}
	if force {
		terminate(pid)
	}

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
	}

	s.logger.Warn().Int("pid", pid).Msg("graceful stop timed out, sending terminate signal")
	terminate(pid)
	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.KillGrace):
	}

	s.logger.Error().Int("pid", pid).Msg("terminate ignored, killing process group")
	kill(pid)
	<-done
	return nil
}

// Restart is stop-then-start; a server that is not running just starts
func (s *Supervisor) Restart() error {
	if err := s.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return s.Start()
}

// SendCommand writes one command line to the child's stdin. Requires
// Running. Adopted children have no stdin; the bridge is the only path.
func (s *Supervisor) SendCommand(text string) error {
	s.mu.Lock()
	state := s.state
	stdin := s.stdin
	adopted := s.adopted
	pid := s.pid
	s.mu.Unlock()

	if state != types.ServerRunning {
		return fmt.Errorf("%w: state is %s", ErrNotRunning, state)
	}
	if adopted {
		return bridgeSend(bridgePath(pid), text)
	}
	if stdin == nil {
		return ErrNotRunning
	}
	if _, err := io.WriteString(stdin, text+"\n"); err != nil {
		if errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) {
			s.markBrokenPipe()
		}
		return fmt.Errorf("stdin write failed: %w", err)
	}
	return nil
}

// markBrokenPipe promotes Running straight to Crashed when the child's
// stdin breaks, ahead of the monitor reaping the exit
func (s *Supervisor) markBrokenPipe() {
	s.mu.Lock()
	if s.state != types.ServerRunning {
		s.mu.Unlock()
		return
	}
	stateEv := s.transitionLocked(types.ServerCrashed)
	s.mu.Unlock()

	s.bus.Fire(stateEv)
	s.logger.Error().Msg("server stdin broken, marking crashed")
}

// ExecuteCommand is the synchronous-reply primitive: send the command,
// collect matching log lines for the capture window, reduce them to a
// result. A zero timeout yields a timeout result without touching stdin.
func (s *Supervisor) ExecuteCommand(ctx context.Context, text string, timeout time.Duration) *types.CommandResult {
	started := time.Now()
	if timeout <= 0 {
		return &types.CommandResult{
			Status:  types.CommandTimeout,
			Success: false,
			Error:   "zero command timeout",
		}
	}

	id := uuid.New().String()
	s.captures.Open(id, text)

	if err := s.SendCommand(text); err != nil {
		s.captures.Close(id)
		return &types.CommandResult{
			ID:      id,
			Status:  types.CommandCompleted,
			Success: false,
			Error:   err.Error(),
		}
	}

	window := s.cfg.CaptureWindow
	if window > timeout {
		window = timeout
	}
	select {
	case <-ctx.Done():
	case <-time.After(window):
	}

	matched, raw := s.captures.Close(id)
	output, success := pipeline.Reduce(pipeline.BaseVerb(text), matched, raw)
	return &types.CommandResult{
		ID:            id,
		Status:        types.CommandCompleted,
		Success:       success,
		Output:        output,
		ExecutionTime: time.Since(started).Seconds(),
	}
}

const stderrTailLines = 20

// pumpStdout reads the child's stdout line by line, feeding the capture
// set and firing ServerLog plus the parser's events for each line
func (s *Supervisor) pumpStdout(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.ToValidUTF8(sc.Text(), "�")
		s.captures.Feed(line)
		s.bus.Fire(&events.ServerLog{
			Base:    events.NewBase(),
			Level:   "INFO",
			Message: pipeline.CleanLine(line),
			Raw:     line,
		})
		for _, ev := range s.parser.Parse(line) {
			s.bus.Fire(ev)
		}
	}
}

// pumpStderr mirrors stderr into ServerLog events and the crash tail
func (s *Supervisor) pumpStderr(r io.Reader, tail *tail) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.ToValidUTF8(sc.Text(), "�")
		tail.add(line)
		s.bus.Fire(&events.ServerLog{
			Base:    events.NewBase(),
			Level:   "ERROR",
			Message: pipeline.CleanLine(line),
			Raw:     line,
		})
	}
}

// monitor awaits process exit and drives the terminal transition: Stopped
// after a requested stop, Crashed otherwise
func (s *Supervisor) monitor(cmd *exec.Cmd, gen uint64, done chan struct{}, tail *tail) {
	_ = cmd.Wait()
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		close(done)
		return
	}
	stopping := s.state == types.ServerStopping
	uptime := time.Since(s.startTime).Seconds()
	br := s.bridge
	s.bridge = nil
	s.stdin = nil
	s.cmd = nil
	var stateEv *events.ServerStateChanged
	switch {
	case stopping:
		stateEv = s.transitionLocked(types.ServerStopped)
	case s.state == types.ServerCrashed:
		// A broken stdin already promoted the crash; no second transition
	default:
		stateEv = s.transitionLocked(types.ServerCrashed)
	}
	restart := !stopping && s.cfg.AutoRestart
	s.mu.Unlock()

	if br != nil {
		br.close()
	}
	removeState(s.stateFile())

	if stateEv != nil {
		s.bus.Fire(stateEv)
	}
	if stopping {
		s.logger.Info().Int("exit_code", exitCode).Msg("server stopped")
		s.bus.Fire(&events.ServerStopped{
			Base:          events.NewBase(),
			ExitCode:      exitCode,
			UptimeSeconds: uptime,
		})
	} else {
		s.logger.Error().Int("exit_code", exitCode).Msg("server exited unexpectedly")
		s.bus.Fire(&events.ServerCrashed{
			Base:        events.NewBase(),
			ExitCode:    exitCode,
			LastStderr:  tail.String(),
			WillRestart: restart,
		})
	}
	close(done)

	if restart {
		go func() {
			time.Sleep(s.cfg.RestartBackoff)
			if err := s.Start(); err != nil {
				s.logger.Error().Err(err).Msg("auto-restart failed")
			}
		}()
	}
}

// transitionLocked advances the state machine and returns the event for
// the caller to fire once the lock is released
func (s *Supervisor) transitionLocked(to types.ServerState) *events.ServerStateChanged {
	from := s.state
	s.state = to
	s.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("state transition")
	return &events.ServerStateChanged{Base: events.NewBase(), From: from, To: to}
}

func (s *Supervisor) stateFile() string {
	if s.cfg.StateFile != "" {
		return s.cfg.StateFile
	}
	return StateFilePath(s.cfg.WorkingDir)
}

// tail keeps the last n lines written to it
type tail struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newTail(max int) *tail {
	return &tail{max: max}
}

func (t *tail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
