package supervisor

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/AetheriusMC/aetherius/pkg/events"
	"github.com/AetheriusMC/aetherius/pkg/types"
)

// adoptedPollInterval is how often an adopted process is checked for exit
const adoptedPollInterval = 2 * time.Second

// Adopt attaches to a process left behind by a previous engine run. The
// persistent state file names the pid; when it is alive and its command
// line looks like the game server, the supervisor marks itself Running.
// Adopted children expose no stdio pipes: only the file queue and the
// named-pipe bridge work until they exit. Returns true on adoption; a
// stale record is removed and reported as no adoption.
func (s *Supervisor) Adopt() (bool, error) {
	st, err := LoadState(s.stateFile())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	proc, err := process.NewProcess(int32(st.PID))
	if err != nil || !looksLikeGameServer(proc, st.JarPath) {
		s.logger.Info().Int("pid", st.PID).Msg("stale persistent state, removing")
		removeState(s.stateFile())
		return false, nil
	}

	s.mu.Lock()
	if !s.state.Terminal() {
		s.mu.Unlock()
		return false, ErrAlreadyRunning
	}
	s.gen++
	gen := s.gen
	s.pid = st.PID
	s.startTime = st.StartTime
	s.adopted = true
	s.done = nil
	stateEv := s.transitionLocked(types.ServerRunning)
	s.mu.Unlock()

	s.bus.Fire(stateEv)
	s.logger.Info().Int("pid", st.PID).Msg("adopted running server process")

	// Rewrite on adoption so the record reflects this engine run
	if err := writeState(s.stateFile(), st); err != nil {
		s.logger.Warn().Err(err).Msg("failed to rewrite persistent state")
	}

	go s.watchAdopted(st.PID, gen)
	return true, nil
}

// looksLikeGameServer guards adoption against pid reuse: the process must
// be alive and its command line must mention java or the recorded jar
func looksLikeGameServer(p *process.Process, jarPath string) bool {
	running, err := p.IsRunning()
	if err != nil || !running {
		return false
	}
	cmdline, err := p.Cmdline()
	if err != nil {
		return false
	}
	lower := strings.ToLower(cmdline)
	if strings.Contains(lower, "java") {
		return true
	}
	return jarPath != "" && strings.Contains(lower, strings.ToLower(filepath.Base(jarPath)))
}

// watchAdopted polls an adopted process for exit; without pipes there is
// no Wait to block on
func (s *Supervisor) watchAdopted(pid int, gen uint64) {
	for {
		time.Sleep(adoptedPollInterval)

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		state := s.state
		s.mu.Unlock()

		if state == types.ServerStopping || state.Terminal() {
			// stopAdopted owns the rest of the shutdown
			return
		}

		alive, err := process.PidExists(int32(pid))
		if err != nil || alive {
			continue
		}

		s.mu.Lock()
		if s.gen != gen || s.state.Terminal() {
			s.mu.Unlock()
			return
		}
		stateEv := s.transitionLocked(types.ServerCrashed)
		s.mu.Unlock()

		removeState(s.stateFile())
		s.bus.Fire(stateEv)
		s.bus.Fire(&events.ServerCrashed{
			Base:     events.NewBase(),
			ExitCode: -1, // exit status of a non-child is unobservable
		})
		return
	}
}

// stopAdopted shuts down a process this engine does not own: ask it to
// stop over the bridge, poll for exit, escalate to signals
func (s *Supervisor) stopAdopted(pid int, timeout time.Duration) error {
	if err := bridgeSend(bridgePath(pid), "stop"); err != nil {
		s.logger.Warn().Err(err).Msg("bridge stop failed, falling back to signal")
		terminate(pid)
	}

	if s.waitAdoptedExit(pid, timeout) {
		return s.finishAdoptedStop(pid)
	}
	s.logger.Warn().Int("pid", pid).Msg("adopted stop timed out, sending terminate signal")
	terminate(pid)
	if s.waitAdoptedExit(pid, s.cfg.KillGrace) {
		return s.finishAdoptedStop(pid)
	}
	s.logger.Error().Int("pid", pid).Msg("terminate ignored, killing adopted process")
	kill(pid)
	s.waitAdoptedExit(pid, s.cfg.KillGrace)
	return s.finishAdoptedStop(pid)
}

func (s *Supervisor) waitAdoptedExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		alive, err := process.PidExists(int32(pid))
		if err == nil && !alive {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return false
}

func (s *Supervisor) finishAdoptedStop(pid int) error {
	s.mu.Lock()
	uptime := time.Since(s.startTime).Seconds()
	stateEv := s.transitionLocked(types.ServerStopped)
	s.mu.Unlock()

	removeState(s.stateFile())
	s.bus.Fire(stateEv)
	s.bus.Fire(&events.ServerStopped{
		Base:          events.NewBase(),
		ExitCode:      -1,
		UptimeSeconds: uptime,
	})
	s.logger.Info().Int("pid", pid).Msg("adopted server stopped")
	return nil
}

// Metrics returns a best-effort resource snapshot of the child; a zero
// value when the process is gone
func (s *Supervisor) Metrics() types.ProcessMetrics {
	s.mu.Lock()
	pid := s.pid
	terminal := s.state.Terminal()
	s.mu.Unlock()

	if pid == 0 || terminal {
		return types.ProcessMetrics{}
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return types.ProcessMetrics{}
	}

	var m types.ProcessMetrics
	if cpu, err := proc.CPUPercent(); err == nil {
		m.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		m.RSSMiB = float64(mem.RSS) / (1 << 20)
	}
	if threads, err := proc.NumThreads(); err == nil {
		m.Threads = threads
	}
	return m
}
