package component

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// ReadyMarker is the stdout line an out-of-process component prints
	// once it is serving
	ReadyMarker = "AETHERIUS_COMPONENT_STATUS: READY"

	// ComponentModeEnv is set in every component child environment
	ComponentModeEnv = "AETHERIUS_COMPONENT_MODE"
)

// Script names probed in a component directory, in order
var scriptNames = []string{
	"start_component",
	"start_component.sh",
}

// findScript locates the component's launch script, if any
func findScript(dir string) (string, bool) {
	for _, name := range scriptNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// runner supervises one out-of-process component child. Long-running
// children are the common case: start returns as soon as the READY
// marker appears and the child keeps serving in the background.
type runner struct {
	name   string
	script string
	dir    string
	logger zerolog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	done     chan struct{}
	exitCode int
}

func newRunner(name, script, dir string, logger zerolog.Logger) *runner {
	return &runner{name: name, script: script, dir: dir, logger: logger}
}

// start launches the script and waits for the READY marker. Outcomes:
// (true, nil) ready or clean one-shot exit; (false, nil) startup timeout,
// child left running for the caller to warn about; (false, err) the child
// exited non-zero before becoming ready.
func (r *runner) start(timeout time.Duration) (bool, error) {
	cmd := exec.Command(r.script)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), ComponentModeEnv+"=1")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return false, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return false, err
	}
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("failed to launch %s: %w", r.script, err)
	}

	ready := make(chan struct{})
	done := make(chan struct{})

	r.mu.Lock()
	r.cmd = cmd
	r.done = done
	r.mu.Unlock()

	var readyOnce sync.Once
	go r.pump(stdout, false, func(line string) {
		if strings.Contains(line, ReadyMarker) {
			readyOnce.Do(func() { close(ready) })
		}
	})
	go r.pump(stderr, true, nil)
	go func() {
		_ = cmd.Wait()
		r.mu.Lock()
		if cmd.ProcessState != nil {
			r.exitCode = cmd.ProcessState.ExitCode()
		}
		r.cmd = nil
		r.mu.Unlock()
		close(done)
	}()

	select {
	case <-ready:
		return true, nil
	case <-done:
		r.mu.Lock()
		code := r.exitCode
		r.mu.Unlock()
		if code != 0 {
			return false, fmt.Errorf("component %s exited with code %d before ready", r.name, code)
		}
		// One-shot setup scripts exit 0 without a marker
		return true, nil
	case <-time.After(timeout):
		return false, nil
	}
}

// pump mirrors one child stream into the engine log
func (r *runner) pump(stream io.Reader, stderr bool, onLine func(string)) {
	sc := bufio.NewScanner(stream)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if onLine != nil {
			onLine(line)
		}
		if stderr {
			r.logger.Warn().Str("component", r.name).Msg(line)
		} else {
			r.logger.Info().Str("component", r.name).Msg(line)
		}
	}
}

// stop asks the child to exit and force-kills after grace
func (r *runner) stop(grace time.Duration) {
	r.mu.Lock()
	cmd := r.cmd
	done := r.done
	r.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	// Interrupt is unsupported on some platforms; the kill below covers it
	_ = cmd.Process.Signal(os.Interrupt)

	select {
	case <-done:
		return
	case <-time.After(grace):
	}
	_ = cmd.Process.Kill()
	<-done
}

// running reports whether the child is still alive
func (r *runner) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmd != nil
}
