//go:build !windows

package supervisor

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/AetheriusMC/aetherius/pkg/pipeline"
)

// bridgePath is the well-known FIFO location for the server owned by pid
func bridgePath(pid int) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("aetherius_%d.pipe", pid))
}

// sweepStaleBridges unlinks FIFOs left behind by dead owners, so old
// pipe files never pile up in the temp dir or swallow a bridgeSend
// aimed at a reader that no longer exists. Returns the number removed.
func sweepStaleBridges() int {
	paths, err := filepath.Glob(filepath.Join(os.TempDir(), "aetherius_*.pipe"))
	if err != nil {
		return 0
	}
	removed := 0
	for _, p := range paths {
		base := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(p), "aetherius_"), ".pipe")
		pid, err := strconv.Atoi(base)
		if err != nil {
			continue
		}
		if alive, _ := process.PidExists(int32(pid)); alive {
			continue
		}
		if os.Remove(p) == nil {
			removed++
		}
	}
	return removed
}

// bridge is the supervisor's end of the named-pipe command path: any
// process may write raw command lines to the FIFO and the owning
// supervisor forwards them to the child's stdin
type bridge struct {
	path string
	f    *os.File
}

// openBridge creates the FIFO, unlinking a stale one left by a dead
// owner. The file is opened read-write so the open never blocks waiting
// for a writer and the reader never sees EOF while the bridge lives.
func openBridge(path string) (*bridge, error) {
	_ = os.Remove(path)
	if err := syscall.Mkfifo(path, 0o666); err != nil {
		return nil, fmt.Errorf("mkfifo %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("open fifo %s: %w", path, err)
	}
	return &bridge{path: path, f: f}, nil
}

// listen forwards each line written to the FIFO to the sender. Returns
// when the bridge is closed.
func (b *bridge) listen(sender pipeline.Sender, logger zerolog.Logger) {
	sc := bufio.NewScanner(b.f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := sender.SendCommand(line); err != nil {
			logger.Warn().Err(err).Str("command", line).Msg("bridge command rejected")
		}
	}
}

func (b *bridge) close() {
	_ = b.f.Close()
	_ = os.Remove(b.path)
}

// bridgeSend writes one raw command line to a FIFO owned by another
// process. Non-blocking open: a missing reader fails fast instead of
// hanging the caller.
func bridgeSend(path, command string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("command bridge unavailable at %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(command + "\n"); err != nil {
		return fmt.Errorf("bridge write failed: %w", err)
	}
	return nil
}
