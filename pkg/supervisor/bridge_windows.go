//go:build windows

package supervisor

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/AetheriusMC/aetherius/pkg/pipeline"
)

// The named-pipe bridge needs a Windows named-pipe implementation; until
// one lands, cross-process submission falls back to the file queue.
var errBridgeUnsupported = errors.New("command bridge not supported on windows")

func bridgePath(pid int) string {
	return fmt.Sprintf(`\\.\pipe\aetherius_%d`, pid)
}

type bridge struct{}

func openBridge(path string) (*bridge, error) {
	return nil, errBridgeUnsupported
}

func (b *bridge) listen(sender pipeline.Sender, logger zerolog.Logger) {}

func (b *bridge) close() {}

func bridgeSend(path, command string) error {
	return errBridgeUnsupported
}

// Named pipes vanish with their owner; nothing to sweep
func sweepStaleBridges() int { return 0 }
