package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AetheriusMC/aetherius/pkg/types"
)

// DefaultStateFileName is the persistent state file under the working dir
const DefaultStateFileName = "server_state.json"

// StateFilePath returns the persistent state location for a working dir
func StateFilePath(workingDir string) string {
	return filepath.Join(workingDir, DefaultStateFileName)
}

// LoadState reads the persistent state file. CLI status commands read it
// directly; the supervisor is the only writer.
func LoadState(path string) (*types.PersistentState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st types.PersistentState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("corrupt state file %s: %w", path, err)
	}
	return &st, nil
}

// writeState persists the state atomically so readers never see a partial
// file
func writeState(path string, st *types.PersistentState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// removeState clears the file; absence means no server
func removeState(path string) {
	_ = os.Remove(path)
}
