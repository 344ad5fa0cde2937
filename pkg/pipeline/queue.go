package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AetheriusMC/aetherius/pkg/log"
	"github.com/AetheriusMC/aetherius/pkg/types"
)

const (
	pendingDirName   = "pending"
	completedDirName = "completed"

	// awaitPollInterval is how often a waiter re-checks for its result file
	awaitPollInterval = 100 * time.Millisecond
)

// Queue is the shared-filesystem command queue. Any process may enqueue;
// exactly one supervisor process dequeues. One request = one JSON file.
type Queue struct {
	pendingDir   string
	completedDir string
	logger       zerolog.Logger
}

// NewQueue creates (if needed) the pending/ and completed/ directories
// under baseDir and returns the queue rooted there.
func NewQueue(baseDir string) (*Queue, error) {
	q := &Queue{
		pendingDir:   filepath.Join(baseDir, pendingDirName),
		completedDir: filepath.Join(baseDir, completedDirName),
		logger:       log.WithComponent("pipeline"),
	}
	for _, dir := range []string{q.pendingDir, q.completedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create queue directory: %w", err)
		}
	}
	return q, nil
}

// Submit enqueues a command and returns its id. The write is atomic
// (write-temp-then-rename) so the processor never sees a partial file.
func (q *Queue) Submit(command string, timeout time.Duration) (string, error) {
	req := &types.CommandRequest{
		ID:        uuid.New().String(),
		Command:   command,
		Timestamp: epochSeconds(time.Now()),
		Timeout:   timeout.Seconds(),
		Status:    types.CommandPending,
	}
	if err := writeJSONAtomic(filepath.Join(q.pendingDir, req.ID+".json"), req); err != nil {
		return "", fmt.Errorf("failed to enqueue command: %w", err)
	}
	return req.ID, nil
}

// Await polls for the completed file of id until it appears or timeout
// elapses. The completed file is consumed: read, then deleted. On timeout
// a synthetic timeout result is returned, never an error.
func (q *Queue) Await(ctx context.Context, id string, timeout time.Duration) (*types.CommandResult, error) {
	path := filepath.Join(q.completedDir, id+".json")
	deadline := time.Now().Add(timeout)

	for {
		data, err := os.ReadFile(path)
		if err == nil {
			_ = os.Remove(path)
			var res types.CommandResult
			if err := json.Unmarshal(data, &res); err != nil {
				return nil, fmt.Errorf("corrupt completed file for %s: %w", id, err)
			}
			return &res, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read completed file: %w", err)
		}

		if time.Now().After(deadline) {
			return &types.CommandResult{
				ID:        id,
				Status:    types.CommandTimeout,
				Success:   false,
				Timestamp: epochSeconds(time.Now()),
				Error:     "timed out waiting for command result",
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(awaitPollInterval):
		}
	}
}

// Pending enumerates pending requests. Corrupt files are deleted and
// logged rather than surfaced; a bad request must never wedge the queue.
func (q *Queue) Pending() ([]*types.CommandRequest, error) {
	entries, err := os.ReadDir(q.pendingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending directory: %w", err)
	}

	var reqs []*types.CommandRequest
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(q.pendingDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var req types.CommandRequest
		if err := json.Unmarshal(data, &req); err != nil || req.ID == "" {
			q.logger.Warn().Str("file", entry.Name()).Msg("deleting corrupt pending file")
			_ = os.Remove(path)
			continue
		}
		reqs = append(reqs, &req)
	}
	return reqs, nil
}

// Complete finalises a request: the completed file is written first, then
// the pending file removed, so a crash never loses the request entirely.
func (q *Queue) Complete(res *types.CommandResult) error {
	if res.Timestamp == 0 {
		res.Timestamp = epochSeconds(time.Now())
	}
	if err := writeJSONAtomic(filepath.Join(q.completedDir, res.ID+".json"), res); err != nil {
		return fmt.Errorf("failed to write completed file: %w", err)
	}
	_ = os.Remove(filepath.Join(q.pendingDir, res.ID+".json"))
	return nil
}

// GC removes files older than maxAge from both directories, returning the
// number removed. Covers orphaned results whose waiter disconnected.
func (q *Queue) GC(maxAge time.Duration) int {
	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, dir := range []string{q.pendingDir, q.completedDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if os.Remove(filepath.Join(dir, entry.Name())) == nil {
					removed++
				}
			}
		}
	}
	return removed
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
