package storage

import (
	"encoding/json"
	"time"
)

// EventEntry is one audit record of an engine event
type EventEntry struct {
	Seq   uint64          `json:"seq"`
	Topic string          `json:"topic"`
	Time  time.Time       `json:"time"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// CommandEntry is one audit record of an executed console command
type CommandEntry struct {
	Seq     uint64    `json:"seq"`
	ID      string    `json:"id"`
	Command string    `json:"command"`
	Source  string    `json:"source"`
	Success bool      `json:"success"`
	Output  string    `json:"output,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// Store defines the interface for the engine audit log
type Store interface {
	// Events
	AppendEvent(entry *EventEntry) error
	RecentEvents(limit int) ([]*EventEntry, error)

	// Commands
	AppendCommand(entry *CommandEntry) error
	RecentCommands(limit int) ([]*CommandEntry, error)

	// Utility
	Prune(keep int) error
	Close() error
}
