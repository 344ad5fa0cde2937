package types

import (
	"time"
)

// ServerState represents the lifecycle state of the managed game server
type ServerState string

const (
	ServerStopped  ServerState = "stopped"
	ServerStarting ServerState = "starting"
	ServerRunning  ServerState = "running"
	ServerStopping ServerState = "stopping"
	ServerCrashed  ServerState = "crashed"
)

// Terminal reports whether the state allows a new Start
func (s ServerState) Terminal() bool {
	return s == ServerStopped || s == ServerCrashed
}

// PersistentState is the on-disk record of a live server process.
// It is serialised to a single JSON file under the server directory;
// the file exists iff a process is believed live.
type PersistentState struct {
	PID              int       `json:"pid"`
	StartTime        time.Time `json:"start_time"`
	JarPath          string    `json:"jar_path"`
	WorkingDirectory string    `json:"working_directory"`
}

// CommandStatus represents the processing state of a queued command
type CommandStatus string

const (
	CommandPending   CommandStatus = "pending"
	CommandCompleted CommandStatus = "completed"
	CommandTimeout   CommandStatus = "timeout"
)

// CommandRequest is one enqueued command in the cross-process file queue.
// One request = one JSON file named <id>.json under pending/.
type CommandRequest struct {
	ID        string        `json:"id"`
	Command   string        `json:"command"`
	Timestamp float64       `json:"timestamp"` // epoch seconds
	Timeout   float64       `json:"timeout"`   // seconds
	Status    CommandStatus `json:"status"`
}

// Age returns how long the request has been enqueued
func (r *CommandRequest) Age(now time.Time) time.Duration {
	enqueued := time.Unix(0, int64(r.Timestamp*float64(time.Second)))
	return now.Sub(enqueued)
}

// Expired reports whether the request outlived its timeout
func (r *CommandRequest) Expired(now time.Time) bool {
	return r.Age(now) > time.Duration(r.Timeout*float64(time.Second))
}

// CommandResult is the completed counterpart of a CommandRequest,
// written to completed/<id>.json and consumed (deleted) by the waiter.
type CommandResult struct {
	ID            string        `json:"id"`
	Status        CommandStatus `json:"status"`
	Success       bool          `json:"success"`
	Timestamp     float64       `json:"timestamp"`
	Error         string        `json:"error,omitempty"`
	Output        string        `json:"output,omitempty"`
	ExecutionTime float64       `json:"execution_time,omitempty"` // seconds
}

// ComponentState represents the lifecycle state of a managed component
type ComponentState string

const (
	ComponentDiscovered ComponentState = "discovered"
	ComponentLoaded     ComponentState = "loaded"
	ComponentEnabled    ComponentState = "enabled"
	ComponentDisabled   ComponentState = "disabled"
	ComponentUnloaded   ComponentState = "unloaded"
	ComponentFailed     ComponentState = "failed"
)

// ComponentInfo is the recognised manifest schema for a component.
// Manifests may carry extra keys; anything outside this schema is dropped.
type ComponentInfo struct {
	Name                 string         `json:"name" yaml:"name"`
	DisplayName          string         `json:"display_name" yaml:"display_name"`
	Description          string         `json:"description" yaml:"description"`
	Version              string         `json:"version" yaml:"version"`
	Author               string         `json:"author" yaml:"author"`
	Website              string         `json:"website" yaml:"website"`
	Dependencies         []string       `json:"dependencies" yaml:"-"` // hard deps, normalised
	SoftDependencies     []string       `json:"soft_dependencies" yaml:"soft_dependencies"`
	LoadBefore           []string       `json:"load_before" yaml:"load_before"`
	EngineVersion        string         `json:"engine_version" yaml:"engine_version"`
	Category             string         `json:"category" yaml:"category"`
	Permissions          []string       `json:"permissions" yaml:"permissions"`
	Tags                 []string       `json:"tags" yaml:"tags"`
	LoadOrder            int            `json:"load_order" yaml:"load_order"`
	ProvidesWebInterface bool           `json:"provides_web_interface" yaml:"provides_web_interface"`
	ConfigSchema         map[string]any `json:"config_schema" yaml:"config_schema"`
	DefaultConfig        map[string]any `json:"default_config" yaml:"default_config"`

	// Directory is where the manifest was discovered. Not part of the schema.
	Directory string `json:"-" yaml:"-"`
}

// ProcessMetrics is a best-effort resource snapshot of the child process
type ProcessMetrics struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSMiB     float64 `json:"rss_mib"`
	Threads    int32   `json:"threads"`
}
