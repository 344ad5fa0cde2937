package events

import (
	"time"

	"github.com/AetheriusMC/aetherius/pkg/types"
)

// Topic constants for every engine event. Topics are dotted so ancestor
// listeners work: Register("player", ...) sees every player.* event.
const (
	TopicServerStateChanged = "server.state_changed"
	TopicServerStarted      = "server.started"
	TopicServerStopped      = "server.stopped"
	TopicServerCrashed      = "server.crashed"
	TopicServerLog          = "server.log"
	TopicServerReady        = "server.ready"
	TopicServerStopping     = "server.stopping"
	TopicServerLag          = "server.lag"
	TopicServerTPS          = "server.tps"

	TopicLogLine    = "log.line"
	TopicLogUnknown = "log.unknown"

	TopicPlayerJoin        = "player.join"
	TopicPlayerLeave       = "player.leave"
	TopicPlayerChat        = "player.chat"
	TopicPlayerDeath       = "player.death"
	TopicPlayerAdvancement = "player.advancement"

	TopicComponentStateChanged = "component.state_changed"
)

// ServerStateChanged fires on every supervisor state transition, before any
// downstream event that implies the new state.
type ServerStateChanged struct {
	Base
	From types.ServerState `json:"from"`
	To   types.ServerState `json:"to"`
}

func (*ServerStateChanged) Topic() string { return TopicServerStateChanged }

// ServerStarted fires once per accepted start, after the ready transition
type ServerStarted struct {
	Base
	PID            int     `json:"pid"`
	StartupSeconds float64 `json:"startup_seconds"`
}

func (*ServerStarted) Topic() string { return TopicServerStarted }

// ServerStopped fires on clean exit
type ServerStopped struct {
	Base
	ExitCode      int     `json:"exit_code"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (*ServerStopped) Topic() string { return TopicServerStopped }

// ServerCrashed fires when the child exits outside a requested stop
type ServerCrashed struct {
	Base
	ExitCode    int    `json:"exit_code"`
	LastStderr  string `json:"last_stderr"`
	WillRestart bool   `json:"will_restart"`
}

func (*ServerCrashed) Topic() string { return TopicServerCrashed }

// ServerLog is one raw line from the child's stdout or stderr pump
type ServerLog struct {
	Base
	Level   string `json:"level"` // "INFO" for stdout, "ERROR" for stderr
	Message string `json:"message"`
	Raw     string `json:"raw"`
}

func (*ServerLog) Topic() string { return TopicServerLog }

// ServerReady fires when the parser sees the server's done line
type ServerReady struct {
	Base
	StartupSeconds float64 `json:"startup_seconds"`
}

func (*ServerReady) Topic() string { return TopicServerReady }

// ServerStopping fires when the server logs its own shutdown
type ServerStopping struct {
	Base
}

func (*ServerStopping) Topic() string { return TopicServerStopping }

// LagSpike fires on the server's "Can't keep up" warning
type LagSpike struct {
	Base
	DurationMS  float64 `json:"duration_ms"`
	TicksBehind int     `json:"ticks_behind"`
	Severity    string  `json:"severity"`
}

func (*LagSpike) Topic() string { return TopicServerLag }

// TPSReport carries a ticks-per-second reading from the server log
type TPSReport struct {
	Base
	TPS float64 `json:"tps"`
}

func (*TPSReport) Topic() string { return TopicServerTPS }

// LogLine is emitted by the parser for every input line, before any
// domain event derived from the same line.
type LogLine struct {
	Base
	Raw     string    `json:"raw"`
	Level   string    `json:"level"`
	LogTime time.Time `json:"log_time"`
	Message string    `json:"message"`
}

func (*LogLine) Topic() string { return TopicLogLine }

// UnknownLog is the fallback for non-empty lines no pattern matched
type UnknownLog struct {
	Base
	Raw       string   `json:"raw"`
	Attempted []string `json:"attempted"`
}

func (*UnknownLog) Topic() string { return TopicLogUnknown }

// PlayerJoin fires when a player connects
type PlayerJoin struct {
	Base
	Player string `json:"player"`
	IP     string `json:"ip,omitempty"`
}

func (*PlayerJoin) Topic() string { return TopicPlayerJoin }

// PlayerLeave fires when a player disconnects
type PlayerLeave struct {
	Base
	Player string `json:"player"`
}

func (*PlayerLeave) Topic() string { return TopicPlayerLeave }

// PlayerChat carries one chat message
type PlayerChat struct {
	Base
	Player  string `json:"player"`
	Message string `json:"message"`
}

func (*PlayerChat) Topic() string { return TopicPlayerChat }

// PlayerDeath fires on a death line. DeathMessage defaults to
// "was slain by <killer>" when a killer is known, otherwise "died".
type PlayerDeath struct {
	Base
	Player       string `json:"player"`
	Killer       string `json:"killer,omitempty"`
	DeathMessage string `json:"death_message"`
}

func (*PlayerDeath) Topic() string { return TopicPlayerDeath }

// PlayerAdvancement fires when a player earns an advancement
type PlayerAdvancement struct {
	Base
	Player      string `json:"player"`
	Advancement string `json:"advancement"`
}

func (*PlayerAdvancement) Topic() string { return TopicPlayerAdvancement }

// ComponentStateChanged fires on component lifecycle transitions
type ComponentStateChanged struct {
	Base
	Name   string               `json:"name"`
	From   types.ComponentState `json:"from"`
	To     types.ComponentState `json:"to"`
	Reason string               `json:"reason,omitempty"`
}

func (*ComponentStateChanged) Topic() string { return TopicComponentStateChanged }
