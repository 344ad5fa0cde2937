package parser

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/AetheriusMC/aetherius/pkg/events"
)

// Lag severity thresholds, in milliseconds behind
const (
	lagModerateMS = 5000
	lagSevereMS   = 15000
)

func lagSeverity(ms float64) string {
	switch {
	case ms >= lagSevereMS:
		return "severe"
	case ms >= lagModerateMS:
		return "moderate"
	default:
		return "minor"
	}
}

// builtinPatterns covers the vanilla server's well-known lines. Order
// matters: first match wins, so specific variants come before general ones.
func builtinPatterns() []Pattern {
	return []Pattern{
		{
			Name:  "player_join_address",
			Regex: regexp.MustCompile(`^(?P<player>[A-Za-z0-9_]+)\[/(?P<ip>[^\]]+)\] logged in with entity id \d+`),
			Build: func(g map[string]string) (events.Event, error) {
				return &events.PlayerJoin{
					Base:   events.NewBase(),
					Player: g["player"],
					IP:     g["ip"],
				}, nil
			},
		},
		{
			Name:  "player_join",
			Regex: regexp.MustCompile(`^(?P<player>[A-Za-z0-9_]+) joined the game$`),
			Build: func(g map[string]string) (events.Event, error) {
				return &events.PlayerJoin{Base: events.NewBase(), Player: g["player"]}, nil
			},
		},
		{
			Name:  "player_leave",
			Regex: regexp.MustCompile(`^(?P<player>[A-Za-z0-9_]+) left the game$`),
			Build: func(g map[string]string) (events.Event, error) {
				return &events.PlayerLeave{Base: events.NewBase(), Player: g["player"]}, nil
			},
		},
		{
			Name:  "player_chat",
			Regex: regexp.MustCompile(`^<(?P<player>[A-Za-z0-9_]+)> (?P<message>.*)$`),
			Build: func(g map[string]string) (events.Event, error) {
				return &events.PlayerChat{
					Base:    events.NewBase(),
					Player:  g["player"],
					Message: g["message"],
				}, nil
			},
		},
		{
			Name:  "player_death_slain",
			Regex: regexp.MustCompile(`^(?P<player>[A-Za-z0-9_]+) was slain by (?P<killer>[A-Za-z0-9_ ]+)$`),
			Build: func(g map[string]string) (events.Event, error) {
				return &events.PlayerDeath{
					Base:         events.NewBase(),
					Player:       g["player"],
					Killer:       g["killer"],
					DeathMessage: "was slain by " + g["killer"],
				}, nil
			},
		},
		{
			Name: "player_death",
			Regex: regexp.MustCompile(`^(?P<player>[A-Za-z0-9_]+) ` +
				`(?P<cause>died|drowned|blew up|burned to death|starved to death|withered away|` +
				`fell from a high place|hit the ground too hard|tried to swim in lava)$`),
			Build: func(g map[string]string) (events.Event, error) {
				msg := g["cause"]
				if msg == "" {
					msg = "died"
				}
				return &events.PlayerDeath{
					Base:         events.NewBase(),
					Player:       g["player"],
					DeathMessage: msg,
				}, nil
			},
		},
		{
			Name:  "player_advancement",
			Regex: regexp.MustCompile(`^(?P<player>[A-Za-z0-9_]+) has made the advancement \[(?P<advancement>[^\]]+)\]$`),
			Build: func(g map[string]string) (events.Event, error) {
				return &events.PlayerAdvancement{
					Base:        events.NewBase(),
					Player:      g["player"],
					Advancement: g["advancement"],
				}, nil
			},
		},
		{
			Name:  "server_ready",
			Regex: regexp.MustCompile(`^Done \((?P<startup_time>[0-9.]+)s?\)!`),
			Build: func(g map[string]string) (events.Event, error) {
				secs, err := strconv.ParseFloat(g["startup_time"], 64)
				if err != nil {
					return nil, fmt.Errorf("bad startup time %q: %w", g["startup_time"], err)
				}
				return &events.ServerReady{Base: events.NewBase(), StartupSeconds: secs}, nil
			},
		},
		{
			Name:  "server_stopping",
			Regex: regexp.MustCompile(`^Stopping (?:the )?server`),
			Build: func(map[string]string) (events.Event, error) {
				return &events.ServerStopping{Base: events.NewBase()}, nil
			},
		},
		{
			Name: "lag_spike",
			Regex: regexp.MustCompile(`^Can't keep up! Is the server overloaded\? ` +
				`Running (?P<duration>\d+)ms or (?P<ticks>\d+) ticks behind`),
			Build: func(g map[string]string) (events.Event, error) {
				ms, err := strconv.ParseFloat(g["duration"], 64)
				if err != nil {
					return nil, fmt.Errorf("bad lag duration %q: %w", g["duration"], err)
				}
				ticks, _ := strconv.Atoi(g["ticks"])
				return &events.LagSpike{
					Base:        events.NewBase(),
					DurationMS:  ms,
					TicksBehind: ticks,
					Severity:    lagSeverity(ms),
				}, nil
			},
		},
		{
			Name:  "tps_report",
			Regex: regexp.MustCompile(`^(?:Mean |Current )?TPS(?: from last [^:]+)?: (?P<tps>[0-9.]+)`),
			Build: func(g map[string]string) (events.Event, error) {
				tps, err := strconv.ParseFloat(g["tps"], 64)
				if err != nil {
					return nil, fmt.Errorf("bad tps value %q: %w", g["tps"], err)
				}
				return &events.TPSReport{Base: events.NewBase(), TPS: tps}, nil
			},
		},
	}
}
