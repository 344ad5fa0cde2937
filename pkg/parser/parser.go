package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AetheriusMC/aetherius/pkg/events"
	"github.com/AetheriusMC/aetherius/pkg/log"
)

// Pattern turns a matching log message into a typed domain event.
// Patterns use named capture groups only; Build receives the captured
// groups and constructs the event. Gate, when set, can veto a match
// after the regex succeeded.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
	Gate  func(groups map[string]string) bool
	Build func(groups map[string]string) (events.Event, error)
}

// Parser converts raw server log lines into events. Patterns are tried in
// registration order; the first match wins, so more specific patterns must
// be registered before more general ones.
type Parser struct {
	patterns []Pattern
	logger   zerolog.Logger
}

// Helper regexes for the line prefix. A typical vanilla line looks like
//
//	[12:34:56] [Server thread/INFO]: Alice joined the game
var (
	levelRe      = regexp.MustCompile(`\[(?:[^\[\]/]+/)?(INFO|WARN|WARNING|ERROR|DEBUG|FATAL|TRACE)\]`)
	timePrefixRe = regexp.MustCompile(`^\[?(\d{2}:\d{2}:\d{2})(?:\.\d+)?\]?[: ]\s*`)
	datePrefixRe = regexp.MustCompile(`^\[?(\d{4}-\d{2}-\d{2})[ T](\d{2}:\d{2}:\d{2})\]?[: ]\s*`)
	threadRe     = regexp.MustCompile(`^\[[^\]]*/[A-Z]+\]:?\s*`)
	bareLevelRe  = regexp.MustCompile(`^\[(?:INFO|WARN|WARNING|ERROR|DEBUG|FATAL|TRACE)\]:?\s*`)
)

// New returns a parser preloaded with the built-in pattern set
func New() *Parser {
	return &Parser{
		patterns: builtinPatterns(),
		logger:   log.WithComponent("parser"),
	}
}

// NewEmpty returns a parser with no patterns, for callers that register
// their own set
func NewEmpty() *Parser {
	return &Parser{logger: log.WithComponent("parser")}
}

// AddPattern appends a pattern after the built-ins
func (p *Parser) AddPattern(pat Pattern) {
	p.patterns = append(p.patterns, pat)
}

// PatternNames returns the names of all registered patterns, in order
func (p *Parser) PatternNames() []string {
	names := make([]string, len(p.patterns))
	for i, pat := range p.patterns {
		names[i] = pat.Name
	}
	return names
}

// Parse converts one raw line into events. The result always starts with
// exactly one LogLine; it is followed by at most one domain event, or an
// UnknownLog when the line is non-empty and nothing matched.
func (p *Parser) Parse(line string) []events.Event {
	raw := strings.TrimRight(line, "\r\n")

	level := "INFO"
	if m := levelRe.FindStringSubmatch(raw); m != nil {
		level = m[1]
		if level == "WARNING" {
			level = "WARN"
		}
	}

	ts, msg := splitPrefix(raw)

	out := []events.Event{&events.LogLine{
		Base:    events.NewBase(),
		Raw:     raw,
		Level:   level,
		LogTime: ts,
		Message: msg,
	}}

	if strings.TrimSpace(raw) == "" {
		return out
	}

	attempted := make([]string, 0, len(p.patterns))
	for _, pat := range p.patterns {
		attempted = append(attempted, pat.Name)

		m := pat.Regex.FindStringSubmatch(msg)
		if m == nil {
			continue
		}

		groups := make(map[string]string)
		for i, name := range pat.Regex.SubexpNames() {
			if name != "" && m[i] != "" {
				groups[name] = m[i]
			}
		}

		if pat.Gate != nil && !pat.Gate(groups) {
			continue
		}

		ev, err := pat.Build(groups)
		if err != nil {
			p.logger.Warn().Err(err).Str("pattern", pat.Name).Str("line", raw).
				Msg("pattern matched but event construction failed")
			continue
		}
		return append(out, ev)
	}

	return append(out, &events.UnknownLog{
		Base:      events.NewBase(),
		Raw:       raw,
		Attempted: attempted,
	})
}

// splitPrefix extracts the line's own timestamp and strips the
// timestamp/level/thread prefix, returning the bare message.
func splitPrefix(raw string) (time.Time, string) {
	ts := time.Now()
	msg := raw

	if m := datePrefixRe.FindStringSubmatch(msg); m != nil {
		if parsed, err := time.ParseInLocation("2006-01-02 15:04:05", m[1]+" "+m[2], time.Local); err == nil {
			ts = parsed
		}
		msg = msg[len(m[0]):]
	} else if m := timePrefixRe.FindStringSubmatch(msg); m != nil {
		if parsed, err := time.ParseInLocation("15:04:05", m[1], time.Local); err == nil {
			now := time.Now()
			ts = time.Date(now.Year(), now.Month(), now.Day(),
				parsed.Hour(), parsed.Minute(), parsed.Second(), 0, time.Local)
		}
		msg = msg[len(m[0]):]
	}

	msg = threadRe.ReplaceAllString(msg, "")
	msg = bareLevelRe.ReplaceAllString(msg, "")
	return ts, strings.TrimSpace(msg)
}
