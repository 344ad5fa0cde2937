package pipeline

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultCaptureMaxAge is the safety-net expiry for forgotten captures
const DefaultCaptureMaxAge = 30 * time.Second

// Per-verb reply patterns. A captured line must match one of its verb's
// patterns (or a generic error) to count as output of that command.
var verbPatterns = map[string][]*regexp.Regexp{
	"list": {
		regexp.MustCompile(`(?i)There are \d+(/\d+)? (of a max of \d+ )?players online`),
		regexp.MustCompile(`(?i)There are no players online`),
		regexp.MustCompile(`(?i)Players online \(\d+\)`),
	},
	"give": {
		regexp.MustCompile(`(?i)Gave \d+ .+ to .+`),
		regexp.MustCompile(`(?i)Could not give .+ to .+`),
		regexp.MustCompile(`(?i)Unknown item`),
		regexp.MustCompile(`(?i)Player .+ not found`),
	},
	"tp": {
		regexp.MustCompile(`(?i)Teleported .+ to`),
		regexp.MustCompile(`(?i)Could not teleport`),
		regexp.MustCompile(`(?i)Player .+ not found`),
		regexp.MustCompile(`(?i)Invalid coordinates`),
	},
	"gamemode": {
		regexp.MustCompile(`(?i)Set .+'s game mode to`),
		regexp.MustCompile(`(?i)Player .+ not found`),
		regexp.MustCompile(`(?i)Invalid game mode`),
	},
	"time": {
		regexp.MustCompile(`(?i)Set the time to`),
		regexp.MustCompile(`(?i)Added \d+ to the time`),
		regexp.MustCompile(`(?i)The time is \d+`),
	},
	"weather": {
		regexp.MustCompile(`(?i)Set the weather to`),
		regexp.MustCompile(`(?i)Weather set to`),
	},
	"difficulty": {
		regexp.MustCompile(`(?i)Set the difficulty to`),
		regexp.MustCompile(`(?i)Difficulty set to`),
		regexp.MustCompile(`(?i)The difficulty is`),
	},
}

// genericErrorRe matches error replies regardless of verb
var genericErrorRe = regexp.MustCompile(
	`(?i)Unknown command|Incorrect argument for command|Permission denied|Command not found|Syntax error|Usage:`)

// playerListRe matches the comma-separated player-name list the server
// prints after the "players online" header
var playerListRe = regexp.MustCompile(
	`^[A-Za-z_][A-Za-z0-9_]{2,15}(,\s*[A-Za-z_][A-Za-z0-9_]{2,15})*$`)

// Line-prefix cleaning for captured output
var (
	ansiRe          = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
	captureClockRe  = regexp.MustCompile(`^\[?\d{2}:\d{2}:\d{2}(?:\.\d+)?\]?[: ]\s*`)
	captureThreadRe = regexp.MustCompile(`^\[[^\]]*/[A-Z]+\]:?\s*`)
	captureLevelRe  = regexp.MustCompile(`^\[(?:INFO|WARN|WARNING|ERROR|DEBUG|FATAL|TRACE)\]:?\s*`)
)

// CleanLine strips ANSI sequences and the timestamp/level/thread prefix,
// returning the bare message a capture matches against.
func CleanLine(line string) string {
	s := ansiRe.ReplaceAllString(line, "")
	s = captureClockRe.ReplaceAllString(s, "")
	s = captureThreadRe.ReplaceAllString(s, "")
	s = captureLevelRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// BaseVerb extracts the command's base verb: leading slash stripped,
// first word, lowercased. "time query day" -> "time".
func BaseVerb(command string) string {
	command = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(command), "/"))
	if i := strings.IndexByte(command, ' '); i >= 0 {
		command = command[:i]
	}
	verb := strings.ToLower(command)
	if verb == "teleport" {
		verb = "tp"
	}
	return verb
}

// rawKeepLines bounds the unfiltered per-window buffer; the fallback
// reduction only ever looks at the tail
const rawKeepLines = 64

// Capture is one command's open output window
type Capture struct {
	ID      string
	Verb    string
	Started time.Time
	lines   []string
	raw     []string
}

// matches reports whether a cleaned line counts as this capture's output
func (c *Capture) matches(cleaned string) bool {
	if cleaned == "" {
		return false
	}
	if genericErrorRe.MatchString(cleaned) {
		return true
	}
	for _, re := range verbPatterns[c.Verb] {
		if re.MatchString(cleaned) {
			return true
		}
	}
	// The list verb's player names arrive as a bare comma-separated line
	if c.Verb == "list" && playerListRe.MatchString(cleaned) {
		return true
	}
	return false
}

// CaptureSet tracks at most one active capture per command id. The
// supervisor feeds every server log line through it; open captures keep
// the lines that look like their command's reply.
type CaptureSet struct {
	mu     sync.Mutex
	active map[string]*Capture
	maxAge time.Duration
}

// NewCaptureSet creates a set whose captures self-expire after maxAge
func NewCaptureSet(maxAge time.Duration) *CaptureSet {
	if maxAge <= 0 {
		maxAge = DefaultCaptureMaxAge
	}
	return &CaptureSet{
		active: make(map[string]*Capture),
		maxAge: maxAge,
	}
}

// Open starts a capture window for the command. An existing capture for
// the same id is replaced.
func (s *CaptureSet) Open(id, command string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[id] = &Capture{
		ID:      id,
		Verb:    BaseVerb(command),
		Started: time.Now(),
	}
}

// Feed offers one raw log line to every open capture. Each window keeps
// everything it sees, so a reply that matches no known pattern can still
// be recovered from the tail when the window closes.
func (s *CaptureSet) Feed(line string) {
	cleaned := CleanLine(line)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.active {
		if c.matches(cleaned) {
			c.lines = append(c.lines, cleaned)
		}
		c.raw = append(c.raw, line)
		if len(c.raw) > rawKeepLines {
			c.raw = c.raw[len(c.raw)-rawKeepLines:]
		}
	}
}

// Close ends the capture for id, returning the lines that matched the
// verb's reply patterns and everything the window saw
func (s *CaptureSet) Close(id string) (matched, raw []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.active[id]
	if !ok {
		return nil, nil
	}
	delete(s.active, id)
	return c.lines, c.raw
}

// Expire drops captures older than the set's max age, returning the
// number dropped. Safety net for callers that never Close.
func (s *CaptureSet) Expire() int {
	cutoff := time.Now().Add(-s.maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id, c := range s.active {
		if c.Started.Before(cutoff) {
			delete(s.active, id)
			dropped++
		}
	}
	return dropped
}

// Evaluate reduces captured lines to a command result. Success is false
// when any line is a generic error reply, or when nothing was captured
// for a verb that always replies.
func Evaluate(verb string, lines []string) (output string, success bool) {
	for _, l := range lines {
		if genericErrorRe.MatchString(l) {
			return strings.Join(lines, "\n"), false
		}
	}
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

// Summarize picks the interesting lines out of an unfiltered capture, for
// the in-process path that collects every log line in the window. Verbs
// with a well-known reply shape keep only matching lines; anything else
// keeps the last few non-empty lines.
func Summarize(verb string, lines []string) []string {
	ref := &Capture{Verb: verb}
	var matched []string
	for _, l := range lines {
		cleaned := CleanLine(l)
		if ref.matches(cleaned) {
			matched = append(matched, cleaned)
		}
	}
	if len(matched) > 0 {
		return matched
	}

	var tail []string
	for _, l := range lines {
		if cleaned := CleanLine(l); cleaned != "" {
			tail = append(tail, cleaned)
		}
	}
	const keep = 3
	if len(tail) > keep {
		tail = tail[len(tail)-keep:]
	}
	return tail
}

// Reduce turns a closed window into a command result. Pattern-matched
// reply lines win; otherwise the window's unfiltered lines are reduced
// through Summarize so unrecognised replies still surface. A window that
// saw nothing at all is a success: the command was delivered and the
// server had nothing to say.
func Reduce(verb string, matched, raw []string) (output string, success bool) {
	lines := matched
	if len(lines) == 0 {
		lines = Summarize(verb, raw)
	}
	if len(lines) == 0 {
		return "", true
	}
	return Evaluate(verb, lines)
}
