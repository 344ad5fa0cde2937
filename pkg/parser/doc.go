/*
Package parser converts raw game-server log lines into typed events.

The supervisor's stdout pump hands every line to Parse. The result always
begins with exactly one LogLine event carrying the extracted level,
timestamp and bare message; it is followed by at most one domain event
(player join, chat, death, advancement, server ready, lag spike, ...) from
the first matching pattern, or an UnknownLog for non-empty lines nothing
matched.

# Line anatomy

A vanilla server line is prefixed with a clock and a thread/level tag:

	[12:34:56] [Server thread/INFO]: Alice joined the game

Parse strips both before pattern matching, so patterns see only the bare
message. Timestamps come in two shapes: a bare HH:MM:SS clock (combined
with today's date) or a full YYYY-MM-DD HH:MM:SS.

# Patterns

A Pattern is a named regex over the bare message with named capture groups,
a Build function constructing the event from the captures, and an optional
Gate predicate that can veto a match after the regex succeeded:

	p.AddPattern(parser.Pattern{
		Name:  "backup_done",
		Regex: regexp.MustCompile(`^Backup complete \((?P<size>\d+) MiB\)$`),
		Build: func(g map[string]string) (events.Event, error) { ... },
	})

Patterns are tried in registration order and the first match wins, so
specific variants must be registered before general ones. A Build error is
logged and matching continues with the next pattern; the parser never
aborts on a bad line.
*/
package parser
