/*
Package log provides structured logging for the Aetherius engine, built on
zerolog.

Every long-running loop in the engine (stdout/stderr pumps, queue processor,
daemon accept loop, component runners) logs through a component-scoped child
logger so that interleaved output stays attributable:

	logger := log.WithComponent("supervisor")
	logger.Info().Int("pid", pid).Msg("server started")

# Initialization

Call Init once at process startup, before any other engine package is
constructed:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false, // console writer for interactive use
	})

Console output goes to stderr so the daemon's stdout stays free for piped
use. JSON output is intended for log shippers.

# Engine log vs. game log

This package carries the engine's own diagnostics. The managed game
server's log lines are a separate stream: they travel through the event bus
as server.log events and reach console clients as log frames. The two are
never mixed into one writer.
*/
package log
