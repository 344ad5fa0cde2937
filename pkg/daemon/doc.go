/*
Package daemon is the persistent console server.

The daemon outlives any single client: it owns the game server (through
the GameServer interface), the command pipeline, and the event bus, and
serves console clients over a Unix domain socket with newline-delimited
JSON frames:

	client -> daemon:  {"type":"command","command":"/list"}
	daemon -> clients: {"type":"log","content":"...","is_error":false}
	daemon -> client:  {"type":"response","success":true,"output":"..."}

Every ServerLog event is broadcast to all sessions as a log frame.
Command frames route by prefix:

	/...  game-server command, answered with the captured reply
	$...  component loader verb (list scan load enable disable reload info stats)
	!...  daemon system command (status, server start|stop|restart, help, quit)

Bare text is never forwarded to the server; the client gets a hint
frame instead.

Start probes an existing socket before claiming it: a live daemon fails
fast with ErrSocketInUse, a stale file is unlinked. !quit (or an OS
signal, handled by the CLI) triggers shutdown: the caller stops the
child, the daemon closes every session and removes the socket.

When an audit store is wired, the daemon appends noteworthy events and
every routed command to it; `system logs` reads them back without
stopping the daemon.
*/
package daemon
