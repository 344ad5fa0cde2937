/*
Package supervisor owns the managed game-server child process.

At most one child is supervised at a time, surfaced through a five-state
machine:

	Stopped ──Start──► Starting ──ready──► Running ──Stop──► Stopping ──exit──► Stopped
	   ▲                  │                   │                                  │
	   │                  └──────failure─────►Crashed◄────unexpected exit────────┘
	   └────────────────────── Start is accepted again from Crashed

Every transition fires a ServerStateChanged event before any downstream
event that implies the new state (ServerStarted, ServerStopped,
ServerCrashed).

# Launch and readiness

Start spawns the child in its own process group with piped stdio, writes
the persistent state file, creates the per-pid command FIFO, and starts
four background goroutines: the stdout pump, the stderr pump, the exit
monitor, and the bridge listener. The Starting -> Running promotion is
driven by the parser's ServerReady event (the server's "Done (…s)!"
line); if no ready line appears within StartupGrace the supervisor
promotes anyway.

The stdout pump feeds three consumers per line: the shared capture set
(command replies), a ServerLog event, and the log parser's typed events.
The stderr pump mirrors lines as ERROR-level ServerLog events and keeps
a short tail that rides along in ServerCrashed.

# Stopping

Stop writes "stop" to the child's stdin and waits up to StopTimeout.
On timeout it signals the process group, waits KillGrace, then
force-kills. The monitor goroutine observes the exit and performs the
terminal transition: Stopped when a stop was requested, Crashed
otherwise. Crashes carry the stderr tail; auto-restart is off unless
configured.

# Adoption

When the persistent state file names a pid that is still alive and whose
command line looks like the game server, Adopt attaches to it without
pipes: SendCommand routes through the FIFO bridge, stop escalates
through signals, and a poller stands in for the missing Wait. Stale
records are removed.

# Command bridge

The FIFO at /tmp/aetherius_<pid>.pipe accepts raw command lines from any
process; the owning supervisor forwards them to stdin. No framing, no
reply. Windows has no FIFO implementation yet; the file queue is the
cross-process path there.
*/
package supervisor
