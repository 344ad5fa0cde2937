/*
Package pipeline implements the cross-process command queue and the output
capture that gives commands synchronous request/response semantics.

The game server has no reply protocol: a command goes to its stdin, the
reply is just more log lines. Two cooperating pieces bridge that gap.

# File queue

The queue is two shared-filesystem directories under the server working
directory:

	pending/<id>.json     submitted requests, one file each
	completed/<id>.json   results, written by the processor, consumed by the waiter

Any process may Submit; exactly one supervisor runs the Processor, which
polls pending/ (default every 500ms), executes each request against the
live server, and writes the completed file. Await on the submitting side
polls for that file, reads it and deletes it. All writes are
write-temp-then-rename so readers never see partial JSON. Corrupt pending
files are deleted and logged; stale files in either directory are removed
by GC after five minutes.

# Output capture

A Capture is a per-command window over the server's log output. While
open, every log line is cleaned (ANSI stripped, timestamp and level
prefixes removed) and kept iff it matches the command's base-verb reply
patterns - "There are N players online" for list, "Teleported X to" for
tp, and so on - or a generic error reply such as "Unknown command".
Captures self-expire after 30 seconds as a safety net.

Closing a window yields both the pattern-matched lines and everything
the window saw. Reduce turns them into (output, success): matched lines
win, an unrecognised reply falls back to the tail of the window's
non-empty lines via Summarize, and any generic error reply means
failure. Both the queue processor and the supervisor's synchronous
path reduce this way.
*/
package pipeline
