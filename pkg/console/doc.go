/*
Package console is the client side of the persistent console.

Dial + Run gives the interactive REPL behind `aetherius console`: a
reader goroutine prints log and response frames as they arrive while
stdin lines are forwarded as command frames. Typing "quit" or "exit"
only closes the local session; the daemon and the game server keep
running. Sending "!quit" instead asks the daemon to shut down.

Execute is the one-shot path behind `aetherius cmd`: dial, send one
command frame, and return the first response frame, skipping any log
frames interleaved on the wire.
*/
package console
