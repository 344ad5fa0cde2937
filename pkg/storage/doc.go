/*
Package storage persists the engine audit log.

The daemon appends two record streams to a single BoltDB file
(aetherius.db under the configured data directory):

  - events: engine events worth keeping beyond the in-memory history
    ring (state changes, crashes, player activity)
  - commands: every console command routed through the daemon, with its
    outcome

Records are keyed by bucket sequence number in big-endian, so cursor
order is append order and RecentEvents/RecentCommands are a backwards
cursor walk. The daemon prunes old records on a timer to bound file
growth.

The CLI reads the same file with OpenReadOnly, which skips the BoltDB
write lock so `system logs` works while the daemon has the database
open.
*/
package storage
