/*
Package types defines the shared data model of the Aetherius engine.

These types cross package boundaries: the supervisor, command pipeline,
daemon, component loader and CLI all exchange them, and several of them
have an on-disk JSON representation that other processes read.

# Server lifecycle

ServerState is the five-state machine of the managed child process:

	stopped ──start──► starting ──ready──► running ──stop──► stopping ──exit──► stopped
	   ▲                  │                   │                                   │
	   └──────────────────┴──failure──► crashed ◄──unexpected exit───────────────┘

At most one process is in a non-terminal state per daemon. PersistentState
is the JSON file that records the live process (pid, start time, jar path,
working directory); its presence is the cross-process signal that a server
is believed running.

# Command queue records

CommandRequest and CommandResult are the wire format of the shared-filesystem
command queue. A request lives as pending/<id>.json until the owning
supervisor processes it and writes completed/<id>.json; the waiter consumes
and deletes the completed file.

	pending:   {"id": ..., "command": ..., "timestamp": ..., "timeout": ..., "status": "pending"}
	completed: {"id": ..., "status": "completed"|"timeout", "success": ..., "output": ..., "error": ...}

Timestamps in queue records are epoch seconds so that non-Go writers can
produce them without caring about Go's time encoding.

# Components

ComponentInfo is the recognised manifest schema for modular add-ons.
Manifest files (component.yaml or component.json) may carry extra keys;
parsing filters them down to this schema. Dependencies holds hard
dependencies only, after normalisation (engine-version constraints such as
core_version are lifted into EngineVersion).

# See Also

  - pkg/supervisor - owns ServerState transitions and PersistentState
  - pkg/pipeline - produces and consumes the queue records
  - pkg/component - discovers and resolves ComponentInfo
*/
package types
