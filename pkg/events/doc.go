/*
Package events implements the engine-wide event bus.

Every observable fact in the engine travels through one Bus owned by the
daemon: lines pumped from the child process, parsed domain events, state
transitions, component lifecycle changes. Listeners attach per topic with a
priority and a cancellation policy.

# Topic hierarchy

Topics are dotted strings forming a hierarchy. Firing "player.join"
dispatches to listeners on "player.join", then "player", then "*". This is
the fan-out mechanism for listeners that want a whole family of events:

	bus.Register("player", events.Normal, func(e events.Event) {
		// sees player.join, player.leave, player.chat, ...
	})

# Dispatch order and cancellation

Within one dispatch, listeners run in strict priority-descending order;
equal priorities preserve registration order. A listener may Cancel() the
event; remaining listeners are then skipped unless they registered with
IgnoreCancelled:

	bus.RegisterOpts(events.TopicPlayerChat,
		events.Options{Priority: events.Low, IgnoreCancelled: true},
		auditChat)

Listener panics are logged and never abort dispatch. Dispatch is inline on
the firing goroutine; internal tables are mutex-guarded, so any goroutine
may fire, register or unregister.

# History and statistics

The bus keeps a bounded ring (default 1000) of Records - topic, timestamp,
serialised event, dispatch time - for replay to late-joining observers, plus
per-topic counters and timing with slow-topic tracking.

# Real-time push

Topics marked via MarkRealtime are handed to an installed Notifier together
with the per-topic subscriber set (opaque client ids). The web component
bridge uses this to push events to connected browsers without the bus
knowing anything about transports.
*/
package events
