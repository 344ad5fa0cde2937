package events

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *Bus {
	return NewBus(Config{HistorySize: 16})
}

func TestDispatchPriorityOrder(t *testing.T) {
	bus := newTestBus()

	var order []string
	add := func(name string, p Priority) {
		bus.Register(TopicPlayerChat, p, func(Event) {
			order = append(order, name)
		})
	}

	add("normal-1", Normal)
	add("highest", Highest)
	add("low", Low)
	add("normal-2", Normal)
	add("high", High)

	bus.Fire(&PlayerChat{Base: NewBase(), Player: "Alice", Message: "hi"})

	assert.Equal(t, []string{"highest", "high", "normal-1", "normal-2", "low"}, order)
}

func TestCancellation(t *testing.T) {
	bus := newTestBus()

	var ran []string
	bus.Register(TopicPlayerChat, High, func(e Event) {
		ran = append(ran, "A")
		e.Cancel()
	})
	bus.Register(TopicPlayerChat, Normal, func(Event) {
		ran = append(ran, "B")
	})

	bus.Fire(&PlayerChat{Base: NewBase(), Player: "Alice", Message: "one"})
	assert.Equal(t, []string{"A"}, ran, "B must not run after cancellation")

	bus.RegisterOpts(TopicPlayerChat,
		Options{Priority: Low, IgnoreCancelled: true},
		func(Event) { ran = append(ran, "C") })

	ran = nil
	bus.Fire(&PlayerChat{Base: NewBase(), Player: "Alice", Message: "two"})
	assert.Equal(t, []string{"A", "C"}, ran, "C opted into cancelled events")
}

func TestAncestorFanOut(t *testing.T) {
	bus := newTestBus()

	var got []string
	bus.Register(TopicPlayerJoin, Normal, func(Event) { got = append(got, "exact") })
	bus.Register("player", Normal, func(Event) { got = append(got, "parent") })
	bus.Register(TopicAll, Normal, func(Event) { got = append(got, "all") })
	bus.Register("server", Normal, func(Event) { got = append(got, "unrelated") })

	bus.Fire(&PlayerJoin{Base: NewBase(), Player: "Alice"})

	assert.Equal(t, []string{"exact", "parent", "all"}, got)
}

func TestUnregister(t *testing.T) {
	bus := newTestBus()

	calls := 0
	h := bus.Register(TopicServerLog, Normal, func(Event) { calls++ })

	bus.Fire(&ServerLog{Base: NewBase(), Level: "INFO", Message: "a", Raw: "a"})
	bus.Unregister(h)
	bus.Fire(&ServerLog{Base: NewBase(), Level: "INFO", Message: "b", Raw: "b"})

	assert.Equal(t, 1, calls)
}

func TestFilterDropsEvent(t *testing.T) {
	bus := newTestBus()

	calls := 0
	bus.Register(TopicPlayerChat, Normal, func(Event) { calls++ })
	bus.AddFilter(TopicPlayerChat, func(e Event) bool {
		return e.(*PlayerChat).Player != "Spammer"
	})

	bus.Fire(&PlayerChat{Base: NewBase(), Player: "Spammer", Message: "buy gold"})
	bus.Fire(&PlayerChat{Base: NewBase(), Player: "Alice", Message: "hi"})

	assert.Equal(t, 1, calls)

	// Dropped events are not recorded either
	stats := bus.Statistics()
	assert.Equal(t, uint64(1), stats.Counts[TopicPlayerChat])
}

func TestFilterPanicDefaultAccepts(t *testing.T) {
	bus := newTestBus()

	calls := 0
	bus.Register(TopicPlayerChat, Normal, func(Event) { calls++ })
	bus.AddFilter(TopicPlayerChat, func(Event) bool { panic("boom") })

	bus.Fire(&PlayerChat{Base: NewBase(), Player: "Alice", Message: "hi"})
	assert.Equal(t, 1, calls)
}

func TestListenerPanicDoesNotAbortDispatch(t *testing.T) {
	bus := newTestBus()

	var ran []string
	bus.Register(TopicServerLog, High, func(Event) { panic("listener bug") })
	bus.Register(TopicServerLog, Normal, func(Event) { ran = append(ran, "B") })

	assert.NotPanics(t, func() {
		bus.Fire(&ServerLog{Base: NewBase(), Level: "INFO", Message: "x", Raw: "x"})
	})
	assert.Equal(t, []string{"B"}, ran)
}

func TestHistoryRoundTrip(t *testing.T) {
	bus := newTestBus()

	bus.Fire(&PlayerJoin{Base: NewBase(), Player: "Alice", IP: "10.0.0.1"})
	bus.Fire(&PlayerChat{Base: NewBase(), Player: "Alice", Message: "hello"})

	recs := bus.History(0)
	require.Len(t, recs, 2)
	assert.Equal(t, TopicPlayerJoin, recs[0].Topic)
	assert.Equal(t, TopicPlayerChat, recs[1].Topic)

	// Every public field survives the history serialisation
	var join PlayerJoin
	require.NoError(t, json.Unmarshal(recs[0].Data, &join))
	assert.Equal(t, "Alice", join.Player)
	assert.Equal(t, "10.0.0.1", join.IP)

	var chat PlayerChat
	require.NoError(t, json.Unmarshal(recs[1].Data, &chat))
	assert.Equal(t, "hello", chat.Message)
	assert.False(t, chat.At.IsZero())
}

func TestHistoryRingWraps(t *testing.T) {
	bus := NewBus(Config{HistorySize: 4})

	for i := 0; i < 10; i++ {
		bus.Fire(&ServerLog{Base: NewBase(), Level: "INFO",
			Message: fmt.Sprintf("line %d", i), Raw: fmt.Sprintf("line %d", i)})
	}

	recs := bus.History(0)
	require.Len(t, recs, 4)

	var last ServerLog
	require.NoError(t, json.Unmarshal(recs[3].Data, &last))
	assert.Equal(t, "line 9", last.Message)

	recent := bus.History(2)
	require.Len(t, recent, 2)
	assert.Equal(t, recs[2], recent[0])
}

func TestStatistics(t *testing.T) {
	bus := newTestBus()
	bus.Register(TopicServerTPS, Normal, func(Event) {})

	for i := 0; i < 3; i++ {
		bus.Fire(&TPSReport{Base: NewBase(), TPS: 20})
	}
	bus.Fire(&PlayerLeave{Base: NewBase(), Player: "Alice"})

	stats := bus.Statistics()
	assert.Equal(t, uint64(4), stats.TotalFired)
	assert.Equal(t, uint64(3), stats.Counts[TopicServerTPS])
	assert.Equal(t, uint64(1), stats.Counts[TopicPlayerLeave])
	assert.Equal(t, uint64(3), stats.Timings[TopicServerTPS].Count)
	assert.Empty(t, stats.Slow)
}

func TestSlowTopicTracking(t *testing.T) {
	bus := NewBus(Config{HistorySize: 8, SlowThreshold: 10 * time.Millisecond})
	bus.Register(TopicServerLag, Normal, func(Event) {
		time.Sleep(20 * time.Millisecond)
	})

	bus.Fire(&LagSpike{Base: NewBase(), DurationMS: 2000, TicksBehind: 40, Severity: "minor"})

	stats := bus.Statistics()
	assert.Equal(t, []string{TopicServerLag}, stats.Slow)
}

func TestRealtimeNotifier(t *testing.T) {
	bus := newTestBus()
	bus.MarkRealtime(TopicPlayerChat)

	var gotClients []string
	var gotTopic string
	var gotPayload []byte
	bus.SetNotifier(func(clients []string, topic string, payload []byte) {
		gotClients = clients
		gotTopic = topic
		gotPayload = payload
	})

	bus.SubscribeClient(TopicPlayerChat, "web-1")
	bus.SubscribeClient(TopicPlayerChat, "web-2")
	bus.SubscribeClient(TopicPlayerJoin, "web-3")

	bus.Fire(&PlayerChat{Base: NewBase(), Player: "Alice", Message: "hi"})

	assert.Equal(t, []string{"web-1", "web-2"}, gotClients)
	assert.Equal(t, TopicPlayerChat, gotTopic)
	assert.Contains(t, string(gotPayload), `"Alice"`)

	// Non-realtime topics never reach the notifier
	gotTopic = ""
	bus.Fire(&PlayerJoin{Base: NewBase(), Player: "Bob"})
	assert.Empty(t, gotTopic)

	// Dropped clients stop receiving
	bus.DropClient("web-1")
	bus.Fire(&PlayerChat{Base: NewBase(), Player: "Alice", Message: "again"})
	assert.Equal(t, []string{"web-2"}, gotClients)
}
