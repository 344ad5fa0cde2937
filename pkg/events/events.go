package events

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AetheriusMC/aetherius/pkg/log"
)

// Priority orders listeners within a topic. Higher priorities run first.
type Priority int

const (
	Lowest Priority = iota
	Low
	Normal
	High
	Highest
)

// TopicAll subscribes a listener to every event regardless of topic.
const TopicAll = "*"

// Event is implemented by everything dispatched through the Bus.
// Topics form a dotted hierarchy: a listener registered on "player"
// receives "player.join", "player.chat" and so on.
type Event interface {
	Topic() string
	Time() time.Time
	Cancelled() bool
	Cancel()
}

// Base carries the timestamp and cancellation flag shared by all events.
// Concrete events embed it and add their domain fields.
type Base struct {
	At        time.Time `json:"timestamp"`
	cancelled bool
}

// NewBase returns a Base stamped with the current time
func NewBase() Base {
	return Base{At: time.Now()}
}

func (b *Base) Time() time.Time { return b.At }
func (b *Base) Cancelled() bool { return b.cancelled }
func (b *Base) Cancel()         { b.cancelled = true }

// Handler is a listener callback. Handlers run on the firing goroutine;
// a handler that needs to block should hand off to its own goroutine.
type Handler func(Event)

// Filter decides whether an event on its topic is dispatched at all.
// Returning false drops the event before any listener runs.
type Filter func(Event) bool

// Notifier receives serialised real-time events together with the set of
// subscribed client ids. Installed by the web component bridge.
type Notifier func(clients []string, topic string, payload []byte)

// Options configures a listener registration
type Options struct {
	Priority Priority
	// IgnoreCancelled lets the listener run even after an earlier,
	// higher-priority listener cancelled the event.
	IgnoreCancelled bool
}

// Handle identifies a registration for later removal
type Handle struct {
	topic string
	seq   uint64
}

type listener struct {
	fn              Handler
	priority        Priority
	ignoreCancelled bool
	seq             uint64
}

// Record is one entry in the bus's replay history
type Record struct {
	Topic   string          `json:"topic"`
	Time    time.Time       `json:"timestamp"`
	Data    json.RawMessage `json:"data"`
	Elapsed time.Duration   `json:"elapsed"`
}

type timing struct {
	count uint64
	total time.Duration
	max   time.Duration
	min   time.Duration
}

// TopicStats summarises dispatch timing for one topic
type TopicStats struct {
	Count   uint64
	Average time.Duration
	Max     time.Duration
	Min     time.Duration
}

// Stats is a snapshot of bus activity
type Stats struct {
	TotalFired uint64
	Counts     map[string]uint64
	Timings    map[string]TopicStats
	Slow       []string
}

// Config tunes the bus
type Config struct {
	// HistorySize bounds the replay ring buffer (default 1000)
	HistorySize int
	// SlowThreshold marks a topic slow when one dispatch exceeds it
	// (default 1s)
	SlowThreshold time.Duration
}

// Bus is the engine-wide event dispatcher. Listeners within a topic fire in
// strict priority-descending order; equal priorities preserve registration
// order. Dispatch happens inline on the firing goroutine; internal tables
// are mutex-guarded so any goroutine may fire or register.
type Bus struct {
	mu          sync.Mutex
	listeners   map[string][]*listener // exact topic, incl. ancestors and "*"
	filters     map[string][]Filter
	history     []Record
	histNext    int
	histFull    bool
	counts      map[string]uint64
	timings     map[string]*timing
	subscribers map[string]map[string]struct{} // topic -> client id set
	realtime    map[string]struct{}
	notifier    Notifier
	seq         uint64
	totalFired  uint64
	slow        time.Duration
}

// NewBus creates a bus with the given configuration
func NewBus(cfg Config) *Bus {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = time.Second
	}
	return &Bus{
		listeners:   make(map[string][]*listener),
		filters:     make(map[string][]Filter),
		history:     make([]Record, cfg.HistorySize),
		counts:      make(map[string]uint64),
		timings:     make(map[string]*timing),
		subscribers: make(map[string]map[string]struct{}),
		realtime:    make(map[string]struct{}),
		slow:        cfg.SlowThreshold,
	}
}

// Register attaches a handler to a topic at the given priority.
// Topic may be a concrete topic ("player.join"), an ancestor ("player"),
// or TopicAll.
func (b *Bus) Register(topic string, priority Priority, fn Handler) Handle {
	return b.RegisterOpts(topic, Options{Priority: priority}, fn)
}

// RegisterOpts is Register with full listener options
func (b *Bus) RegisterOpts(topic string, opts Options, fn Handler) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	l := &listener{
		fn:              fn,
		priority:        opts.Priority,
		ignoreCancelled: opts.IgnoreCancelled,
		seq:             b.seq,
	}

	// Insert by priority descending; ties keep registration order
	list := b.listeners[topic]
	pos := len(list)
	for i, existing := range list {
		if l.priority > existing.priority {
			pos = i
			break
		}
	}
	list = append(list, nil)
	copy(list[pos+1:], list[pos:])
	list[pos] = l
	b.listeners[topic] = list

	return Handle{topic: topic, seq: l.seq}
}

// Unregister removes a previously registered listener
func (b *Bus) Unregister(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.listeners[h.topic]
	for i, l := range list {
		if l.seq == h.seq {
			b.listeners[h.topic] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// AddFilter registers a predicate gating dispatch of a topic.
// A panicking filter default-accepts.
func (b *Bus) AddFilter(topic string, f Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters[topic] = append(b.filters[topic], f)
}

// ancestors returns the dispatch chain for a topic: the topic itself,
// each strict ancestor up to the root segment, then TopicAll.
func ancestors(topic string) []string {
	chain := []string{topic}
	for {
		i := strings.LastIndexByte(topic, '.')
		if i < 0 {
			break
		}
		topic = topic[:i]
		chain = append(chain, topic)
	}
	return append(chain, TopicAll)
}

// Fire dispatches an event to all matching listeners in priority order.
// A cancelled event skips every remaining listener that did not opt into
// IgnoreCancelled; listener panics are logged and never abort dispatch.
func (b *Bus) Fire(event Event) {
	topic := event.Topic()
	start := time.Now()

	b.mu.Lock()
	for _, f := range b.filters[topic] {
		if !accept(f, event) {
			b.mu.Unlock()
			return
		}
	}
	var targets []*listener
	for _, t := range ancestors(topic) {
		targets = append(targets, b.listeners[t]...)
	}
	b.mu.Unlock()

	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].priority > targets[j].priority
	})

	for _, l := range targets {
		if event.Cancelled() && !l.ignoreCancelled {
			continue
		}
		invoke(l, event, topic)
	}

	b.record(topic, event, time.Since(start))
}

// accept runs a filter, default-accepting on panic
func accept(f Filter, event Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = true
		}
	}()
	return f(event)
}

// invoke runs one listener, containing panics so a failing listener never
// aborts dispatch
func invoke(l *listener, event Event, topic string) {
	defer func() {
		if r := recover(); r != nil {
			log.Logger.Error().
				Str("topic", topic).
				Interface("panic", r).
				Msg("event listener failed")
		}
	}()
	l.fn(event)
}

func (b *Bus) record(topic string, event Event, elapsed time.Duration) {
	data, err := json.Marshal(event)
	if err != nil {
		data = nil
	}

	b.mu.Lock()
	b.history[b.histNext] = Record{
		Topic:   topic,
		Time:    event.Time(),
		Data:    data,
		Elapsed: elapsed,
	}
	b.histNext++
	if b.histNext == len(b.history) {
		b.histNext = 0
		b.histFull = true
	}

	b.totalFired++
	b.counts[topic]++
	t := b.timings[topic]
	if t == nil {
		t = &timing{min: elapsed}
		b.timings[topic] = t
	}
	t.count++
	t.total += elapsed
	if elapsed > t.max {
		t.max = elapsed
	}
	if elapsed < t.min {
		t.min = elapsed
	}

	var clients []string
	_, rt := b.realtime[topic]
	if rt && b.notifier != nil {
		for id := range b.subscribers[topic] {
			clients = append(clients, id)
		}
	}
	notifier := b.notifier
	b.mu.Unlock()

	if rt && notifier != nil && len(clients) > 0 {
		sort.Strings(clients)
		notifier(clients, topic, data)
	}
}

// History returns up to n most recent records, oldest first
func (b *Bus) History(n int) []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := b.histNext
	start := 0
	if b.histFull {
		size = len(b.history)
		start = b.histNext
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Record, 0, n)
	for i := size - n; i < size; i++ {
		out = append(out, b.history[(start+i)%len(b.history)])
	}
	return out
}

// Statistics returns a snapshot of counters, timings and slow topics
func (b *Bus) Statistics() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		TotalFired: b.totalFired,
		Counts:     make(map[string]uint64, len(b.counts)),
		Timings:    make(map[string]TopicStats, len(b.timings)),
	}
	for topic, c := range b.counts {
		s.Counts[topic] = c
	}
	for topic, t := range b.timings {
		s.Timings[topic] = TopicStats{
			Count:   t.count,
			Average: t.total / time.Duration(t.count),
			Max:     t.max,
			Min:     t.min,
		}
		if t.max >= b.slow {
			s.Slow = append(s.Slow, topic)
		}
	}
	sort.Strings(s.Slow)
	return s
}

// SubscribeClient adds a client id to a topic's real-time subscriber set
func (b *Bus) SubscribeClient(topic, clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subscribers[topic]
	if set == nil {
		set = make(map[string]struct{})
		b.subscribers[topic] = set
	}
	set[clientID] = struct{}{}
}

// UnsubscribeClient removes a client id from a topic's subscriber set
func (b *Bus) UnsubscribeClient(topic, clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers[topic], clientID)
}

// DropClient removes a client id from every subscriber set
func (b *Bus) DropClient(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, set := range b.subscribers {
		delete(set, clientID)
	}
}

// SetNotifier installs the real-time push hook
func (b *Bus) SetNotifier(n Notifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifier = n
}

// MarkRealtime marks topics for live push through the notifier
func (b *Bus) MarkRealtime(topics ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		b.realtime[t] = struct{}{}
	}
}
