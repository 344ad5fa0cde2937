package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AetheriusMC/aetherius/pkg/component"
	"github.com/AetheriusMC/aetherius/pkg/events"
	"github.com/AetheriusMC/aetherius/pkg/log"
	"github.com/AetheriusMC/aetherius/pkg/metrics"
	"github.com/AetheriusMC/aetherius/pkg/storage"
	"github.com/AetheriusMC/aetherius/pkg/supervisor"
	"github.com/AetheriusMC/aetherius/pkg/types"
)

// ErrSocketInUse means another daemon already serves the socket path
var ErrSocketInUse = errors.New("console socket already in use")

// GameServer is the supervisor surface the daemon drives. Tests swap in
// a stub; production wires *supervisor.Supervisor.
type GameServer interface {
	Start() error
	Stop() error
	Restart() error
	SendCommand(text string) error
	ExecuteCommand(ctx context.Context, text string, timeout time.Duration) *types.CommandResult
	Status() supervisor.Status
	Metrics() types.ProcessMetrics
}

// Config tunes the daemon
type Config struct {
	SocketPath string
	// CommandTimeout bounds one console-submitted game command
	CommandTimeout time.Duration
	// HistoryKeep bounds the audit store prune
	HistoryKeep int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.CommandTimeout <= 0 {
		out.CommandTimeout = 10 * time.Second
	}
	if out.HistoryKeep <= 0 {
		out.HistoryKeep = 10000
	}
	return out
}

// Daemon is the long-lived console server: it owns the game server and
// multiplexes log and response frames to any number of clients over a
// Unix domain socket. Clients come and go; the child does not care.
type Daemon struct {
	cfg        Config
	server     GameServer
	components component.Registry
	bus        *events.Bus
	store      storage.Store
	logger     zerolog.Logger

	ln          net.Listener
	logHandle   events.Handle
	auditHandle events.Handle
	quitOnce    sync.Once
	quitCh      chan struct{}
	wg          sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one connected console client
type session struct {
	id   string
	conn net.Conn

	mu  sync.Mutex
	enc *json.Encoder
}

func (s *session) send(f *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(f)
}

// New assembles a daemon. components and store may be nil; the matching
// console verbs then report unavailability.
func New(cfg Config, server GameServer, components component.Registry, bus *events.Bus, store storage.Store) *Daemon {
	return &Daemon{
		cfg:        cfg.withDefaults(),
		server:     server,
		components: components,
		bus:        bus,
		store:      store,
		logger:     log.WithComponent("daemon"),
		quitCh:     make(chan struct{}),
		sessions:   make(map[string]*session),
	}
}

// Start claims the socket and begins serving. A live daemon on the same
// path fails fast with ErrSocketInUse; a stale socket file is unlinked.
func (d *Daemon) Start() error {
	if _, err := os.Stat(d.cfg.SocketPath); err == nil {
		probe, err := net.DialTimeout("unix", d.cfg.SocketPath, time.Second)
		if err == nil {
			probe.Close()
			return fmt.Errorf("%w: %s", ErrSocketInUse, d.cfg.SocketPath)
		}
		d.logger.Info().Str("path", d.cfg.SocketPath).Msg("removing stale socket")
		_ = os.Remove(d.cfg.SocketPath)
	}

	ln, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.cfg.SocketPath, err)
	}
	d.ln = ln

	d.logHandle = d.bus.Register(events.TopicServerLog, events.Low, d.onServerLog)
	d.auditEvents()

	d.wg.Add(1)
	go d.acceptLoop()

	d.logger.Info().Str("path", d.cfg.SocketPath).Msg("console daemon listening")
	return nil
}

// Quit returns a channel closed when a client requests daemon shutdown
// via the !quit system command
func (d *Daemon) Quit() <-chan struct{} {
	return d.quitCh
}

func (d *Daemon) requestQuit() {
	d.quitOnce.Do(func() { close(d.quitCh) })
}

// Shutdown stops serving: close the listener, drop every session, and
// remove the socket. Stopping the game server is the caller's decision.
func (d *Daemon) Shutdown() {
	if d.ln != nil {
		_ = d.ln.Close()
	}
	d.bus.Unregister(d.logHandle)
	if d.store != nil {
		d.bus.Unregister(d.auditHandle)
	}

	d.mu.Lock()
	for _, sess := range d.sessions {
		_ = sess.conn.Close()
	}
	d.mu.Unlock()

	d.wg.Wait()
	_ = os.Remove(d.cfg.SocketPath)
	if d.store != nil {
		_ = d.store.Prune(d.cfg.HistoryKeep)
	}
	d.logger.Info().Msg("console daemon stopped")
}

func (d *Daemon) acceptLoop() {
	defer d.wg.Done()
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		d.wg.Add(1)
		go d.handleConn(conn)
	}
}

func (d *Daemon) handleConn(conn net.Conn) {
	defer d.wg.Done()

	sess := &session{
		id:   uuid.New().String(),
		conn: conn,
		enc:  json.NewEncoder(conn),
	}
	logger := log.WithSession(sess.id)

	d.mu.Lock()
	d.sessions[sess.id] = sess
	d.mu.Unlock()
	metrics.SessionsActive.Inc()
	logger.Info().Msg("console client connected")

	defer func() {
		d.mu.Lock()
		delete(d.sessions, sess.id)
		d.mu.Unlock()
		d.bus.DropClient(sess.id)
		metrics.SessionsActive.Dec()
		_ = conn.Close()
		logger.Info().Msg("console client disconnected")
	}()

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var frame Frame
		if err := json.Unmarshal(sc.Bytes(), &frame); err != nil {
			logger.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if frame.Type != FrameCommand {
			continue
		}
		d.route(sess, frame.Command)
	}
}

// onServerLog streams every server log line to all connected sessions
func (d *Daemon) onServerLog(e events.Event) {
	l, ok := e.(*events.ServerLog)
	if !ok {
		return
	}
	metrics.LogLinesTotal.Inc()
	d.broadcast(&Frame{
		Type:    FrameLog,
		Content: l.Raw,
		IsError: l.Level == "ERROR",
	})
}

func (d *Daemon) broadcast(f *Frame) {
	d.mu.Lock()
	sessions := make([]*session, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()

	for _, s := range sessions {
		if err := s.send(f); err != nil {
			// Reader side tears the session down on its own error
			d.logger.Debug().Err(err).Str("session", s.id).Msg("broadcast write failed")
		}
	}
}

// auditEvents persists noteworthy events to the audit store. The chatty
// per-line topics stay out; the history ring covers those.
func (d *Daemon) auditEvents() {
	if d.store == nil {
		return
	}
	skip := map[string]bool{
		events.TopicServerLog:  true,
		events.TopicLogLine:    true,
		events.TopicLogUnknown: true,
	}
	d.auditHandle = d.bus.Register(events.TopicAll, events.Lowest, func(e events.Event) {
		if skip[e.Topic()] {
			return
		}
		data, err := json.Marshal(e)
		if err != nil {
			data = nil
		}
		if err := d.store.AppendEvent(&storage.EventEntry{
			Topic: e.Topic(),
			Time:  e.Time(),
			Data:  data,
		}); err != nil {
			d.logger.Warn().Err(err).Msg("failed to audit event")
		}
	})
}
