package component

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AetheriusMC/aetherius/pkg/events"
	"github.com/AetheriusMC/aetherius/pkg/log"
	"github.com/AetheriusMC/aetherius/pkg/types"
)

// Registry is the loader surface console routers and CLI verbs consume
type Registry interface {
	Scan() (int, error)
	LoadAll() (int, error)
	Load(name string) error
	Enable(name string) error
	Disable(name string) error
	Unload(name string) error
	Reload(name string) error
	List() []Snapshot
	Info(name string) (Snapshot, error)
	Stats() Stats
}

// Snapshot is a point-in-time view of one managed component
type Snapshot struct {
	Info  *types.ComponentInfo `json:"info"`
	State types.ComponentState `json:"state"`
	Error string               `json:"error,omitempty"`
}

// Stats summarises the registry
type Stats struct {
	Total   int                          `json:"total"`
	ByState map[types.ComponentState]int `json:"by_state"`
}

// Config tunes the loader
type Config struct {
	// Dir is the components root, one subdirectory per component
	Dir string
	// StartupTimeout bounds the wait for an out-of-process READY marker
	StartupTimeout time.Duration
	// StopGrace is the wait between interrupt and kill on disable
	StopGrace time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.StartupTimeout <= 0 {
		out.StartupTimeout = 60 * time.Second
	}
	if out.StopGrace <= 0 {
		out.StopGrace = 5 * time.Second
	}
	return out
}

var _ Registry = (*Loader)(nil)

type managed struct {
	info   *types.ComponentInfo
	state  types.ComponentState
	errMsg string
	runner *runner
}

// Loader discovers, orders and drives the lifecycle of components under
// one directory. The same loader type backs both the components/ tree
// and the plugins/ tree; they differ only in root directory.
type Loader struct {
	cfg    Config
	bus    *events.Bus
	logger zerolog.Logger

	mu         sync.Mutex
	components map[string]*managed
	order      []string
}

// NewLoader creates a loader rooted at cfg.Dir
func NewLoader(cfg Config, bus *events.Bus) *Loader {
	return &Loader{
		cfg:        cfg.withDefaults(),
		bus:        bus,
		logger:     log.WithComponent("loader"),
		components: make(map[string]*managed),
	}
}

// Scan discovers manifests under the root. Known components in active
// states keep their state; their manifest info is refreshed. Returns the
// number of components now known.
func (l *Loader) Scan() (int, error) {
	infos, problems := Discover(l.cfg.Dir)
	for dir, err := range problems {
		l.logger.Warn().Err(err).Str("dir", dir).Msg("skipping unreadable manifest")
	}

	l.mu.Lock()
	seen := make(map[string]bool, len(infos))
	for _, info := range infos {
		if seen[info.Name] {
			l.logger.Warn().Str("name", info.Name).Str("dir", info.Directory).
				Msg("duplicate component name, keeping first")
			continue
		}
		seen[info.Name] = true
		if m, ok := l.components[info.Name]; ok {
			m.info = info
			continue
		}
		l.components[info.Name] = &managed{info: info, state: types.ComponentDiscovered}
	}
	// Forget discovered-only components whose directory went away
	for name, m := range l.components {
		if !seen[name] && m.state == types.ComponentDiscovered {
			delete(l.components, name)
		}
	}
	count := len(l.components)
	l.mu.Unlock()

	l.logger.Info().Int("count", count).Str("dir", l.cfg.Dir).Msg("component scan complete")
	return count, nil
}

// LoadAll resolves the dependency graph and loads every discovered
// component in order. A cycle or unknown dependency rejects the whole
// set: nothing is loaded and 0 is returned with the error.
func (l *Loader) LoadAll() (int, error) {
	l.mu.Lock()
	infos := make([]*types.ComponentInfo, 0, len(l.components))
	for _, m := range l.components {
		infos = append(infos, m.info)
	}
	l.mu.Unlock()

	ordered, err := Resolve(infos)
	if err != nil {
		l.logger.Error().Err(err).Msg("dependency resolution failed, loading nothing")
		return 0, err
	}

	l.mu.Lock()
	l.order = make([]string, len(ordered))
	for i, info := range ordered {
		l.order[i] = info.Name
	}
	l.mu.Unlock()

	loaded := 0
	for _, info := range ordered {
		if l.stateOf(info.Name) != types.ComponentDiscovered {
			continue
		}
		if err := l.Load(info.Name); err != nil {
			l.logger.Error().Err(err).Str("name", info.Name).Msg("component load failed")
			continue
		}
		loaded++
	}
	return loaded, nil
}

// Load transitions Discovered -> Loaded, constructing the out-of-process
// runner when the directory carries a start_component script
func (l *Loader) Load(name string) error {
	l.mu.Lock()
	m, ok := l.components[name]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("unknown component: %s", name)
	}
	if m.state != types.ComponentDiscovered && m.state != types.ComponentUnloaded {
		l.mu.Unlock()
		return fmt.Errorf("component %s cannot load from state %s", name, m.state)
	}
	if script, ok := findScript(m.info.Directory); ok {
		m.runner = newRunner(name, script, m.info.Directory, l.logger)
	}
	ev := l.setStateLocked(m, types.ComponentLoaded, "")
	l.mu.Unlock()

	l.bus.Fire(ev)
	return nil
}

// Enable transitions Loaded/Disabled -> Enabled. Out-of-process
// components are launched and awaited for their READY marker; a startup
// timeout leaves the child running with a warning, a non-zero exit
// before ready marks the component Failed.
func (l *Loader) Enable(name string) error {
	l.mu.Lock()
	m, ok := l.components[name]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("unknown component: %s", name)
	}
	if m.state != types.ComponentLoaded && m.state != types.ComponentDisabled {
		l.mu.Unlock()
		return fmt.Errorf("component %s cannot enable from state %s", name, m.state)
	}
	runner := m.runner
	l.mu.Unlock()

	if runner != nil {
		ready, err := runner.start(l.cfg.StartupTimeout)
		if err != nil {
			l.fail(name, err.Error())
			return err
		}
		if !ready {
			l.logger.Warn().Str("name", name).
				Dur("timeout", l.cfg.StartupTimeout).
				Msg("component produced no ready marker, leaving it running")
		}
	}

	l.mu.Lock()
	ev := l.setStateLocked(m, types.ComponentEnabled, "")
	l.mu.Unlock()
	l.bus.Fire(ev)
	return nil
}

// Disable transitions Enabled -> Disabled, stopping the child process
func (l *Loader) Disable(name string) error {
	l.mu.Lock()
	m, ok := l.components[name]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("unknown component: %s", name)
	}
	if m.state != types.ComponentEnabled {
		l.mu.Unlock()
		return fmt.Errorf("component %s cannot disable from state %s", name, m.state)
	}
	runner := m.runner
	l.mu.Unlock()

	if runner != nil {
		runner.stop(l.cfg.StopGrace)
	}

	l.mu.Lock()
	ev := l.setStateLocked(m, types.ComponentDisabled, "")
	l.mu.Unlock()
	l.bus.Fire(ev)
	return nil
}

// Unload drops the component's runner and marks it Unloaded. Enabled
// components must be disabled first.
func (l *Loader) Unload(name string) error {
	l.mu.Lock()
	m, ok := l.components[name]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("unknown component: %s", name)
	}
	if m.state == types.ComponentEnabled {
		l.mu.Unlock()
		return fmt.Errorf("component %s is enabled, disable it first", name)
	}
	m.runner = nil
	ev := l.setStateLocked(m, types.ComponentUnloaded, "")
	l.mu.Unlock()
	l.bus.Fire(ev)
	return nil
}

// Reload is disable-if-enabled, unload, re-parse the manifest, load, and
// re-enable when the component was enabled before
func (l *Loader) Reload(name string) error {
	l.mu.Lock()
	m, ok := l.components[name]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("unknown component: %s", name)
	}
	wasEnabled := m.state == types.ComponentEnabled
	dir := m.info.Directory
	l.mu.Unlock()

	if wasEnabled {
		if err := l.Disable(name); err != nil {
			return err
		}
	}
	if err := l.Unload(name); err != nil {
		return err
	}

	path, ok := FindManifest(dir)
	if !ok {
		return fmt.Errorf("component %s has no manifest in %s", name, dir)
	}
	info, err := ParseManifest(path)
	if err != nil {
		l.fail(name, err.Error())
		return err
	}

	l.mu.Lock()
	m.info = info
	m.state = types.ComponentDiscovered
	m.errMsg = ""
	l.mu.Unlock()

	if err := l.Load(name); err != nil {
		return err
	}
	if wasEnabled {
		return l.Enable(name)
	}
	return nil
}

// List returns snapshots in resolved load order, unresolved components
// last by name
func (l *Loader) List() []Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	rank := make(map[string]int, len(l.order))
	for i, name := range l.order {
		rank[name] = i
	}

	out := make([]Snapshot, 0, len(l.components))
	for _, m := range l.components {
		out = append(out, Snapshot{Info: m.info, State: m.state, Error: m.errMsg})
	}
	sort.Slice(out, func(i, j int) bool {
		ri, iOK := rank[out[i].Info.Name]
		rj, jOK := rank[out[j].Info.Name]
		if iOK != jOK {
			return iOK
		}
		if iOK && ri != rj {
			return ri < rj
		}
		return out[i].Info.Name < out[j].Info.Name
	})
	return out
}

// Info returns one component's snapshot
func (l *Loader) Info(name string) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.components[name]
	if !ok {
		return Snapshot{}, fmt.Errorf("unknown component: %s", name)
	}
	return Snapshot{Info: m.info, State: m.state, Error: m.errMsg}, nil
}

// Stats counts components per state
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Stats{
		Total:   len(l.components),
		ByState: make(map[types.ComponentState]int),
	}
	for _, m := range l.components {
		s.ByState[m.state]++
	}
	return s
}

// Shutdown disables every enabled component, dependents first
func (l *Loader) Shutdown() {
	l.mu.Lock()
	names := make([]string, len(l.order))
	copy(names, l.order)
	l.mu.Unlock()

	for i := len(names) - 1; i >= 0; i-- {
		if l.stateOf(names[i]) == types.ComponentEnabled {
			if err := l.Disable(names[i]); err != nil {
				l.logger.Warn().Err(err).Str("name", names[i]).Msg("shutdown disable failed")
			}
		}
	}
}

func (l *Loader) stateOf(name string) types.ComponentState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.components[name]; ok {
		return m.state
	}
	return ""
}

func (l *Loader) fail(name, reason string) {
	l.mu.Lock()
	m, ok := l.components[name]
	if !ok {
		l.mu.Unlock()
		return
	}
	ev := l.setStateLocked(m, types.ComponentFailed, reason)
	l.mu.Unlock()
	l.bus.Fire(ev)
}

func (l *Loader) setStateLocked(m *managed, to types.ComponentState, reason string) *events.ComponentStateChanged {
	from := m.state
	m.state = to
	m.errMsg = reason
	l.logger.Debug().Str("name", m.info.Name).
		Str("from", string(from)).Str("to", string(to)).Msg("component state changed")
	return &events.ComponentStateChanged{
		Base:   events.NewBase(),
		Name:   m.info.Name,
		From:   from,
		To:     to,
		Reason: reason,
	}
}
