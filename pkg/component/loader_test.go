package component

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AetheriusMC/aetherius/pkg/events"
	"github.com/AetheriusMC/aetherius/pkg/types"
)

func newTestLoader(t *testing.T, manifests map[string]string) *Loader {
	t.Helper()
	root := t.TempDir()
	for dir, manifest := range manifests {
		full := filepath.Join(root, dir)
		require.NoError(t, os.MkdirAll(full, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(full, "component.yaml"),
			[]byte(manifest), 0o644))
	}
	return NewLoader(Config{
		Dir:            root,
		StartupTimeout: 2 * time.Second,
		StopGrace:      300 * time.Millisecond,
	}, events.NewBus(events.Config{}))
}

func writeScript(t *testing.T, loader *Loader, component, script string) {
	t.Helper()
	path := filepath.Join(loader.cfg.Dir, component, "start_component")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
}

func TestScanAndLoadAllOrder(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"dir-c": "name: c\nload_order: -5\ndependencies: [a, b]\n",
		"dir-b": "name: b\ndependencies: [a]\n",
		"dir-a": "name: a\n",
	})

	count, err := l.Scan()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	loaded, err := l.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, 3, loaded)

	snaps := l.List()
	require.Len(t, snaps, 3)
	assert.Equal(t, "a", snaps[0].Info.Name)
	assert.Equal(t, "b", snaps[1].Info.Name)
	assert.Equal(t, "c", snaps[2].Info.Name)
	for _, s := range snaps {
		assert.Equal(t, types.ComponentLoaded, s.State)
	}
}

func TestLoadAllRejectsCycleEntirely(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"dir-a": "name: a\ndependencies: [b]\n",
		"dir-b": "name: b\ndependencies: [a]\n",
	})

	_, err := l.Scan()
	require.NoError(t, err)

	loaded, err := l.LoadAll()
	assert.ErrorIs(t, err, ErrCircularDependency)
	assert.Equal(t, 0, loaded)

	for _, s := range l.List() {
		assert.Equal(t, types.ComponentDiscovered, s.State,
			"a cycle must leave every component unloaded")
	}
}

func TestScriptlessLifecycle(t *testing.T) {
	l := newTestLoader(t, map[string]string{"dir-a": "name: a\n"})
	_, err := l.Scan()
	require.NoError(t, err)
	_, err = l.LoadAll()
	require.NoError(t, err)

	require.NoError(t, l.Enable("a"))
	snap, err := l.Info("a")
	require.NoError(t, err)
	assert.Equal(t, types.ComponentEnabled, snap.State)

	require.NoError(t, l.Disable("a"))
	require.NoError(t, l.Unload("a"))
	snap, _ = l.Info("a")
	assert.Equal(t, types.ComponentUnloaded, snap.State)
}

func TestEnableRejectsWrongState(t *testing.T) {
	l := newTestLoader(t, map[string]string{"dir-a": "name: a\n"})
	_, err := l.Scan()
	require.NoError(t, err)

	assert.Error(t, l.Enable("a"), "enabling a merely discovered component must fail")
	assert.Error(t, l.Enable("ghost"))
}

func TestOutOfProcessReadyMarker(t *testing.T) {
	l := newTestLoader(t, map[string]string{"dir-web": "name: web\n"})
	writeScript(t, l, "dir-web",
		`echo "AETHERIUS_COMPONENT_STATUS: READY"
sleep 30`)

	_, err := l.Scan()
	require.NoError(t, err)
	_, err = l.LoadAll()
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, l.Enable("web"))
	assert.Less(t, time.Since(start), time.Second,
		"enable must return as soon as the ready marker appears")

	snap, _ := l.Info("web")
	assert.Equal(t, types.ComponentEnabled, snap.State)

	require.NoError(t, l.Disable("web"))
	snap, _ = l.Info("web")
	assert.Equal(t, types.ComponentDisabled, snap.State)
}

func TestOutOfProcessFailedExit(t *testing.T) {
	l := newTestLoader(t, map[string]string{"dir-bad": "name: bad\n"})
	writeScript(t, l, "dir-bad", `echo "boom" >&2
exit 3`)

	_, err := l.Scan()
	require.NoError(t, err)
	_, err = l.LoadAll()
	require.NoError(t, err)

	err = l.Enable("bad")
	require.Error(t, err)
	snap, _ := l.Info("bad")
	assert.Equal(t, types.ComponentFailed, snap.State)
	assert.NotEmpty(t, snap.Error)
}

func TestOutOfProcessStartupTimeoutLeavesRunning(t *testing.T) {
	l := newTestLoader(t, map[string]string{"dir-slow": "name: slow\n"})
	l.cfg.StartupTimeout = 300 * time.Millisecond
	writeScript(t, l, "dir-slow", "sleep 30")

	_, err := l.Scan()
	require.NoError(t, err)
	_, err = l.LoadAll()
	require.NoError(t, err)

	require.NoError(t, l.Enable("slow"),
		"startup timeout is a warning, not a failure")
	snap, _ := l.Info("slow")
	assert.Equal(t, types.ComponentEnabled, snap.State)

	require.NoError(t, l.Disable("slow"))
}

func TestReloadPicksUpManifestChanges(t *testing.T) {
	l := newTestLoader(t, map[string]string{"dir-a": "name: a\nversion: 1.0.0\n"})
	_, err := l.Scan()
	require.NoError(t, err)
	_, err = l.LoadAll()
	require.NoError(t, err)
	require.NoError(t, l.Enable("a"))

	manifest := filepath.Join(l.cfg.Dir, "dir-a", "component.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("name: a\nversion: 2.0.0\n"), 0o644))

	require.NoError(t, l.Reload("a"))

	snap, err := l.Info("a")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", snap.Info.Version)
	assert.Equal(t, types.ComponentEnabled, snap.State,
		"an enabled component must come back enabled after reload")
}

func TestStats(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"dir-a": "name: a\n",
		"dir-b": "name: b\n",
	})
	_, err := l.Scan()
	require.NoError(t, err)
	_, err = l.LoadAll()
	require.NoError(t, err)
	require.NoError(t, l.Enable("a"))

	stats := l.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByState[types.ComponentEnabled])
	assert.Equal(t, 1, stats.ByState[types.ComponentLoaded])
}
