package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aetherius.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  jar_path: paper.jar
  working_dir: /srv/mc
  stop_timeout: 45s
queue:
  poll_interval: 250ms
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "paper.jar", cfg.Server.JarPath)
	assert.Equal(t, "/srv/mc", cfg.Server.WorkingDir)
	assert.Equal(t, 45*time.Second, cfg.Server.StopTimeout.Std())
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.PollInterval.Std())
	// Untouched fields keep their defaults
	assert.Equal(t, "java", cfg.Server.JavaBin)
	assert.Equal(t, 60*time.Second, cfg.Components.StartupTimeout.Std())
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("MC_WORKDIR", "/srv/from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "aetherius.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  working_dir: ${MC_WORKDIR}
  jar_path: ${MC_JAR:-server.jar}
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/from-env", cfg.Server.WorkingDir)
	assert.Equal(t, "server.jar", cfg.Server.JarPath)
}

func TestLoadPreloadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("AETHERIUS_TEST_SOCKET=/tmp/dotenv.sock\n"), 0o644))
	path := filepath.Join(dir, "aetherius.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
daemon:
  socket_path: ${AETHERIUS_TEST_SOCKET}
`), 0o644))
	t.Cleanup(func() { os.Unsetenv("AETHERIUS_TEST_SOCKET") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/dotenv.sock", cfg.Daemon.SocketPath)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  stop_timeout: thirty seconds
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"no working dir", func(c *Config) { c.Server.WorkingDir = "" }, false},
		{"no jar but command", func(c *Config) {
			c.Server.JarPath = ""
			c.Server.Command = []string{"/bin/run-server"}
		}, true},
		{"no jar no command", func(c *Config) { c.Server.JarPath = "" }, false},
		{"no socket", func(c *Config) { c.Daemon.SocketPath = "" }, false},
		{"zero poll interval", func(c *Config) { c.Queue.PollInterval = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aetherius.yaml")
	orig := Default()
	orig.Server.JarPath = "custom.jar"
	require.NoError(t, orig.Write(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, orig, loaded)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("AE_SET", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"${AE_SET}", "value"},
		{"${AE_UNSET_VAR}", ""},
		{"${AE_UNSET_VAR:-fallback}", "fallback"},
		{"${AE_SET:-fallback}", "value"},
		{"prefix-${AE_SET}-suffix", "prefix-value-suffix"},
		{"no refs here", "no refs here"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandEnv(tt.in), tt.in)
	}
}
