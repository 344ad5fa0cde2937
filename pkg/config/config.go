package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AetheriusMC/aetherius/pkg/log"
)

// Config is the engine configuration, loaded from aetherius.yaml
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Queue      QueueConfig      `yaml:"queue"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Components ComponentsConfig `yaml:"components"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig describes the managed game server process
type ServerConfig struct {
	// JarPath is the server jar, relative paths resolve against WorkingDir
	JarPath    string `yaml:"jar_path"`
	WorkingDir string `yaml:"working_dir"`
	JavaBin    string `yaml:"java_bin"`
	// JavaArgs go between the java binary and -jar
	JavaArgs []string `yaml:"java_args"`
	// Command overrides the whole launch argv; when set, JavaBin/JavaArgs
	// are ignored and JarPath is only checked for existence
	Command []string `yaml:"command"`
	// StopTimeout bounds the graceful stop before signal escalation
	StopTimeout Duration `yaml:"stop_timeout"`
	// StartupGrace promotes Starting to Running if no ready line appears
	StartupGrace Duration `yaml:"startup_grace"`
	// CaptureWindow is the in-process command reply window
	CaptureWindow Duration `yaml:"capture_window"`
	// AutoRestart re-runs Start after a crash (off by default)
	AutoRestart    bool     `yaml:"auto_restart"`
	RestartBackoff Duration `yaml:"restart_backoff"`
}

// QueueConfig tunes the cross-process command queue
type QueueConfig struct {
	PollInterval  Duration `yaml:"poll_interval"`
	CaptureWindow Duration `yaml:"capture_window"`
	CaptureMaxAge Duration `yaml:"capture_max_age"`
	GCMaxAge      Duration `yaml:"gc_max_age"`
}

// DaemonConfig describes the console daemon's endpoints
type DaemonConfig struct {
	SocketPath string `yaml:"socket_path"`
	// MetricsAddr serves prometheus when non-empty, e.g. "127.0.0.1:9815"
	MetricsAddr string `yaml:"metrics_addr"`
	// DataDir holds the audit store database
	DataDir string `yaml:"data_dir"`
}

// ComponentsConfig locates the modular add-ons
type ComponentsConfig struct {
	Dir            string   `yaml:"dir"`
	PluginsDir     string   `yaml:"plugins_dir"`
	StartupTimeout Duration `yaml:"startup_timeout"`
}

// LogConfig configures engine logging
type LogConfig struct {
	Level log.Level `yaml:"level"`
	JSON  bool      `yaml:"json"`
}

// Duration wraps time.Duration for YAML strings like "5s" or "500ms"
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			JarPath:        "server.jar",
			WorkingDir:     "server",
			JavaBin:        "java",
			JavaArgs:       []string{"-Xms1G", "-Xmx2G"},
			StopTimeout:    Duration(30 * time.Second),
			StartupGrace:   Duration(15 * time.Second),
			CaptureWindow:  Duration(2 * time.Second),
			RestartBackoff: Duration(5 * time.Second),
		},
		Queue: QueueConfig{
			PollInterval:  Duration(500 * time.Millisecond),
			CaptureWindow: Duration(time.Second),
			CaptureMaxAge: Duration(30 * time.Second),
			GCMaxAge:      Duration(5 * time.Minute),
		},
		Daemon: DaemonConfig{
			SocketPath: defaultSocketPath(),
			DataDir:    "data",
		},
		Components: ComponentsConfig{
			Dir:            "components",
			PluginsDir:     "plugins",
			StartupTimeout: Duration(60 * time.Second),
		},
		Log: LogConfig{
			Level: log.InfoLevel,
		},
	}
}

func defaultSocketPath() string {
	return filepath.Join(os.TempDir(), "aetherius.sock")
}

// Load reads the YAML config at path over the defaults. A .env file next
// to the config is preloaded into the environment first, then ${VAR}
// references in the YAML are expanded.
func Load(path string) (*Config, error) {
	// Missing .env is fine; it only exists in deployments that need it
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	cfg := Default()
	expanded := ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to defaults when the file is absent
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	if c.Server.WorkingDir == "" {
		return fmt.Errorf("server.working_dir must be set")
	}
	if c.Server.JarPath == "" && len(c.Server.Command) == 0 {
		return fmt.Errorf("server.jar_path or server.command must be set")
	}
	if c.Daemon.SocketPath == "" {
		return fmt.Errorf("daemon.socket_path must be set")
	}
	if c.Queue.PollInterval.Std() <= 0 {
		return fmt.Errorf("queue.poll_interval must be positive")
	}
	return nil
}

// Write serialises the config to path, for `config init`
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
