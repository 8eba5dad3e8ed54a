// Package config loads commander settings from defaults, an optional TOML or
// YAML file, and CLI_COMMANDER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfig      = "CLI_COMMANDER_CONFIG"
	EnvShell       = "CLI_COMMANDER_SHELL"
	EnvGracePeriod = "CLI_COMMANDER_GRACE_PERIOD"
	EnvWait        = "CLI_COMMANDER_WAIT"
	EnvMaxSessions = "CLI_COMMANDER_MAX_SESSIONS"
	EnvOutputLines = "CLI_COMMANDER_OUTPUT_LINES"
	EnvLogLevel    = "CLI_COMMANDER_LOG_LEVEL"
)

// Config holds commander settings.
type Config struct {
	// Shell is the shell executable. Empty means bash, then sh (cmd.exe on
	// Windows).
	Shell     string   `toml:"shell" yaml:"shell"`
	ShellArgs []string `toml:"shell_args" yaml:"shell_args"`
	WorkDir   string   `toml:"work_dir" yaml:"work_dir"`

	// GracePeriod is how long a close waits before killing, and again after.
	GracePeriod Duration `toml:"grace_period" yaml:"grace_period"`
	// PostSendWait is how long run waits for output when no wait is given.
	PostSendWait Duration `toml:"post_send_wait" yaml:"post_send_wait"`

	MaxSessions int    `toml:"max_sessions" yaml:"max_sessions"`
	OutputLines int    `toml:"output_lines" yaml:"output_lines"`
	Follow      bool   `toml:"follow" yaml:"follow"`
	LogLevel    string `toml:"log_level" yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		GracePeriod:  Duration(5 * time.Second),
		PostSendWait: Duration(200 * time.Millisecond),
		OutputLines:  10000,
		LogLevel:     "info",
	}
}

// Load returns the defaults overlaid with the file at path (skipped when path
// is empty) and then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.DecodeFile(path, c)
		if err != nil {
			return fmt.Errorf("parsing config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("parsing config %s: unknown key %q", path, undecoded[0].String())
		}

	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parsing config %s: %w", path, err)
		}

	default:
		return fmt.Errorf("unsupported config format %q (want .toml, .yaml or .yml)", ext)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvShell); v != "" {
		c.Shell = v
	}
	if v := os.Getenv(EnvGracePeriod); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvGracePeriod, err)
		}
		c.GracePeriod = d
	}
	if v := os.Getenv(EnvWait); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWait, err)
		}
		c.PostSendWait = d
	}
	if v := os.Getenv(EnvMaxSessions); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxSessions, err)
		}
		c.MaxSessions = n
	}
	if v := os.Getenv(EnvOutputLines); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvOutputLines, err)
		}
		c.OutputLines = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate rejects settings the registry cannot run with.
func (c Config) Validate() error {
	if c.GracePeriod <= 0 {
		return fmt.Errorf("grace_period must be positive, got %s", c.GracePeriod)
	}
	if c.PostSendWait < 0 {
		return fmt.Errorf("post_send_wait must not be negative, got %s", c.PostSendWait)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max_sessions must not be negative, got %d", c.MaxSessions)
	}
	if c.OutputLines <= 0 {
		return fmt.Errorf("output_lines must be positive, got %d", c.OutputLines)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.WorkDir != "" {
		info, err := os.Stat(c.WorkDir)
		if err != nil {
			return fmt.Errorf("work_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("work_dir %s is not a directory", c.WorkDir)
		}
	}
	return nil
}

// Level returns the parsed log level.
func (c Config) Level() (log.Level, error) {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// Duration is a time.Duration that decodes from a Go duration string ("5s")
// or a number of seconds.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// ParseDuration parses a Go duration string or a number of seconds.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if v, err := time.ParseDuration(s); err == nil {
		return Duration(v), nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return Duration(secs * float64(time.Second)), nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// UnmarshalTOML accepts TOML strings, integers and floats.
func (d *Duration) UnmarshalTOML(v interface{}) error {
	switch x := v.(type) {
	case string:
		return d.UnmarshalText([]byte(x))
	case int64:
		*d = Duration(time.Duration(x) * time.Second)
	case float64:
		*d = Duration(x * float64(time.Second))
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// UnmarshalYAML accepts YAML scalars.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	return d.UnmarshalText([]byte(node.Value))
}
