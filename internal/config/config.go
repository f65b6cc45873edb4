// Package config loads the mhs5200 tool configuration from YAML, .env files
// and MHS_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for its config file.
const DefaultPath = "/etc/mhs5200/config.yaml"

// Config holds all tool configuration.
type Config struct {
	mu sync.RWMutex

	Device DeviceConfig `yaml:"device" json:"device"`
	Debug  bool         `yaml:"debug" json:"debug"` // raw traffic at debug level
	Trace  TraceConfig  `yaml:"trace" json:"trace"`
	Server ServerConfig `yaml:"server" json:"server"`
	Log    LogConfig    `yaml:"log" json:"log"`

	path string
}

type DeviceConfig struct {
	Port      string `yaml:"port" json:"port"` // e.g. /dev/ttyUSB0
	TimeoutMs int    `yaml:"timeout_ms" json:"timeoutMs"`
	Demo      bool   `yaml:"demo" json:"demo"` // simulated generator
}

// TraceConfig controls the CSV traffic recorder.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
	PollMs     int    `yaml:"poll_ms" json:"pollMs"` // status broadcast interval
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text or json
	Output string `yaml:"output" json:"output"` // stderr or a file path
}

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Port:      "/dev/ttyUSB0",
			TimeoutMs: 1000,
		},
		Trace: TraceConfig{
			Path: "/var/log/mhs5200",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
			PollMs:     1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides. A missing or unparsable file leaves the defaults.
func Load(path string, log logrus.FieldLogger) *Config {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "config")

	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Debugf("no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Warnf("error parsing %s: %v, using defaults", path, err)
		cfg = Default()
		cfg.path = path
	} else {
		log.Debugf("loaded from %s", path)
	}

	for _, ep := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		loadEnvFile(ep, log)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a KEY=VALUE .env file into the process environment.
// Variables that are already set to a non-empty value win.
func loadEnvFile(path string, log logrus.FieldLogger) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Debugf("loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

func envBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// applyEnvOverrides reads MHS_PORT, MHS_TIMEOUT_MS, MHS_DEMO, MHS_DEBUG,
// MHS_TRACE, MHS_TRACE_PATH, MHS_LISTEN, MHS_LOG_LEVEL and MHS_LOG_FORMAT.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MHS_PORT"); v != "" {
		c.Device.Port = v
	}
	if v := os.Getenv("MHS_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Device.TimeoutMs = n
		}
	}
	if v := os.Getenv("MHS_DEMO"); v != "" {
		c.Device.Demo = envBool(v)
	}
	if v := os.Getenv("MHS_DEBUG"); v != "" {
		c.Debug = envBool(v)
	}
	if v := os.Getenv("MHS_TRACE"); v != "" {
		c.Trace.Enabled = envBool(v)
	}
	if v := os.Getenv("MHS_TRACE_PATH"); v != "" {
		c.Trace.Path = v
	}
	if v := os.Getenv("MHS_LISTEN"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("MHS_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MHS_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// Path returns the file Save writes to.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// Timeout is the per-exchange response deadline.
func (c *Config) Timeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Device.TimeoutMs) * time.Millisecond
}

// PollInterval is how often the server broadcasts channel status.
func (c *Config) PollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Server.PollMs <= 0 {
		return time.Second
	}
	return time.Duration(c.Server.PollMs) * time.Millisecond
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		c.path = DefaultPath
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(c.path), err)
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON deep-merges a partial JSON document into the config.
// Fields absent from data keep their values.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]any
	if err := json.Unmarshal(current, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]any
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

// deepMerge merges src into dst, recursing into nested objects.
func deepMerge(dst, src map[string]any) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]any); ok {
			if dstMap, ok := dst[key].(map[string]any); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
