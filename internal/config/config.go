package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	logpkg "github.com/rzbill/evbus/pkg/log"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir string        `json:"dataDir" yaml:"dataDir"`
	Fsync   string        `json:"fsync" yaml:"fsync"`
	Server  Server        `json:"server" yaml:"server"`
	Auth    Auth          `json:"auth" yaml:"auth"`
	Events  Events        `json:"events" yaml:"events"`
	Log     logpkg.Config `json:"log" yaml:"log"`
}

// Server holds listen addresses. An empty address disables that listener.
type Server struct {
	HTTPAddr          string `json:"httpAddr" yaml:"httpAddr"`
	GRPCAddr          string `json:"grpcAddr" yaml:"grpcAddr"`
	CORSAllowedOrigin string `json:"corsAllowedOrigin" yaml:"corsAllowedOrigin"`
	ShutdownTimeoutMs int    `json:"shutdownTimeoutMs" yaml:"shutdownTimeoutMs"`
}

// Auth controls API authentication.
type Auth struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Realm   string `json:"realm" yaml:"realm"`
	// Users are created or replaced at startup.
	Users []User `json:"users" yaml:"users"`
}

// User seeds one API user.
type User struct {
	Name        string   `json:"name" yaml:"name"`
	Password    string   `json:"password" yaml:"password"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

// Events tunes the event queue subsystem.
type Events struct {
	// WaitTimeoutMs bounds one cooperative wait of a streaming handler.
	WaitTimeoutMs int `json:"waitTimeoutMs" yaml:"waitTimeoutMs"`
	// PollSliceMs bounds one idle suspension inside a cooperative wait.
	PollSliceMs     int    `json:"pollSliceMs" yaml:"pollSliceMs"`
	MaxFilterLength int    `json:"maxFilterLength" yaml:"maxFilterLength"`
	FilterCostLimit uint64 `json:"filterCostLimit" yaml:"filterCostLimit"`
	// MaxPublishBytes caps publish request bodies.
	MaxPublishBytes int64 `json:"maxPublishBytes" yaml:"maxPublishBytes"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir: DefaultDataDir(),
		Fsync:   "interval",
		Server: Server{
			HTTPAddr:          ":5665",
			GRPCAddr:          ":5666",
			ShutdownTimeoutMs: 5000,
		},
		Auth: Auth{
			Enabled: true,
			Realm:   "evbus",
		},
		Events: Events{
			WaitTimeoutMs:   5000,
			PollSliceMs:     100,
			MaxFilterLength: 4096,
			FilterCostLimit: 100_000,
			MaxPublishBytes: 1 << 20,
		},
		Log: logpkg.Config{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top
// of Default. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: dataDir is required")
	}
	if c.Server.HTTPAddr == "" && c.Server.GRPCAddr == "" {
		return errors.New("config: at least one of server.httpAddr and server.grpcAddr is required")
	}
	if c.Events.WaitTimeoutMs <= 0 {
		return errors.New("config: events.waitTimeoutMs must be positive")
	}
	if c.Events.PollSliceMs <= 0 {
		return errors.New("config: events.pollSliceMs must be positive")
	}
	if c.Events.MaxFilterLength <= 0 {
		return errors.New("config: events.maxFilterLength must be positive")
	}
	for i, u := range c.Auth.Users {
		if u.Name == "" {
			return fmt.Errorf("config: auth.users[%d]: name is required", i)
		}
	}
	return nil
}

// WaitTimeout returns Events.WaitTimeoutMs as a duration.
func (e Events) WaitTimeout() time.Duration { return time.Duration(e.WaitTimeoutMs) * time.Millisecond }

// PollSlice returns Events.PollSliceMs as a duration.
func (e Events) PollSlice() time.Duration { return time.Duration(e.PollSliceMs) * time.Millisecond }

// ShutdownTimeout returns Server.ShutdownTimeoutMs as a duration.
func (s Server) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutMs) * time.Millisecond
}
