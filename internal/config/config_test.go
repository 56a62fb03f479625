package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if !cfg.Auth.Enabled {
		t.Fatalf("auth should be enabled by default")
	}
	if cfg.Server.HTTPAddr != ":5665" {
		t.Fatalf("default http addr: %q", cfg.Server.HTTPAddr)
	}
	if cfg.Events.WaitTimeout() != 5*time.Second {
		t.Fatalf("default wait timeout: %v", cfg.Events.WaitTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "evbus.json")
	data := []byte(`{"server":{"httpAddr":"127.0.0.1:8080"},"auth":{"enabled":false},"events":{"waitTimeoutMs":250}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.Enabled {
		t.Fatalf("expected auth disabled")
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Fatalf("expected http addr override")
	}
	if cfg.Events.WaitTimeoutMs != 250 {
		t.Fatalf("expected 250")
	}
	if cfg.Events.PollSliceMs != 100 {
		t.Fatalf("unset fields keep defaults, got poll slice %d", cfg.Events.PollSliceMs)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "evbus.yaml")
	data := []byte(`
dataDir: /tmp/evbus
server:
  grpcAddr: ""
auth:
  users:
    - name: mon
      password: secret
      permissions: ["events/*"]
log:
  level: debug
`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/tmp/evbus" || cfg.Server.GRPCAddr != "" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.Auth.Users) != 1 || cfg.Auth.Users[0].Permissions[0] != "events/*" {
		t.Fatalf("users not loaded: %+v", cfg.Auth.Users)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level: %q", cfg.Log.Level)
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(file, []byte("server: [unterminated"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.HTTPAddr, cfg.Server.GRPCAddr = "", ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error without listeners")
	}
	cfg = Default()
	cfg.Events.PollSliceMs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero poll slice")
	}
	cfg = Default()
	cfg.Auth.Users = []User{{Password: "x"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for nameless user")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("EVBUS_AUTH_ENABLED", "false")
	t.Setenv("EVBUS_GRPC_ADDR", "")
	t.Setenv("EVBUS_EVENTS_WAIT_TIMEOUT_MS", "1500")
	t.Setenv("EVBUS_LOG_OUTPUTS", "console, null")
	FromEnv(&cfg)
	if cfg.Auth.Enabled {
		t.Fatalf("env override bool")
	}
	if cfg.Server.GRPCAddr != "" {
		t.Fatalf("empty env value must disable grpc")
	}
	if cfg.Events.WaitTimeoutMs != 1500 {
		t.Fatalf("env override wait timeout")
	}
	if len(cfg.Log.Outputs) != 2 || cfg.Log.Outputs[1] != "null" {
		t.Fatalf("env override outputs: %v", cfg.Log.Outputs)
	}
}
