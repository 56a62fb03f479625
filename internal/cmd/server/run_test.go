package serverrun

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/evbus/internal/config"
	"github.com/rzbill/evbus/internal/runtime"
	logpkg "github.com/rzbill/evbus/pkg/log"
)

func TestOptionsResolve(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		dataDir  string
		grpcAddr string
		httpAddr string
	}{
		{
			name:     "config values kept",
			opts:     Options{Config: cfgpkg.Config{DataDir: "/cfg", Server: cfgpkg.Server{GRPCAddr: ":1", HTTPAddr: ":2"}}},
			dataDir:  "/cfg",
			grpcAddr: ":1",
			httpAddr: ":2",
		},
		{
			name:     "overrides win",
			opts:     Options{Config: cfgpkg.Default(), DataDir: "/custom", GRPCAddr: ":50051", HTTPAddr: ":8080"},
			dataDir:  "/custom",
			grpcAddr: ":50051",
			httpAddr: ":8080",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.opts.resolve()
			if cfg.DataDir != tt.dataDir {
				t.Errorf("DataDir = %q, want %q", cfg.DataDir, tt.dataDir)
			}
			if cfg.Server.GRPCAddr != tt.grpcAddr {
				t.Errorf("GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, tt.grpcAddr)
			}
			if cfg.Server.HTTPAddr != tt.httpAddr {
				t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, tt.httpAddr)
			}
		})
	}
}

func TestOptionsDataDirFallback(t *testing.T) {
	cfg := Options{}.resolve()
	if cfg.DataDir == "" {
		t.Fatal("expected DataDir to be set after fallback")
	}
	if cfg.DataDir != cfgpkg.DefaultDataDir() {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, cfgpkg.DefaultDataDir())
	}
}

func TestRunRequiresListener(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Server.GRPCAddr = ""
	cfg.Server.HTTPAddr = ""
	cfg.DataDir = t.TempDir()
	if err := Run(context.Background(), Options{Config: cfg, Logger: logpkg.NewNopLogger()}); err != ErrNoListeners {
		t.Fatalf("expected ErrNoListeners, got %v", err)
	}
}

func TestBuildLoggerFallsBack(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Log.Format = "xml"
	cfg.Log.Outputs = []string{"null"}
	if l := buildLogger(cfg); l == nil {
		t.Fatal("expected a logger")
	}
}

// TestRunIntegration starts both listeners on ephemeral ports and stops them
// by cancelling the context.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := cfgpkg.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "store")
	cfg.Fsync = "never"
	cfg.Server.GRPCAddr = "127.0.0.1:0"
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeoutMs = 500

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan *runtime.Runtime, 1)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{
			Config: cfg,
			Logger: logpkg.NewNopLogger(),
			Ready:  func(rt *runtime.Runtime) { ready <- rt },
		})
	}()

	select {
	case rt := <-ready:
		if err := rt.CheckHealth(context.Background()); err != nil {
			t.Fatalf("health: %v", err)
		}
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
