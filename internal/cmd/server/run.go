package serverrun

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/rzbill/evbus/internal/config"
	"github.com/rzbill/evbus/internal/runtime"
	grpcserver "github.com/rzbill/evbus/internal/server/grpc"
	httpserver "github.com/rzbill/evbus/internal/server/http"
	pebblestore "github.com/rzbill/evbus/internal/storage/pebble"
	logpkg "github.com/rzbill/evbus/pkg/log"
)

// ErrNoListeners is returned when both listen addresses are empty.
var ErrNoListeners = errors.New("serverrun: no listen address configured")

type Options struct {
	Config cfgpkg.Config
	// DataDir, GRPCAddr, HTTPAddr and Fsync override Config when set.
	DataDir  string
	GRPCAddr string
	HTTPAddr string
	Fsync    pebblestore.FsyncMode
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
	// Ready, if set, is called once listeners are about to start.
	Ready func(*runtime.Runtime)
}

// resolve folds the overrides into a single Config.
func (o Options) resolve() cfgpkg.Config {
	cfg := o.Config
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	if o.GRPCAddr != "" {
		cfg.Server.GRPCAddr = o.GRPCAddr
	}
	if o.HTTPAddr != "" {
		cfg.Server.HTTPAddr = o.HTTPAddr
	}
	return cfg
}

func buildLogger(cfg cfgpkg.Config) logpkg.Logger {
	l, err := logpkg.ApplyConfig(&cfg.Log)
	if err == nil {
		return l
	}
	lvl, perr := logpkg.ParseLevel(cfg.Log.Level)
	if perr != nil {
		lvl = logpkg.InfoLevel
	}
	l = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	l.Warn("invalid log configuration, using defaults", logpkg.Err(err))
	return l
}

// Run starts the gRPC and HTTP servers and blocks until ctx is cancelled
// or a termination signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	sctx, cancel := context.WithCancel(sctx)
	defer cancel()

	cfg := opts.resolve()
	if cfg.Server.GRPCAddr == "" && cfg.Server.HTTPAddr == "" {
		return ErrNoListeners
	}

	procLogger := opts.Logger
	if procLogger == nil {
		procLogger = buildLogger(cfg)
	}
	// Pebble logs through the standard library logger.
	logpkg.RedirectStdLog(procLogger)

	rt, err := runtime.Open(runtime.Options{Config: cfg, Fsync: opts.Fsync, Logger: procLogger})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting evbus server",
		logpkg.Str("grpc", cfg.Server.GRPCAddr),
		logpkg.Str("http", cfg.Server.HTTPAddr),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Bool("auth", cfg.Auth.Enabled),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
	)

	var (
		wg   sync.WaitGroup
		gsrv *grpcserver.Server
		hsrv *httpserver.Server
	)
	errCh := make(chan error, 2)

	if addr := cfg.Server.GRPCAddr; addr != "" {
		gsrv = grpcserver.New(rt, procLogger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gsrv.ListenAndServe(sctx, addr); err != nil && sctx.Err() == nil {
				procLogger.Error("grpc server failed", logpkg.Err(err))
				errCh <- err
			}
		}()
	}
	if addr := cfg.Server.HTTPAddr; addr != "" {
		hsrv = httpserver.New(rt, procLogger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hsrv.ListenAndServe(sctx, addr); err != nil && sctx.Err() == nil {
				procLogger.Error("http server failed", logpkg.Err(err))
				errCh <- err
			}
		}()
	}
	if opts.Ready != nil {
		opts.Ready(rt)
	}

	var runErr error
	select {
	case <-sctx.Done():
	case runErr = <-errCh:
		cancel()
	}

	// Servers drain before the runtime closes the store.
	wg.Wait()
	if gsrv != nil {
		gsrv.Close()
	}
	if hsrv != nil {
		hsrv.Close()
	}
	procLogger.Info("evbus server stopped")
	return runErr
}
