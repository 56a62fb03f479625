package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/evbus/internal/authz"
	cfgpkg "github.com/rzbill/evbus/internal/config"
	"github.com/rzbill/evbus/internal/eventqueue"
	pebblestore "github.com/rzbill/evbus/internal/storage/pebble"
	"github.com/rzbill/evbus/internal/telemetry"
	"github.com/rzbill/evbus/pkg/id"
	logpkg "github.com/rzbill/evbus/pkg/log"
	"go.opentelemetry.io/otel/metric"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// DataDir and Fsync override Config when set.
	DataDir string
	Fsync   pebblestore.FsyncMode
	Logger  logpkg.Logger
	// MeterProvider receives evbus metrics. Nil uses the global provider.
	MeterProvider metric.MeterProvider
	// UserStoreOptions tune the API user store (tests lower bcrypt cost).
	UserStoreOptions []authz.StoreOption
}

// Runtime is the process-scoped context of a single evbus node: storage,
// the queue registry, the broadcaster and the API user store.
type Runtime struct {
	db          *pebblestore.DB
	config      cfgpkg.Config
	logger      logpkg.Logger
	metrics     telemetry.Recorder
	registry    *eventqueue.Registry
	broadcaster *eventqueue.Broadcaster
	users       *authz.Store
	auth        *authz.Authenticator
	ids         *id.Generator
}

// Open initializes storage, seeds configured users and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	fsync := opts.Fsync
	if fsync == pebblestore.FsyncModeUnspecified {
		fsync = pebblestore.ParseFsyncMode(cfg.Fsync)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}

	metrics, err := telemetry.New(opts.MeterProvider)
	if err != nil {
		logger.Warn("metrics initialization failed, using no-op recorder", logpkg.Err(err))
		metrics = telemetry.Noop{}
	}

	db, err := pebblestore.Open(pebblestore.Options{DataDir: cfg.DataDir, Fsync: fsync})
	if err != nil {
		return nil, fmt.Errorf("runtime: open store: %w", err)
	}

	users := authz.NewStore(db, opts.UserStoreOptions...)
	if len(cfg.Auth.Users) > 0 {
		specs := make([]authz.Spec, 0, len(cfg.Auth.Users))
		for _, u := range cfg.Auth.Users {
			specs = append(specs, authz.Spec{Name: u.Name, Password: u.Password, Permissions: u.Permissions})
		}
		if err := users.Seed(context.Background(), specs); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("runtime: seed users: %w", err)
		}
	}

	qopts := []eventqueue.Option{
		eventqueue.WithLogger(logger),
		eventqueue.WithMetrics(metrics),
	}
	if cfg.Events.PollSliceMs > 0 {
		qopts = append(qopts, eventqueue.WithPollSlice(cfg.Events.PollSlice()))
	}
	registry := eventqueue.NewRegistry(qopts...)

	rt := &Runtime{
		db:          db,
		config:      cfg,
		logger:      logger,
		metrics:     metrics,
		registry:    registry,
		broadcaster: eventqueue.NewBroadcaster(registry, qopts...),
		users:       users,
		auth:        authz.NewAuthenticator(users, cfg.Auth.Enabled, cfg.Auth.Realm),
		ids:         id.NewGenerator(),
	}
	return rt, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth reports whether the store is usable.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Ping()
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the process logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }

// Metrics returns the metrics recorder.
func (r *Runtime) Metrics() telemetry.Recorder { return r.metrics }

// Registry returns the event queue registry.
func (r *Runtime) Registry() *eventqueue.Registry { return r.registry }

// Broadcaster returns the publish entry point.
func (r *Runtime) Broadcaster() *eventqueue.Broadcaster { return r.broadcaster }

// Users returns the API user store.
func (r *Runtime) Users() *authz.Store { return r.users }

// Auth returns the request authenticator.
func (r *Runtime) Auth() *authz.Authenticator { return r.auth }

// NextClientID returns a fresh subscriber id.
func (r *Runtime) NextClientID() id.ID { return r.ids.Next() }
