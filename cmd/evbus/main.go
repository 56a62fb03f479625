package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	clientcmd "github.com/rzbill/evbus/internal/cmd/client"
	serverrun "github.com/rzbill/evbus/internal/cmd/server"
	cfgpkg "github.com/rzbill/evbus/internal/config"
	pebblestore "github.com/rzbill/evbus/internal/storage/pebble"
	logpkg "github.com/rzbill/evbus/pkg/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	v := viper.New()
	v.SetEnvPrefix("EVBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := newRootCommand(v)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "evbus",
		Short:        "evbus event stream server and client",
		Long:         "evbus fans events out to named queues and streams them to subscribers as newline-delimited JSON.",
		SilenceUsage: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (.json, .yaml)")
	pf.String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	pf.String("server", "http://127.0.0.1:5665", "HTTP API base URL")
	pf.String("grpc-server", "127.0.0.1:5666", "gRPC API address")
	pf.String("transport", "http", "Client transport: http|grpc")
	pf.String("user", "", "API user")
	pf.String("password", "", "API password")
	for _, name := range []string{"config", "data-dir", "server", "grpc-server", "transport", "user", "password"} {
		_ = v.BindPFlag(name, pf.Lookup(name))
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverCmd.AddCommand(newServerStartCommand(v))
	rootCmd.AddCommand(serverCmd)

	endpoint := func() clientcmd.Endpoint {
		return clientcmd.Endpoint{
			HTTPURL:   v.GetString("server"),
			GRPCAddr:  v.GetString("grpc-server"),
			Transport: v.GetString("transport"),
			User:      v.GetString("user"),
			Password:  v.GetString("password"),
		}
	}
	dataDir := func() string {
		cfg, err := loadConfig(v)
		if err != nil {
			return v.GetString("data-dir")
		}
		return cfg.DataDir
	}
	clientcmd.AddCommands(rootCmd, endpoint, dataDir)
	return rootCmd
}

func newServerStartCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Short:   "Start evbus server (gRPC and HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if pebblestore.ParseFsyncMode(cfg.Fsync) == pebblestore.FsyncModeUnspecified {
				return fmt.Errorf("invalid fsync mode %q; use always|interval|never", cfg.Fsync)
			}
			if _, err := logpkg.ParseLevel(cfg.Log.Level); err != nil {
				return err
			}
			if err := serverrun.Run(cmd.Context(), serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("http", ":5665", "HTTP listen address (empty disables)")
	f.String("grpc", ":5666", "gRPC listen address (empty disables)")
	f.String("fsync", "interval", "Fsync mode: always|interval|never")
	f.Bool("auth", true, "Require HTTP Basic / gRPC credentials")
	f.String("log-level", "info", "Log level: debug|info|warn|error")
	f.String("log-format", "text", "Log format: text|json")
	_ = v.BindPFlag("http-addr", f.Lookup("http"))
	_ = v.BindPFlag("grpc-addr", f.Lookup("grpc"))
	_ = v.BindPFlag("fsync", f.Lookup("fsync"))
	_ = v.BindPFlag("auth-enabled", f.Lookup("auth"))
	_ = v.BindPFlag("log-level", f.Lookup("log-level"))
	_ = v.BindPFlag("log-format", f.Lookup("log-format"))
	return cmd
}

// loadConfig layers defaults, the config file, EVBUS_* env and explicitly
// set flags, in that order.
func loadConfig(v *viper.Viper) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(v.GetString("config"))
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	if v.IsSet("data-dir") && v.GetString("data-dir") != "" {
		cfg.DataDir = v.GetString("data-dir")
	}
	if v.IsSet("http-addr") {
		cfg.Server.HTTPAddr = v.GetString("http-addr")
	}
	if v.IsSet("grpc-addr") {
		cfg.Server.GRPCAddr = v.GetString("grpc-addr")
	}
	if v.IsSet("fsync") {
		cfg.Fsync = v.GetString("fsync")
	}
	if v.IsSet("auth-enabled") {
		cfg.Auth.Enabled = v.GetBool("auth-enabled")
	}
	if v.IsSet("log-level") {
		cfg.Log.Level = v.GetString("log-level")
	}
	if v.IsSet("log-format") {
		cfg.Log.Format = v.GetString("log-format")
	}
	return cfg, cfg.Validate()
}
