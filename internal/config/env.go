package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays EVBUS_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("EVBUS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("EVBUS_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v, ok := os.LookupEnv("EVBUS_HTTP_ADDR"); ok {
		cfg.Server.HTTPAddr = v
	}
	if v, ok := os.LookupEnv("EVBUS_GRPC_ADDR"); ok {
		cfg.Server.GRPCAddr = v
	}
	if v := os.Getenv("EVBUS_CORS_ALLOWED_ORIGIN"); v != "" {
		cfg.Server.CORSAllowedOrigin = v
	}
	if v := os.Getenv("EVBUS_AUTH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.Enabled = b
		}
	}
	if v := os.Getenv("EVBUS_AUTH_REALM"); v != "" {
		cfg.Auth.Realm = v
	}
	if v := os.Getenv("EVBUS_EVENTS_WAIT_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Events.WaitTimeoutMs = n
		}
	}
	if v := os.Getenv("EVBUS_EVENTS_POLL_SLICE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Events.PollSliceMs = n
		}
	}
	if v := os.Getenv("EVBUS_EVENTS_MAX_FILTER_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Events.MaxFilterLength = n
		}
	}
	if v := os.Getenv("EVBUS_EVENTS_FILTER_COST_LIMIT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Events.FilterCostLimit = n
		}
	}
	if v := os.Getenv("EVBUS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("EVBUS_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("EVBUS_LOG_OUTPUTS"); v != "" {
		cfg.Log.Outputs = nil
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.Log.Outputs = append(cfg.Log.Outputs, p)
			}
		}
	}
}
