// Package config loads evbus configuration. It exposes a Default()
// baseline, Load for JSON or YAML files and FromEnv for EVBUS_* overrides.
//
// Example:
//
//	cfg, err := config.Load("/etc/evbus/evbus.yaml")
//	if err != nil { /* handle */ }
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { /* handle */ }
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
package config
