// Package config provides configuration loading and validation for
// streamkit applications.
//
// It uses Viper to load configuration from a YAML file, layered with a
// .env file and process environment variables (highest precedence).
// Every configuration section follows the same contract: an
// ApplyDefaults method filling zero values and a Validate method
// returning a descriptive error.
//
// # Usage
//
//	var cfg myapp.Config
//	err := config.Load("realtime", &cfg)
//
// Environment variables map onto nested keys by underscore separation
// (e.g. SSE_SWEEP_INTERVAL_MS -> sse.sweep_interval_ms).
package config
