// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to the settings of the broker, store, cache and dispatcher while keeping
// configuration details separate from pipeline logic.
package config
