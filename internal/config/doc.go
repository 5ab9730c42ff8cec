// Package config loads and validates the TOML configuration consumed by the
// daemon and CLI. The Config value is constructed once at startup and passed
// by reference into each component.
package config
