// Package config loads, normalizes, and validates pagebind configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// CLI and pipeline need, so downstream code always receives sanitized paths
// and canonical values.
package config
