// Package config loads, normalizes, and validates tally configuration data.
//
// It supplies defaults, expands user paths (including tilde shortcuts), and
// reads TOML files. The Config type centralizes every knob the daemon and CLI
// need: where checkpoints live, how large file chunks are, how often progress
// is persisted, and which currency codes the balance scanner recognizes.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
