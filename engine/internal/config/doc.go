// Package config loads, validates and hot-reloads the engine's YAML
// configuration. Every structural constraint — threshold ordering, weight
// sums, cooling and threshold ranges — is checked at load time so a bad
// config fails the process at startup instead of surfacing mid-pass.
// Secrets are never stored in the file; auth fields name environment
// variables and resolve them on demand.
package config
