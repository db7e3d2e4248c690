// Package config loads, normalizes, and validates Loreweave configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads optional .env files, and honours
// environment fallbacks such as OPENROUTER_API_KEY. The Config type centralizes
// every knob the daemon and CLI need: storage and log directories, the API
// bind address, LLM connection details, and detector thresholds.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
