// Package config loads, normalizes, and validates podpublish configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads .env files, and honours the environment
// variables operators already use (SOUNDON_EMAIL, AIRTABLE_API_KEY,
// OPENROUTER_API_KEY, PLAYWRIGHT_HEADLESS, and friends).
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enums, and clear validation errors.
package config
