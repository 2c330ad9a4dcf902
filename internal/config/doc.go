// Package config loads, normalizes, and validates kiln configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// KILN_SECRET. The Config type centralizes every knob the job engine, the
// datastores, the result cache, and the HTTP endpoint need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
