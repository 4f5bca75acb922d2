// Package config loads and validates the line configuration.
//
// Configuration is a single YAML file. Loading is two-phase: the file is
// checked against an embedded CUE schema for shape (unknown fields,
// types, required keys, numeric bounds), then converted into domain
// objects whose own validation enforces the semantic rules (register
// block overlap, template consistency, offset triggers).
//
// A configuration that fails either phase is rejected whole. Callers
// reloading at runtime keep the prior configuration active.
package config
