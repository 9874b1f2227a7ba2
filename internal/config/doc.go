// Package config provides configuration loading and validation for the storyreel client.
// It reads a YAML file on top of built-in defaults, loads optional .env files and
// applies STORYREEL_* environment overrides before validating every section.
package config
