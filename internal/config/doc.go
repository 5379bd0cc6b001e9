// Package config provides YAML configuration loading and validation for the
// streaming service.
package config
