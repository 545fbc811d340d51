// Package config provides configuration loading and validation for the
// receiver. Settings come from built-in defaults, an optional YAML file, and
// environment variables, in increasing order of precedence.
package config
