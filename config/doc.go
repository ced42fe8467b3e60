// Package config loads application settings from a YAML file, a .env file
// and environment variables, in increasing order of precedence.
package config
