// Package config loads service settings from defaults, an optional config
// file, a .env file and NAILART_* environment variables, then validates them.
package config
