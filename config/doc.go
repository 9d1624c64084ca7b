// Package config handles loading and parsing of configuration from YAML files,
// a .env file and environment variables. It defines the server, logging,
// upstream, resilience, refresh and metrics settings of the orders gateway.
package config
