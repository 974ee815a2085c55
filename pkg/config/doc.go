// Package config loads and validates application configuration from
// environment variables. All variables carry the PARIKSHA_ prefix; every
// setting has a default suitable for local development except the database
// URL and the JWT signing secret, which are required.
package config
