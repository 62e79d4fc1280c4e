// Package config loads support-gateway configuration.
//
// Files ending in .toml are decoded as TOML; anything else is YAML. Before
// decoding, ${VAR} references are replaced with environment values (unset
// variables become empty strings). Durations are written as strings like
// "30s" or "12h".
//
// Example:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	database:
//	  path: "/var/lib/support-gateway/support.db"
//	auth:
//	  jwt_secret: "${SUPPORT_JWT_SECRET}"
//	routing:
//	  policy: "exclusive"
//	events:
//	  amqp_url: "${SUPPORT_AMQP_URL}"
//
// Only database.path is required. Everything else has a default; see
// the Default* constants.
package config
