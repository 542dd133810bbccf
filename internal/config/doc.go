// Package config handles configuration loading for blogsys.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by the .toml
// extension) with environment variable expansion. Load applies defaults and
// validates the result.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  session_secret: "${BLOGSYS_SESSION_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to an empty string. The CLI
// loads a .env file from the working directory before reading the config.
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  shutdown_timeout: "5s"
//
// Database (driver is memory, sqlite, mongo or firestore; default sqlite):
//
//	database:
//	  driver: "sqlite"
//	  path: "/var/lib/blogsys/blog.db"
//	  # uri: "mongodb://localhost:27017"   # mongo
//	  # name: "blogsys"                     # mongo
//	  # project_id: "my-project"           # firestore
//
// Authentication:
//
//	auth:
//	  session_secret: "${BLOGSYS_SESSION_SECRET}"  # at least 32 bytes
//	  init_admin_secret: "${INIT_ADMIN_SECRET_KEY}" # defaults to that variable
//	  session_ttl: "168h"
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "blogsys"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//	  funnel: false
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - http_addr is set unless tailscale is enabled
//   - tailscale.hostname when tailscale is enabled
//   - the connection settings the chosen database driver needs
//   - session secret minimum length (32 bytes)
//   - duration format validity
//
// An empty init admin secret is allowed; the bootstrap action reports it as a
// configuration error when someone tries to use it.
package config
