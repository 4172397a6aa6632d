// Package config loads the ringbus configuration.
//
// Values are resolved in this order, highest first:
//
//   - command line flags registered with RegisterFlags
//   - environment variables prefixed with RINGBUS_ (RINGBUS_RING_BUFFER_SIZE)
//   - the config file (TOML, YAML or JSON, chosen by extension)
//   - built-in defaults
//
// Routes are read from the "routes" list and from "route_definitions", an
// ini-style block of "pattern = handler" lines. Definitions come first, so a
// "routes" entry wins over a definition that matches the same event.
//
// With watch_config set the file is watched and log.level is re-applied on
// change. Everything else, routes and ring sizing included, is fixed once
// the bus starts.
package config
