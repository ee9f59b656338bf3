// Package server exposes declared routes over HTTP.
//
// Each route gets a Controller handler that runs the request lifecycle:
// before hook, statement chain (and optional count), after hook, response.
// The controller is the only component that writes HTTP responses; hooks
// may write one themselves, in which case the controller stops.
//
// Hooks are Go functions registered by name in a Registry and referenced by
// name from configuration.
package server
