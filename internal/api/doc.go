// Package api implements the HTTP REST API and WebSocket server for Tickline Core.
//
// This package provides:
//   - REST endpoints for script execution, run history, and shared state
//   - Synchronous remote action calls over HTTP
//   - WebSocket hub for real-time run, state, and filter broadcasts
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between operator tooling (dashboards, CLIs) and the
// script engine + MQTT bus. Script invocations go straight to the engine's
// tick loop; action calls go through the shared call table so HTTP and MQTT
// callers share timeout and correlation semantics. Broker state and filter
// topics are relayed to WebSocket subscribers.
//
// # Graceful Degradation
//
// The server operates without MQTT — script execution, action calls, and
// WebSocket run events still work, only the broker relay is disabled.
package api
