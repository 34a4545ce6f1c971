// Package api implements the HTTP REST API and WebSocket stream for the
// ventilation bridge.
//
// Endpoints live under /api/v1:
//
//	GET    /health                             service status
//	GET    /device                             capability snapshot and session status
//	DELETE /device                             remove the device and its settings
//	PUT    /device/capabilities/{capability}   write a capability: {"value": ...}
//	GET    /device/settings                    stored settings
//	PATCH  /device/settings                    {"hostname"?, "name"?}
//	GET    /device/history?limit=N             recorded state snapshots
//	GET    /ws                                 device.state_changed events
//
// Prometheus metrics are served at /metrics when a gatherer is supplied.
//
// Errors are returned as {"status", "code", "message"}.
package api
