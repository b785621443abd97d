// Package bus provides the in-process publish/subscribe event bus that
// decouples the device registry, connection lifecycle, dispatcher, and
// discovery service from their observers (WebSocket hub, telemetry writers,
// MQTT export).
//
// Events are delivered synchronously, in subscription order, on the goroutine
// that published them. A panicking handler is isolated and logged; remaining
// handlers still run. The bus keeps no history: late subscribers pull current
// state from the registry instead of replaying events.
package bus
