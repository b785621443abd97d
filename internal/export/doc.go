// Package export publishes hub events to MQTT for external consumers.
//
// The exporter is a one-way bridge: it subscribes to the in-process event
// bus and mirrors device state and events onto the AstroHub MQTT topics.
// Nothing is consumed back from the broker; external systems that want to
// act on a device go through the HTTP API.
//
// Connection state is published retained so late subscribers see the
// current state of every device immediately. Property changes and discrete
// events are published non-retained.
//
// Publish failures are logged and dropped. The broker is an observability
// surface, not a system of record, so a lost message never blocks or fails
// the operation that produced it.
package export
