// Package history records device activity into time-series storage.
//
// A Recorder subscribes to the event bus and forwards numeric property
// changes and connection transitions to InfluxDB. Non-numeric property
// values are skipped; the registry remains their only store. Recording is
// strictly observational: failures never propagate back into the
// operation that caused the event.
package history
