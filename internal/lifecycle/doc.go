// Package lifecycle drives device connection transitions.
//
// A device moves disconnected -> connecting -> connected and back through
// disconnecting. The intermediate states double as transition locks: while
// one caller holds connecting or disconnecting, other transition attempts
// are rejected rather than queued. Connect is idempotent against an already
// connected device and issues no remote call in that case. Disconnect is
// best-effort: the device always ends disconnected locally even when the
// remote release fails, with the failure recorded on the device.
package lifecycle
