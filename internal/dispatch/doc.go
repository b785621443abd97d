// Package dispatch routes property reads, property writes, method calls,
// and image fetches to a device's remote transport.
//
// Every call is guarded by the device's connection state: a device that is
// not connected rejects the call before any network traffic. Calls are
// never retried automatically; remote commands are not idempotent, so the
// retry decision belongs to the caller.
//
// Property writes follow a two-phase optimistic pattern: ApplyOptimistic
// records the desired value in the registry immediately so the UI reflects
// intent, and Reconcile either confirms the value reported by the device or
// rolls the registry back to the prior value when the remote call failed.
package dispatch
