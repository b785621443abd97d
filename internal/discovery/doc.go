// Package discovery locates Alpaca servers on the network and turns their
// configured devices into registrable entries.
//
// Servers arrive on two paths that merge into one: an automatic UDP
// broadcast scan, and manual address/port entry. Both produce the same
// descriptor shape, keyed by address:port. A later pass replaces a
// descriptor wholesale; it is never mutated in place. Manual entries are
// persisted so they survive a restart, and the manual tag is sticky: an
// automatic scan that rediscovers a manually added server does not clear it.
//
// Enumerated devices are merged into the registry by deterministic id, so
// re-discovery never resets a device that is already registered.
package discovery
