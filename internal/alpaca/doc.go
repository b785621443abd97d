// Package alpaca implements the client side of the ASCOM Alpaca HTTP
// device-control protocol.
//
// It provides the JSON transport for per-device calls of the shape
// {base}/api/v1/{type}/{number}/{action}, the server-level management API
// (description, configureddevices), the connected property used by the
// connection lifecycle, and the binary ImageBytes decoder for captured
// images.
//
// The client never retries: device commands such as a slew are not safely
// idempotent, so retry is a decision left to the caller.
package alpaca
