// Package api implements the HTTP REST API and WebSocket server for AstroHub Core.
//
// This package provides:
//   - REST endpoints for device listing, connection lifecycle, properties,
//     commands, and image retrieval
//   - Discovery endpoints for network scans and manual server entries
//   - WebSocket hub for real-time event broadcasts
//   - JWT authentication with refresh rotation and ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between observatory clients (dashboards, sequencers,
// mobile apps) and the device registry. Writes flow through the lifecycle
// manager and command dispatcher to Alpaca servers; registry events flow
// back over the in-process bus and are broadcast to WebSocket clients.
//
// # Security
//
// Authentication uses JWT access tokens validated on every protected route,
// with role-based permission checks (observer/operator/admin). WebSocket
// connections use single-use tickets to prevent token leakage in URLs.
package api
