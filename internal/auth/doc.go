// Package auth provides authentication and authorisation for AstroHub Core.
//
// It implements a 3-tier role model (observer → operator → admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - JWT access/refresh token rotation with family-based theft detection
//   - Static role-permission mapping (compile-time, no database lookup)
//
// Observers can read device state and discovery results but cannot touch
// hardware. Operators additionally connect, command, and scan. Admins
// manage users, manual server entries, and system operations.
package auth
