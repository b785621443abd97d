package discovery

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists manually added servers so they survive a restart.
// Automatic scan results are never persisted; the network is their source
// of truth.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repository over an open database handle. The
// alpaca_servers table is created by the schema migrations.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Save upserts a manual server entry keyed by address and port.
func (r *Repository) Save(ctx context.Context, desc Descriptor) error {
	const q = `
		INSERT INTO alpaca_servers (address, port, server_name, manufacturer, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(address, port) DO UPDATE SET
			server_name = excluded.server_name,
			manufacturer = excluded.manufacturer`

	_, err := r.db.ExecContext(ctx, q,
		desc.Address, desc.Port, desc.ServerName, desc.Manufacturer,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving server %s: %w", desc.Key(), err)
	}
	return nil
}

// List returns all persisted manual servers ordered by address and port.
func (r *Repository) List(ctx context.Context) ([]Descriptor, error) {
	const q = `
		SELECT address, port, server_name, manufacturer, added_at
		FROM alpaca_servers
		ORDER BY address, port`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Best-effort close on read path

	var out []Descriptor
	for rows.Next() {
		var desc Descriptor
		var addedAt string
		if err := rows.Scan(&desc.Address, &desc.Port, &desc.ServerName, &desc.Manufacturer, &addedAt); err != nil {
			return nil, fmt.Errorf("scanning server row: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, addedAt); err == nil {
			desc.DiscoveredAt = ts
		}
		desc.IsManualEntry = true
		out = append(out, desc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}
	return out, nil
}

// Delete removes a manual server entry. Deleting an absent entry is a
// no-op.
func (r *Repository) Delete(ctx context.Context, address string, port int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM alpaca_servers WHERE address = ? AND port = ?`, address, port)
	if err != nil {
		return fmt.Errorf("deleting server %s:%d: %w", address, port, err)
	}
	return nil
}
