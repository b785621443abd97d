package discovery

import (
	"fmt"
	"time"
)

// Descriptor describes one discovered Alpaca server before any of its
// devices are registered. Descriptors are ephemeral: a later pass for the
// same address:port supersedes the whole value, never merges into it.
type Descriptor struct {
	Address       string    `json:"address"`
	Port          int       `json:"port"`
	ServerName    string    `json:"server_name"`
	Manufacturer  string    `json:"manufacturer"`
	DiscoveredAt  time.Time `json:"discovered_at"`
	IsManualEntry bool      `json:"is_manual_entry"`
}

// Key is the deduplication key for this server.
func (d Descriptor) Key() string {
	return fmt.Sprintf("%s:%d", d.Address, d.Port)
}
