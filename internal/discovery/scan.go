package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

// Alpaca discovery protocol constants.
const (
	// discoveryMessage is the fixed probe payload.
	discoveryMessage = "alpacadiscovery1"

	// discoveryPort is the UDP port Alpaca servers listen on for probes.
	discoveryPort = 32227

	// defaultScanWindow bounds how long a scan waits for replies.
	defaultScanWindow = 2 * time.Second
)

// Candidate is one server that answered a discovery probe.
type Candidate struct {
	Address string
	Port    int
}

// Scanner finds candidate servers on the network.
type Scanner interface {
	Scan(ctx context.Context) ([]Candidate, error)
}

// UDPScanner probes for Alpaca servers by broadcasting the discovery
// message and collecting AlpacaPort replies within the scan window.
type UDPScanner struct {
	// Window bounds the reply collection phase. Zero means the default.
	Window time.Duration
}

// discoveryReply is the JSON body of a server's probe response.
type discoveryReply struct {
	AlpacaPort int `json:"AlpacaPort"`
}

// Scan broadcasts the probe on every broadcast-capable interface plus the
// limited broadcast address, then collects replies until the window closes.
// An empty network is an empty result, not an error.
func (s *UDPScanner) Scan(ctx context.Context) ([]Candidate, error) {
	window := s.Window
	if window <= 0 {
		window = defaultScanWindow
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, &Error{Endpoint: "udp4 broadcast", Err: err}
	}
	defer conn.Close() //nolint:errcheck // Best-effort close on read path

	deadline := time.Now().Add(window)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, &Error{Endpoint: "udp4 broadcast", Err: err}
	}

	for _, target := range broadcastTargets() {
		// Send failures on one interface must not abort the probe of the
		// others; a down interface simply contributes no replies.
		if _, err := conn.WriteTo([]byte(discoveryMessage), target); err != nil {
			continue
		}
	}

	seen := make(map[string]struct{})
	var found []Candidate
	buf := make([]byte, 1024)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			// Deadline expiry ends the collection phase normally.
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return found, nil
			}
			return found, &Error{Endpoint: "udp4 broadcast", Err: err}
		}

		var reply discoveryReply
		if err := json.Unmarshal(buf[:n], &reply); err != nil || reply.AlpacaPort <= 0 {
			continue
		}

		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			continue
		}
		c := Candidate{Address: host, Port: reply.AlpacaPort}
		key := fmt.Sprintf("%s:%d", c.Address, c.Port)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		found = append(found, c)
	}
}

// broadcastTargets enumerates the UDP destinations to probe: the limited
// broadcast address plus each interface's directed broadcast.
func broadcastTargets() []*net.UDPAddr {
	targets := []*net.UDPAddr{{IP: net.IPv4bcast, Port: discoveryPort}}

	ifaces, err := net.Interfaces()
	if err != nil {
		return targets
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagBroadcast == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			bcast := directedBroadcast(ipNet)
			if bcast == nil || strings.HasPrefix(bcast.String(), "127.") {
				continue
			}
			targets = append(targets, &net.UDPAddr{IP: bcast, Port: discoveryPort})
		}
	}
	return targets
}

// directedBroadcast computes the broadcast address for an IPv4 network.
func directedBroadcast(ipNet *net.IPNet) net.IP {
	ip := ipNet.IP.To4()
	mask := ipNet.Mask
	if ip == nil || len(mask) != net.IPv4len {
		return nil
	}
	bcast := make(net.IP, net.IPv4len)
	for i := range bcast {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}
