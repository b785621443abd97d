package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Resolve maps a raw identifier to a registered device using a single
// deterministic precedence:
//
//  1. Exact registry id.
//  2. "{type}:{number}" shorthand (e.g. "camera:0").
//  3. Bare device number (e.g. "0"), valid only when hintType is set;
//     resolved via Find, first match in sorted-id order.
//
// Anything else fails with ErrDeviceNotFound wrapped with the attempted
// identifier. There is no constructed-default fallback: a lookup that cannot
// be resolved surfaces the failure to the caller instead of guessing.
func Resolve(r *Registry, raw string, hintType DeviceType) (*Device, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrInvalidID)
	}

	// 1. Exact id.
	if dev, err := r.Get(raw); err == nil {
		return dev, nil
	}

	// 2. "{type}:{number}" shorthand.
	if t, n, ok := parseTypeNumber(raw); ok {
		if dev, err := r.Find(t, n); err == nil {
			return dev, nil
		}
		return nil, fmt.Errorf("%w: no %s device with number %d", ErrDeviceNotFound, t, n)
	}

	// 3. Bare device number, scoped by the caller-supplied type hint.
	if n, err := strconv.Atoi(raw); err == nil && hintType != "" {
		if dev, findErr := r.Find(hintType, n); findErr == nil {
			return dev, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, raw)
}

// parseTypeNumber parses the "{type}:{number}" shorthand.
func parseTypeNumber(raw string) (DeviceType, int, bool) {
	idx := strings.LastIndex(raw, ":")
	if idx <= 0 || idx == len(raw)-1 {
		return "", 0, false
	}
	t := DeviceType(raw[:idx])
	if !ValidType(t) {
		return "", 0, false
	}
	n, err := strconv.Atoi(raw[idx+1:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return t, n, true
}

// GenerateID creates a new unique id for a manually registered device that
// has no server-derived identity.
func GenerateID() string {
	return uuid.NewString()
}
