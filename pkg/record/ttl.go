package record

import (
	"math"
	"strconv"
	"strings"
)

// UnsetField is the marker Zeek writes for a field without a value
const UnsetField = "-"

// ParseTTL converts a TTL as written in a log into the value stored for a
// record. The unset marker, empty strings, and values which are not numbers
// map to nil. Fractional values are truncated toward zero.
func ParseTTL(ttl string) *int64 {
	ttl = strings.TrimSpace(ttl)
	if ttl == "" || ttl == UnsetField {
		return nil
	}

	parsed, err := strconv.ParseFloat(ttl, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return nil
	}
	if parsed >= math.MaxInt64 || parsed < math.MinInt64 {
		return nil
	}

	truncated := int64(math.Trunc(parsed))
	return &truncated
}
