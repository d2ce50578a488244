package utils

import (
	"fmt"
	"strings"
)

// FormatDuration formats milliseconds as "1d 2h 3m 4s", omitting zero units.
// Sub-second remainders are dropped; durations under a second format as "0s".
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	s := ms / 1000
	d, s := s/86400, s%86400
	h, s := s/3600, s%3600
	m, s := s/60, s%60

	var parts []string
	for _, u := range []struct {
		n    int64
		unit string
	}{{d, "d"}, {h, "h"}, {m, "m"}, {s, "s"}} {
		if u.n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", u.n, u.unit))
		}
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}
