package compose

import "strings"

const maxHostnameLen = 63 // DNS label limit

// Mkhostname implements spec.md §4.5: lowercase, collapse anything
// outside [a-z0-9-] into a single "-", trim the edges, fall back to
// "gw" when nothing's left, and truncate to the DNS label limit.
func Mkhostname(s string) string {
	lower := strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(lower))
	lastWasDash := false
	for _, r := range lower {
		isAllowed := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
		if !isAllowed {
			r = '-'
		}
		if r == '-' && lastWasDash {
			continue
		}
		b.WriteRune(r)
		lastWasDash = r == '-'
	}

	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "gw"
	}
	if len(out) > maxHostnameLen {
		out = out[:maxHostnameLen]
		out = strings.TrimRight(out, "-")
		if out == "" {
			out = "gw"
		}
	}
	return out
}
