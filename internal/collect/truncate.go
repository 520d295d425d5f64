package collect

import "strings"

// TailTruncate returns a suffix of s holding at most maxLines lines and at
// most maxBytes bytes, cutting at line boundaries where possible. The final
// lines of a CI log carry the actual assertion or error, so truncation
// always keeps the tail.
//
// The operation is deterministic and idempotent: truncating an
// already-truncated string yields it unchanged.
func TailTruncate(s string, maxLines, maxBytes int) (string, bool) {
	if s == "" {
		return "", false
	}
	if maxBytes <= 0 {
		return "", true
	}

	lines := strings.Split(s, "\n")
	if maxLines <= 0 {
		maxLines = len(lines)
	}

	// Walk backwards collecting whole lines until either budget runs out.
	total := 0
	start := len(lines)
	for i := len(lines) - 1; i >= 0 && len(lines)-i <= maxLines; i-- {
		n := len(lines[i])
		if start < len(lines) {
			n++ // the joining newline
		}
		if total+n > maxBytes {
			break
		}
		total += n
		start = i
	}

	if start == len(lines) {
		// Not even the final line fits: keep its byte suffix.
		last := lines[len(lines)-1]
		if len(last) > maxBytes {
			last = last[len(last)-maxBytes:]
		}
		return last, true
	}

	out := strings.Join(lines[start:], "\n")
	return out, start > 0
}
