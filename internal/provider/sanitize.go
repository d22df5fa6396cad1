package provider

import (
	"strings"
	"time"
)

// htmlStrip removes <...> markup from upstream text. News payloads must be
// markup-free before they are considered usable or written to the cache.
func htmlStrip(in string) string {
	if strings.TrimSpace(in) == "" {
		return ""
	}
	var b strings.Builder
	inside := false
	for _, r := range in {
		switch r {
		case '<':
			inside = true
			continue
		case '>':
			inside = false
			continue
		}
		if !inside {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sanitizeText collapses whitespace and caps length.
func sanitizeText(in string, maxLen int) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return ""
	}
	in = strings.ReplaceAll(in, "\n", " ")
	in = strings.ReplaceAll(in, "\r", " ")
	in = strings.Join(strings.Fields(in), " ")
	if maxLen > 0 && len(in) > maxLen {
		in = in[:maxLen]
	}
	return in
}

// cleanNews applies both helpers to provider prose fields.
func cleanNews(in string, maxLen int) string {
	return sanitizeText(htmlStrip(in), maxLen)
}

// parseNewsTime tries the timestamp layouts seen across news upstreams.
// Returns the zero time when nothing matches.
func parseNewsTime(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	layouts := []string{
		"20060102T150405",
		time.RFC3339,
		"2006-01-02T15:04:05",
		time.RFC1123Z,
		time.RFC1123,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
