package handlers

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// parseDate accepts the bare calendar-day layout the ingestion API uses and
// falls back to RFC 3339 for clients that send full timestamps. An empty
// string parses to the zero time so callers can apply their own default.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want %s", raw, dateLayout)
	}
	return t, nil
}
