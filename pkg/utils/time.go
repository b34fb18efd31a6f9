package utils

import "time"

// DateLayout is the calendar-day key format (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// ParseTimestamp parses a stored timestamp. RFC3339 without fractions is accepted.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	return t.UTC(), err
}

// ParseTimestampPtr parses an optional stored timestamp. Empty strings and
// malformed values read as nil.
func ParseTimestampPtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := ParseTimestamp(*s)
	if err != nil {
		return nil
	}
	return &t
}
