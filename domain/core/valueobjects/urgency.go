package valueobjects

import "fmt"

// Urgency is the declared tier of a request or ritual.
type Urgency string

const (
	UrgencyGentle    Urgency = "gentle"
	UrgencyImportant Urgency = "important"
	UrgencyCritical  Urgency = "critical"
)

// AllUrgencies lists tiers from least to most urgent.
var AllUrgencies = []Urgency{UrgencyGentle, UrgencyImportant, UrgencyCritical}

// Weight returns the ranking weight of the tier. Unknown tiers weigh 0.
func (u Urgency) Weight() int {
	switch u {
	case UrgencyCritical:
		return 3
	case UrgencyImportant:
		return 2
	case UrgencyGentle:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether u is a known tier.
func (u Urgency) IsValid() bool {
	return u.Weight() > 0
}

// ParseUrgency parses a tier name.
func ParseUrgency(s string) (Urgency, error) {
	u := Urgency(s)
	if !u.IsValid() {
		return "", fmt.Errorf("invalid urgency %q", s)
	}
	return u, nil
}
