package domain

import "time"

// DefaultCutoff is the earliest outage begin kept when no cutoff is configured.
var DefaultCutoff = time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)

// ParseCutoff parses an RFC 3339 cutoff instant such as "2022-01-01T00:00:00.000Z".
func ParseCutoff(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FilterSince returns the outages that began at or after cutoff, in input
// order. The cutoff instant itself is included.
func FilterSince(outages []Outage, cutoff time.Time) []Outage {
	kept := make([]Outage, 0, len(outages))
	for _, o := range outages {
		if o.Begin.Before(cutoff) {
			continue
		}
		kept = append(kept, o)
	}
	return kept
}
