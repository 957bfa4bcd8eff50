// Package schedule detects time overlaps between calendar intervals. It is
// deliberately pure: callers load the owner's stored intervals and pass them
// in together with the candidate intervals of the mutation being checked.
package schedule

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Interval is a half-open time range [Start, End). Instants are compared in
// UTC; two intervals that merely touch (one's End equals the other's Start)
// do not overlap.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the two half-open intervals intersect.
// Zero-length intervals overlap nothing.
func (iv Interval) Overlaps(other Interval) bool {
	if !iv.Start.Before(iv.End) || !other.Start.Before(other.End) {
		return false
	}
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// IsZero reports whether the interval carries no instants at all.
func (iv Interval) IsZero() bool {
	return iv.Start.IsZero() && iv.End.IsZero()
}

// OwnedInterval ties an interval to the event it belongs to.
type OwnedInterval struct {
	EventID uuid.UUID
	Interval
}

// Conflict identifies one stored interval that overlaps a candidate.
type Conflict struct {
	EventID  uuid.UUID `json:"eventId"`
	Interval Interval  `json:"interval"`
}

// CheckOverlap returns every existing interval that overlaps any candidate,
// excluding intervals belonging to the event identified by exclude (an event
// never conflicts with itself). The result is deduplicated and ordered by
// interval start, then event ID; a sorted sweep keeps the scan linear once
// both sides are ordered.
func CheckOverlap(existing []OwnedInterval, candidates []Interval, exclude uuid.UUID) []Conflict {
	if len(existing) == 0 || len(candidates) == 0 {
		return nil
	}

	pool := make([]OwnedInterval, 0, len(existing))
	for _, ov := range existing {
		if exclude != uuid.Nil && ov.EventID == exclude {
			continue
		}
		if !ov.Start.Before(ov.End) {
			continue
		}
		pool = append(pool, ov)
	}
	if len(pool) == 0 {
		return nil
	}

	sort.Slice(pool, func(i, j int) bool {
		if !pool[i].Start.Equal(pool[j].Start) {
			return pool[i].Start.Before(pool[j].Start)
		}
		return pool[i].End.Before(pool[j].End)
	})

	cands := make([]Interval, 0, len(candidates))
	for _, c := range candidates {
		if c.Start.Before(c.End) {
			cands = append(cands, c)
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].Start.Before(cands[j].Start) })
	if len(cands) == 0 {
		return nil
	}

	type key struct {
		id         uuid.UUID
		start, end int64
	}
	seen := make(map[key]struct{})
	var conflicts []Conflict

	for _, c := range cands {
		// Intervals starting at or after c.End cannot overlap c; earlier
		// ones still can, so only the tail is skipped.
		for _, ov := range pool {
			if !ov.Start.Before(c.End) {
				break
			}
			if !ov.Overlaps(c) {
				continue
			}
			k := key{ov.EventID, ov.Start.UnixNano(), ov.End.UnixNano()}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			conflicts = append(conflicts, Conflict{EventID: ov.EventID, Interval: ov.Interval})
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		if !conflicts[i].Interval.Start.Equal(conflicts[j].Interval.Start) {
			return conflicts[i].Interval.Start.Before(conflicts[j].Interval.Start)
		}
		if !conflicts[i].Interval.End.Equal(conflicts[j].Interval.End) {
			return conflicts[i].Interval.End.Before(conflicts[j].Interval.End)
		}
		return conflicts[i].EventID.String() < conflicts[j].EventID.String()
	})
	return conflicts
}
