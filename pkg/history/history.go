// Package history is the append-only version store. Every event mutation
// appends a full snapshot; versions are never rewritten or deleted, and a
// rollback is itself a new version copying an older snapshot.
package history

import (
	"time"

	"github.com/google/uuid"
	"github.com/irefuse3585/event-manager-api/pkg/schedule"
)

// ChangeKind says what produced a version.
type ChangeKind string

const (
	ChangeCreate   ChangeKind = "create"
	ChangeUpdate   ChangeKind = "update"
	ChangeRollback ChangeKind = "rollback"
)

// Snapshot is the full event payload at one version. Empty strings mean the
// optional field is absent; Occurrences carries the concrete intervals a
// recurring event was declared with.
type Snapshot struct {
	Title          string              `json:"title"`
	Description    string              `json:"description,omitempty"`
	Location       string              `json:"location,omitempty"`
	StartTime      time.Time           `json:"startTime"`
	EndTime        time.Time           `json:"endTime"`
	IsRecurring    bool                `json:"isRecurring,omitempty"`
	RecurrenceRule string              `json:"recurrenceRule,omitempty"`
	Occurrences    []schedule.Interval `json:"occurrences,omitempty"`
}

// Intervals returns the base interval plus all declared occurrences, the
// set conflict detection runs against.
func (s Snapshot) Intervals() []schedule.Interval {
	intervals := make([]schedule.Interval, 0, len(s.Occurrences)+1)
	intervals = append(intervals, schedule.Interval{Start: s.StartTime, End: s.EndTime})
	intervals = append(intervals, s.Occurrences...)
	return intervals
}

// Clone returns a deep copy so stored versions never alias caller slices.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Occurrences != nil {
		out.Occurrences = make([]schedule.Interval, len(s.Occurrences))
		copy(out.Occurrences, s.Occurrences)
	}
	return out
}

// Equal compares snapshots field by field, treating times as instants.
func (s Snapshot) Equal(other Snapshot) bool {
	if s.Title != other.Title ||
		s.Description != other.Description ||
		s.Location != other.Location ||
		s.IsRecurring != other.IsRecurring ||
		s.RecurrenceRule != other.RecurrenceRule {
		return false
	}
	if !s.StartTime.Equal(other.StartTime) || !s.EndTime.Equal(other.EndTime) {
		return false
	}
	return occurrencesEqual(s.Occurrences, other.Occurrences)
}

func occurrencesEqual(a, b []schedule.Interval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) {
			return false
		}
	}
	return true
}

// Version is one entry in an event's append-only history. Numbers start at
// 1 and are contiguous per event.
type Version struct {
	EventID   uuid.UUID  `json:"eventId"`
	Number    int        `json:"version"`
	Kind      ChangeKind `json:"kind"`
	Snapshot  Snapshot   `json:"snapshot"`
	AuthorID  uuid.UUID  `json:"authorId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
