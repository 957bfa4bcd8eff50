package history

import (
	"time"

	"github.com/irefuse3585/event-manager-api/pkg/schedule"
)

// ChangeOp classifies how a field moved between two snapshots.
type ChangeOp string

const (
	OpUnchanged ChangeOp = "unchanged"
	OpAdded     ChangeOp = "added"
	OpRemoved   ChangeOp = "removed"
	OpChanged   ChangeOp = "changed"
)

// FieldChange is one line of a structural diff.
type FieldChange struct {
	Field string   `json:"field"`
	Op    ChangeOp `json:"op"`
	From  any      `json:"from,omitempty"`
	To    any      `json:"to,omitempty"`
}

// Diff compares two snapshots field by field. The output order follows the
// snapshot's declared field set, so the same pair of snapshots always
// produces the same change list.
func Diff(a, b Snapshot) []FieldChange {
	changes := make([]FieldChange, 0, 8)
	changes = append(changes,
		diffString("title", a.Title, b.Title),
		diffString("description", a.Description, b.Description),
		diffString("location", a.Location, b.Location),
		diffTime("startTime", a.StartTime, b.StartTime),
		diffTime("endTime", a.EndTime, b.EndTime),
		diffBool("isRecurring", a.IsRecurring, b.IsRecurring),
		diffString("recurrenceRule", a.RecurrenceRule, b.RecurrenceRule),
		diffOccurrences(a.Occurrences, b.Occurrences),
	)
	return changes
}

// diffString treats the empty string as an absent optional value.
func diffString(field, from, to string) FieldChange {
	switch {
	case from == to:
		return FieldChange{Field: field, Op: OpUnchanged}
	case from == "":
		return FieldChange{Field: field, Op: OpAdded, To: to}
	case to == "":
		return FieldChange{Field: field, Op: OpRemoved, From: from}
	default:
		return FieldChange{Field: field, Op: OpChanged, From: from, To: to}
	}
}

func diffTime(field string, from, to time.Time) FieldChange {
	if from.Equal(to) {
		return FieldChange{Field: field, Op: OpUnchanged}
	}
	return FieldChange{Field: field, Op: OpChanged, From: from.UTC(), To: to.UTC()}
}

func diffBool(field string, from, to bool) FieldChange {
	if from == to {
		return FieldChange{Field: field, Op: OpUnchanged}
	}
	return FieldChange{Field: field, Op: OpChanged, From: from, To: to}
}

func diffOccurrences(from, to []schedule.Interval) FieldChange {
	const field = "occurrences"
	switch {
	case occurrencesEqual(from, to):
		return FieldChange{Field: field, Op: OpUnchanged}
	case len(from) == 0:
		return FieldChange{Field: field, Op: OpAdded, To: to}
	case len(to) == 0:
		return FieldChange{Field: field, Op: OpRemoved, From: from}
	default:
		return FieldChange{Field: field, Op: OpChanged, From: from, To: to}
	}
}
