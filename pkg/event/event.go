// Package event orchestrates calendar event mutations. The coordinator is
// the single write path: it authorizes the caller, runs conflict detection,
// appends to the version log, and fans change notifications out, all
// inside a per-event exclusive section.
package event

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/irefuse3585/event-manager-api/internal/apierr"
	"github.com/irefuse3585/event-manager-api/pkg/history"
	"github.com/irefuse3585/event-manager-api/pkg/permission"
	"github.com/irefuse3585/event-manager-api/pkg/schedule"
	"github.com/teambition/rrule-go"
)

// Field limits carried over from the public API contract.
const (
	maxTitleLen          = 100
	maxDescriptionLen    = 1000
	maxLocationLen       = 200
	maxRecurrenceRuleLen = 100
)

// Event is the current state of one calendar event. The snapshot mirrors
// the latest entry in the version log; Deleted marks a tombstone whose
// history stays readable but which accepts no further mutations.
type Event struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Version   int
	Deleted   bool
	Snapshot  history.Snapshot
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Draft carries the fields a new event is created from. Override lets the
// caller accept scheduling conflicts instead of being blocked by them.
type Draft struct {
	Title          string
	Description    string
	Location       string
	StartTime      time.Time
	EndTime        time.Time
	IsRecurring    bool
	RecurrenceRule string
	Occurrences    []schedule.Interval
	Override       bool
}

func (d Draft) snapshot() history.Snapshot {
	return normalizeSnapshot(history.Snapshot{
		Title:          strings.TrimSpace(d.Title),
		Description:    d.Description,
		Location:       d.Location,
		StartTime:      d.StartTime,
		EndTime:        d.EndTime,
		IsRecurring:    d.IsRecurring,
		RecurrenceRule: d.RecurrenceRule,
		Occurrences:    d.Occurrences,
	})
}

// Patch is a partial update. Nil pointers leave the field untouched; a nil
// Occurrences slice keeps the stored occurrence set. ExpectedVersion, when
// non-zero, makes the update optimistic: it fails if the event has moved on.
type Patch struct {
	Title           *string
	Description     *string
	Location        *string
	StartTime       *time.Time
	EndTime         *time.Time
	IsRecurring     *bool
	RecurrenceRule  *string
	Occurrences     []schedule.Interval
	ExpectedVersion int
	Override        bool
}

func (p Patch) apply(s history.Snapshot) history.Snapshot {
	out := s.Clone()
	if p.Title != nil {
		out.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Location != nil {
		out.Location = *p.Location
	}
	if p.StartTime != nil {
		out.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		out.EndTime = *p.EndTime
	}
	if p.IsRecurring != nil {
		out.IsRecurring = *p.IsRecurring
	}
	if p.RecurrenceRule != nil {
		out.RecurrenceRule = *p.RecurrenceRule
	}
	if p.Occurrences != nil {
		out.Occurrences = append([]schedule.Interval(nil), p.Occurrences...)
	}
	return normalizeSnapshot(out)
}

// ShareItem is one grant requested through the share endpoint.
type ShareItem struct {
	UserID uuid.UUID
	Role   permission.Role
}

func normalizeSnapshot(s history.Snapshot) history.Snapshot {
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	for i := range s.Occurrences {
		s.Occurrences[i].Start = s.Occurrences[i].Start.UTC()
		s.Occurrences[i].End = s.Occurrences[i].End.UTC()
	}
	return s
}

// validateSnapshot enforces the structural rules every stored snapshot must
// satisfy, whether it arrives through a draft or a patch.
func validateSnapshot(s history.Snapshot) error {
	if s.Title == "" {
		return apierr.Validation("title is required")
	}
	if utf8.RuneCountInString(s.Title) > maxTitleLen {
		return apierr.Newf(apierr.KindValidation, "title must not exceed %d characters", maxTitleLen)
	}
	if utf8.RuneCountInString(s.Description) > maxDescriptionLen {
		return apierr.Newf(apierr.KindValidation, "description must not exceed %d characters", maxDescriptionLen)
	}
	if utf8.RuneCountInString(s.Location) > maxLocationLen {
		return apierr.Newf(apierr.KindValidation, "location must not exceed %d characters", maxLocationLen)
	}
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return apierr.Validation("startTime and endTime are required")
	}
	if !s.EndTime.After(s.StartTime) {
		return apierr.Validation("event end time must be after its start time")
	}
	if s.IsRecurring && s.RecurrenceRule == "" {
		return apierr.Validation("a recurring event requires a recurrence rule")
	}
	if !s.IsRecurring && s.RecurrenceRule != "" {
		return apierr.Validation("a recurrence rule requires isRecurring")
	}
	if s.RecurrenceRule != "" {
		if utf8.RuneCountInString(s.RecurrenceRule) > maxRecurrenceRuleLen {
			return apierr.Newf(apierr.KindValidation, "recurrence rule must not exceed %d characters", maxRecurrenceRuleLen)
		}
		if _, err := rrule.StrToRRule(strings.TrimPrefix(s.RecurrenceRule, "RRULE:")); err != nil {
			return apierr.Wrap(apierr.KindValidation, "recurrence rule is not a valid RRULE", err)
		}
	}
	for _, occ := range s.Occurrences {
		if !occ.Start.Before(occ.End) {
			return apierr.Validation("every occurrence must end after it starts")
		}
	}
	return nil
}
