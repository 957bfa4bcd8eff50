package notification

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindEventCreated      Kind = "event_created"
	KindEventChanged      Kind = "event_changed"
	KindEventDeleted      Kind = "event_deleted"
	KindPermissionChanged Kind = "permission_changed"
	// KindResync tells the client that messages were dropped and it must
	// re-fetch current state instead of trusting the increments it has.
	KindResync Kind = "resync_required"
)

// Message is one change notification as delivered to a live session.
type Message struct {
	Kind        Kind        `json:"type"`
	EventID     uuid.UUID   `json:"eventId,omitempty"`
	Version     int         `json:"version,omitempty"`
	InitiatorID uuid.UUID   `json:"initiatorId,omitempty"`
	Grant       *GrantDelta `json:"grant,omitempty"`
	OccurredAt  time.Time   `json:"occurredAt,omitempty"`
}

// GrantDelta describes a permission change. Role is carried as its wire
// name so the message stays independent of the permission package.
type GrantDelta struct {
	UserID  uuid.UUID `json:"userId"`
	Role    string    `json:"role,omitempty"`
	Revoked bool      `json:"revoked,omitempty"`
}

func EventCreated(eventID uuid.UUID, version int, initiatorID uuid.UUID) Message {
	return Message{Kind: KindEventCreated, EventID: eventID, Version: version, InitiatorID: initiatorID}
}

func EventChanged(eventID uuid.UUID, version int, initiatorID uuid.UUID) Message {
	return Message{Kind: KindEventChanged, EventID: eventID, Version: version, InitiatorID: initiatorID}
}

func EventDeleted(eventID uuid.UUID, initiatorID uuid.UUID) Message {
	return Message{Kind: KindEventDeleted, EventID: eventID, InitiatorID: initiatorID}
}

func PermissionChanged(eventID, userID uuid.UUID, role string, revoked bool, initiatorID uuid.UUID) Message {
	return Message{
		Kind:        KindPermissionChanged,
		EventID:     eventID,
		InitiatorID: initiatorID,
		Grant:       &GrantDelta{UserID: userID, Role: role, Revoked: revoked},
	}
}

func resyncMarker(at time.Time) Message {
	return Message{Kind: KindResync, OccurredAt: at}
}
