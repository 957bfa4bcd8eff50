package event_bus

import "github.com/google/uuid"

// Event types carried on the bus. One constant per auditable action.
const (
	TypeEventCreated      EventType = "event.created"
	TypeEventUpdated      EventType = "event.updated"
	TypeEventDeleted      EventType = "event.deleted"
	TypeEventRolledBack   EventType = "event.rolled_back"
	TypeEventShared       EventType = "event.shared"
	TypePermissionUpdated EventType = "permission.updated"
	TypePermissionRevoked EventType = "permission.revoked"
	TypeUserRegistered    EventType = "user.registered"
	TypeUserLoggedIn      EventType = "user.logged_in"
	TypeTokenRefreshed    EventType = "user.token_refreshed"
)

type EventCreated struct {
	EventID uuid.UUID
	OwnerID uuid.UUID
	Title   string
	Version int
}

type EventUpdated struct {
	EventID uuid.UUID
	ActorID uuid.UUID
	Version int
}

type EventDeleted struct {
	EventID uuid.UUID
	ActorID uuid.UUID
}

type EventRolledBack struct {
	EventID       uuid.UUID
	ActorID       uuid.UUID
	TargetVersion int
	NewVersion    int
}

type EventShared struct {
	EventID uuid.UUID
	ActorID uuid.UUID
	UserID  uuid.UUID
	Role    string
}

type PermissionUpdated struct {
	EventID uuid.UUID
	ActorID uuid.UUID
	UserID  uuid.UUID
	Role    string
}

type PermissionRevoked struct {
	EventID uuid.UUID
	ActorID uuid.UUID
	UserID  uuid.UUID
}

type UserRegistered struct {
	UserID   uuid.UUID
	Username string
}

type UserLoggedIn struct {
	UserID   uuid.UUID
	Username string
}

type TokenRefreshed struct {
	UserID uuid.UUID
}
