package permission

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is an access level on one event. Levels are ordered: an Owner can do
// everything an Editor can, an Editor everything a Viewer can.
type Role int

const (
	RoleViewer Role = iota + 1
	RoleEditor
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "Viewer"
	case RoleEditor:
		return "Editor"
	case RoleOwner:
		return "Owner"
	default:
		return "unknown"
	}
}

func ParseRole(s string) (Role, error) {
	switch s {
	case "Viewer":
		return RoleViewer, nil
	case "Editor":
		return RoleEditor, nil
	case "Owner":
		return RoleOwner, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// Covers reports whether the role grants at least the required level.
func (r Role) Covers(required Role) bool {
	return r >= required && r > 0
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	role, err := ParseRole(name)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Grant gives one user one role on one event. A user holds at most one
// grant per event; every event has exactly one Owner grant.
type Grant struct {
	ID        uuid.UUID `json:"id"`
	EventID   uuid.UUID `json:"eventId"`
	UserID    uuid.UUID `json:"userId"`
	Role      Role      `json:"role"`
	GrantedBy uuid.UUID `json:"grantedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
