package permission

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/irefuse3585/event-manager-api/internal/apierr"
	"github.com/irefuse3585/event-manager-api/internal/utils"
	"github.com/irefuse3585/event-manager-api/pkg/notification"
)

// Notifier receives a permission-changed message whenever a grant is
// created, re-roled, or revoked. Satisfied by the notification hub.
type Notifier interface {
	Publish(ctx context.Context, msg notification.Message)
}

// Registry holds per-event, per-user role grants and answers authorization
// questions. Grant mutations go through the event owner only; the Owner
// grant itself is created once with the event and can never be reassigned
// or revoked through this interface.
type Registry interface {
	GrantOwner(ctx context.Context, eventID, ownerID uuid.UUID) (Grant, error)
	Grant(ctx context.Context, eventID, grantorID, granteeID uuid.UUID, role Role) (Grant, error)
	UpdateRole(ctx context.Context, eventID, grantorID, granteeID uuid.UUID, role Role) (Grant, error)
	Revoke(ctx context.Context, eventID, grantorID, granteeID uuid.UUID) error
	RoleOf(ctx context.Context, eventID, userID uuid.UUID) (Role, bool, error)
	Authorize(ctx context.Context, eventID, userID uuid.UUID, required Role) (bool, error)
	ListGrants(ctx context.Context, eventID uuid.UUID) ([]Grant, error)
}

type RegistryImpl struct {
	repo     Repository
	notifier Notifier
	clock    utils.Clock
}

func NewRegistry(repo Repository, notifier Notifier, clock utils.Clock) *RegistryImpl {
	return &RegistryImpl{repo: repo, notifier: notifier, clock: clock}
}

// GrantOwner records the event creator as Owner. Called once per event by
// the coordinator; every other mutation path treats the Owner grant as
// untouchable.
func (r *RegistryImpl) GrantOwner(ctx context.Context, eventID, ownerID uuid.UUID) (Grant, error) {
	// The (event_id, user_id) uniqueness does not cover a second Owner for
	// a different user, so the one-owner rule is checked here.
	existing, err := r.repo.ListByEvent(ctx, eventID)
	if err != nil {
		return Grant{}, err
	}
	for _, g := range existing {
		if g.Role == RoleOwner {
			return Grant{}, apierr.Newf(apierr.KindInvalidState, "event %s already has an owner", eventID)
		}
	}

	now := r.clock.Now()
	grant := Grant{
		ID:        uuid.New(),
		EventID:   eventID,
		UserID:    ownerID,
		Role:      RoleOwner,
		GrantedBy: ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.repo.Insert(ctx, grant); err != nil {
		if errors.Is(err, ErrGrantExists) {
			return Grant{}, apierr.Newf(apierr.KindInvalidState, "event %s already has an owner", eventID)
		}
		return Grant{}, err
	}
	return grant, nil
}

func (r *RegistryImpl) Grant(ctx context.Context, eventID, grantorID, granteeID uuid.UUID, role Role) (Grant, error) {
	if role == RoleOwner {
		return Grant{}, apierr.New(apierr.KindInvalidState, "the owner role cannot be granted")
	}
	if err := r.requireOwner(ctx, eventID, grantorID, "only the owner can share an event"); err != nil {
		return Grant{}, err
	}

	now := r.clock.Now()
	grant := Grant{
		ID:        uuid.New(),
		EventID:   eventID,
		UserID:    granteeID,
		Role:      role,
		GrantedBy: grantorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.repo.Insert(ctx, grant); err != nil {
		if errors.Is(err, ErrGrantExists) {
			return Grant{}, apierr.Newf(apierr.KindConflict, "user %s already has access to event %s", granteeID, eventID)
		}
		return Grant{}, err
	}

	r.notify(ctx, notification.PermissionChanged(eventID, granteeID, role.String(), false, grantorID))
	return grant, nil
}

func (r *RegistryImpl) UpdateRole(ctx context.Context, eventID, grantorID, granteeID uuid.UUID, role Role) (Grant, error) {
	if role == RoleOwner {
		return Grant{}, apierr.New(apierr.KindInvalidState, "ownership cannot be transferred")
	}
	if err := r.requireOwner(ctx, eventID, grantorID, "only the owner can change permissions"); err != nil {
		return Grant{}, err
	}

	grant, err := r.repo.Get(ctx, eventID, granteeID)
	if errors.Is(err, ErrGrantNotFound) {
		return Grant{}, apierr.Newf(apierr.KindNotFound, "user %s has no grant on event %s", granteeID, eventID)
	}
	if err != nil {
		return Grant{}, err
	}
	if grant.Role == RoleOwner {
		return Grant{}, apierr.New(apierr.KindInvalidState, "the owner role cannot be changed")
	}

	now := r.clock.Now()
	if err := r.repo.UpdateRole(ctx, eventID, granteeID, role, now); err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			return Grant{}, apierr.Newf(apierr.KindNotFound, "user %s has no grant on event %s", granteeID, eventID)
		}
		return Grant{}, err
	}
	grant.Role = role
	grant.UpdatedAt = now

	r.notify(ctx, notification.PermissionChanged(eventID, granteeID, role.String(), false, grantorID))
	return grant, nil
}

func (r *RegistryImpl) Revoke(ctx context.Context, eventID, grantorID, granteeID uuid.UUID) error {
	if err := r.requireOwner(ctx, eventID, grantorID, "only the owner can revoke permissions"); err != nil {
		return err
	}

	grant, err := r.repo.Get(ctx, eventID, granteeID)
	if errors.Is(err, ErrGrantNotFound) {
		return apierr.Newf(apierr.KindNotFound, "user %s has no grant on event %s", granteeID, eventID)
	}
	if err != nil {
		return err
	}
	if grant.Role == RoleOwner {
		return apierr.New(apierr.KindInvalidState, "the owner grant cannot be revoked")
	}

	if err := r.repo.Delete(ctx, eventID, granteeID); err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			return apierr.Newf(apierr.KindNotFound, "user %s has no grant on event %s", granteeID, eventID)
		}
		return err
	}

	r.notify(ctx, notification.PermissionChanged(eventID, granteeID, "", true, grantorID))
	return nil
}

func (r *RegistryImpl) RoleOf(ctx context.Context, eventID, userID uuid.UUID) (Role, bool, error) {
	grant, err := r.repo.Get(ctx, eventID, userID)
	if errors.Is(err, ErrGrantNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return grant.Role, true, nil
}

func (r *RegistryImpl) Authorize(ctx context.Context, eventID, userID uuid.UUID, required Role) (bool, error) {
	role, ok, err := r.RoleOf(ctx, eventID, userID)
	if err != nil {
		return false, err
	}
	return ok && role.Covers(required), nil
}

func (r *RegistryImpl) ListGrants(ctx context.Context, eventID uuid.UUID) ([]Grant, error) {
	return r.repo.ListByEvent(ctx, eventID)
}

func (r *RegistryImpl) requireOwner(ctx context.Context, eventID, userID uuid.UUID, message string) error {
	role, ok, err := r.RoleOf(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if !ok || role != RoleOwner {
		return apierr.New(apierr.KindForbidden, message)
	}
	return nil
}

func (r *RegistryImpl) notify(ctx context.Context, msg notification.Message) {
	if r.notifier == nil {
		return
	}
	r.notifier.Publish(ctx, msg)
}
