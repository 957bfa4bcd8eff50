package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/irefuse3585/event-manager-api/internal/apierr"
	"github.com/irefuse3585/event-manager-api/internal/event_bus"
	"github.com/irefuse3585/event-manager-api/internal/utils"
	"github.com/irefuse3585/event-manager-api/pkg/history"
	"github.com/irefuse3585/event-manager-api/pkg/notification"
	"github.com/irefuse3585/event-manager-api/pkg/permission"
	"github.com/irefuse3585/event-manager-api/pkg/schedule"
	log "github.com/sirupsen/logrus"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Publisher is the fanout side of the notification hub as the coordinator
// sees it.
type Publisher interface {
	Publish(ctx context.Context, msg notification.Message)
}

// ConflictDetails is attached to time-overlap conflict errors so the client
// can show which events are in the way.
type ConflictDetails struct {
	Conflicts []schedule.Conflict `json:"conflicts"`
}

// VersionMismatchDetails is attached to optimistic-concurrency conflicts;
// the client re-reads this version and retries.
type VersionMismatchDetails struct {
	CurrentVersion int `json:"currentVersion"`
}

// Coordinator runs every event mutation as one unit: authorization,
// conflict detection, version append, snapshot update, and notification
// fanout, serialized per event.
type Coordinator interface {
	Create(ctx context.Context, ownerID uuid.UUID, draft Draft) (Event, []schedule.Conflict, error)
	CreateBatch(ctx context.Context, ownerID uuid.UUID, drafts []Draft, override bool) ([]Event, []schedule.Conflict, error)
	Get(ctx context.Context, callerID, eventID uuid.UUID) (Event, error)
	List(ctx context.Context, callerID uuid.UUID, offset, limit int) ([]Event, error)
	Update(ctx context.Context, callerID, eventID uuid.UUID, patch Patch) (Event, []schedule.Conflict, error)
	Delete(ctx context.Context, callerID, eventID uuid.UUID) error
	Rollback(ctx context.Context, callerID, eventID uuid.UUID, target int) (Event, error)
	History(ctx context.Context, callerID, eventID uuid.UUID) ([]history.Version, error)
	GetVersion(ctx context.Context, callerID, eventID uuid.UUID, number int) (history.Version, error)
	DiffVersions(ctx context.Context, callerID, eventID uuid.UUID, from, to int) ([]history.FieldChange, error)
	Share(ctx context.Context, callerID, eventID uuid.UUID, items []ShareItem) ([]permission.Grant, error)
	ListPermissions(ctx context.Context, callerID, eventID uuid.UUID) ([]permission.Grant, error)
	UpdatePermission(ctx context.Context, callerID, eventID, targetID uuid.UUID, role permission.Role) (permission.Grant, error)
	RevokePermission(ctx context.Context, callerID, eventID, targetID uuid.UUID) error
}

type CoordinatorImpl struct {
	repo        Repo
	versions    history.Service
	permissions permission.Registry
	hub         Publisher
	bus         *event_bus.EventBus
	clock       utils.Clock
	locks       *locker
}

func NewCoordinator(
	repo Repo,
	versions history.Service,
	permissions permission.Registry,
	hub Publisher,
	bus *event_bus.EventBus,
	clock utils.Clock,
) *CoordinatorImpl {
	return &CoordinatorImpl{
		repo:        repo,
		versions:    versions,
		permissions: permissions,
		hub:         hub,
		bus:         bus,
		clock:       clock,
		locks:       newLocker(),
	}
}

// Create validates the draft, checks the owner's calendar for overlaps,
// and writes the event with version 1 and its bootstrap Owner grant. With
// Override set, overlaps come back as warnings instead of blocking.
func (c *CoordinatorImpl) Create(ctx context.Context, ownerID uuid.UUID, draft Draft) (Event, []schedule.Conflict, error) {
	snapshot := draft.snapshot()
	if err := validateSnapshot(snapshot); err != nil {
		return Event{}, nil, err
	}

	conflicts, err := c.ownerConflicts(ctx, ownerID, snapshot.Intervals(), uuid.Nil)
	if err != nil {
		return Event{}, nil, err
	}
	if len(conflicts) > 0 && !draft.Override {
		return Event{}, nil, apierr.WithDetails(apierr.KindConflict,
			"event overlaps existing events", ConflictDetails{Conflicts: conflicts})
	}

	ev, err := c.persistNew(ctx, ownerID, snapshot)
	if err != nil {
		return Event{}, nil, err
	}
	return ev, conflicts, nil
}

// CreateBatch is all-or-nothing: every draft is validated and conflict
// checked (against stored events and against earlier drafts in the same
// batch) before anything is written.
func (c *CoordinatorImpl) CreateBatch(ctx context.Context, ownerID uuid.UUID, drafts []Draft, override bool) ([]Event, []schedule.Conflict, error) {
	if len(drafts) == 0 {
		return nil, nil, apierr.Validation("batch must contain at least one event")
	}

	snapshots := make([]history.Snapshot, len(drafts))
	for i, draft := range drafts {
		snapshot := draft.snapshot()
		if err := validateSnapshot(snapshot); err != nil {
			return nil, nil, apierr.Wrap(apierr.KindValidation,
				fmt.Sprintf("event %d is invalid", i+1), err)
		}
		snapshots[i] = snapshot
	}

	stored, err := c.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	pool := ownedIntervals(stored)
	ids := make([]uuid.UUID, len(snapshots))

	var conflicts []schedule.Conflict
	for i, snapshot := range snapshots {
		ids[i] = uuid.New()
		conflicts = append(conflicts, schedule.CheckOverlap(pool, snapshot.Intervals(), uuid.Nil)...)
		for _, iv := range snapshot.Intervals() {
			pool = append(pool, schedule.OwnedInterval{EventID: ids[i], Interval: iv})
		}
	}
	if len(conflicts) > 0 && !override {
		return nil, nil, apierr.WithDetails(apierr.KindConflict,
			"batch contains overlapping events", ConflictDetails{Conflicts: conflicts})
	}

	events := make([]Event, 0, len(snapshots))
	for i, snapshot := range snapshots {
		ev, err := c.persistNewWithID(ctx, ids[i], ownerID, snapshot)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, ev)
	}
	return events, conflicts, nil
}

func (c *CoordinatorImpl) Get(ctx context.Context, callerID, eventID uuid.UUID) (Event, error) {
	ev, err := c.load(ctx, eventID)
	if err != nil {
		return Event{}, err
	}
	if ev.Deleted {
		return Event{}, apierr.Newf(apierr.KindNotFound, "event %s not found", eventID)
	}
	if err := c.requireRole(ctx, eventID, callerID, permission.RoleViewer); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (c *CoordinatorImpl) List(ctx context.Context, callerID uuid.UUID, offset, limit int) ([]Event, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return c.repo.ListByUser(ctx, callerID, offset, limit)
}

// Update applies a partial patch. With ExpectedVersion set, a stale caller
// fails with the current version instead of silently overwriting newer
// state. The version append is retried once if a concurrent writer took the
// number first.
func (c *CoordinatorImpl) Update(ctx context.Context, callerID, eventID uuid.UUID, patch Patch) (Event, []schedule.Conflict, error) {
	unlock := c.locks.lock(eventID)
	defer unlock()

	ev, err := c.load(ctx, eventID)
	if err != nil {
		return Event{}, nil, err
	}
	if err := c.requireRole(ctx, eventID, callerID, permission.RoleEditor); err != nil {
		return Event{}, nil, err
	}
	if ev.Deleted {
		return Event{}, nil, apierr.Newf(apierr.KindInvalidState, "event %s is deleted", eventID)
	}
	if patch.ExpectedVersion != 0 && patch.ExpectedVersion != ev.Version {
		return Event{}, nil, apierr.WithDetails(apierr.KindConflict,
			"event was modified concurrently", VersionMismatchDetails{CurrentVersion: ev.Version})
	}

	snapshot := patch.apply(ev.Snapshot)
	if err := validateSnapshot(snapshot); err != nil {
		return Event{}, nil, err
	}

	conflicts, err := c.ownerConflicts(ctx, ev.OwnerID, snapshot.Intervals(), eventID)
	if err != nil {
		return Event{}, nil, err
	}
	if len(conflicts) > 0 && !patch.Override {
		return Event{}, nil, apierr.WithDetails(apierr.KindConflict,
			"event overlaps existing events", ConflictDetails{Conflicts: conflicts})
	}

	version, err := c.appendWithRetry(ctx, eventID, history.ChangeUpdate, snapshot, callerID)
	if err != nil {
		return Event{}, nil, err
	}

	ev.Snapshot = snapshot
	ev.Version = version.Number
	ev.UpdatedAt = c.clock.Now().UTC()
	if err := c.repo.UpdateSnapshot(ctx, ev); err != nil {
		return Event{}, nil, err
	}

	c.hub.Publish(ctx, notification.EventChanged(eventID, version.Number, callerID))
	c.publishAudit(event_bus.NewEvent(ctx, event_bus.TypeEventUpdated, event_bus.EventUpdated{
		EventID: eventID,
		ActorID: callerID,
		Version: version.Number,
	}))
	return ev, conflicts, nil
}

// Delete tombstones the event. History and grants stay in place; the
// deletion notice goes out while the grants still define its audience.
func (c *CoordinatorImpl) Delete(ctx context.Context, callerID, eventID uuid.UUID) error {
	unlock := c.locks.lock(eventID)
	defer unlock()

	ev, err := c.load(ctx, eventID)
	if err != nil {
		return err
	}
	if err := c.requireRole(ctx, eventID, callerID, permission.RoleOwner); err != nil {
		return err
	}
	if ev.Deleted {
		return apierr.Newf(apierr.KindInvalidState, "event %s is already deleted", eventID)
	}

	if err := c.repo.MarkDeleted(ctx, eventID, c.clock.Now().UTC()); err != nil {
		return err
	}

	c.hub.Publish(ctx, notification.EventDeleted(eventID, callerID))
	c.publishAudit(event_bus.NewEvent(ctx, event_bus.TypeEventDeleted, event_bus.EventDeleted{
		EventID: eventID,
		ActorID: callerID,
	}))
	return nil
}

// Rollback appends a copy of the target version as the newest version and
// makes it the event's current state.
func (c *CoordinatorImpl) Rollback(ctx context.Context, callerID, eventID uuid.UUID, target int) (Event, error) {
	unlock := c.locks.lock(eventID)
	defer unlock()

	ev, err := c.load(ctx, eventID)
	if err != nil {
		return Event{}, err
	}
	if err := c.requireRole(ctx, eventID, callerID, permission.RoleEditor); err != nil {
		return Event{}, err
	}
	if ev.Deleted {
		return Event{}, apierr.Newf(apierr.KindInvalidState, "event %s is deleted", eventID)
	}

	version, err := c.versions.Rollback(ctx, eventID, target, callerID)
	if err != nil {
		return Event{}, err
	}

	ev.Snapshot = version.Snapshot
	ev.Version = version.Number
	ev.UpdatedAt = c.clock.Now().UTC()
	if err := c.repo.UpdateSnapshot(ctx, ev); err != nil {
		return Event{}, err
	}

	c.hub.Publish(ctx, notification.EventChanged(eventID, version.Number, callerID))
	c.publishAudit(event_bus.NewEvent(ctx, event_bus.TypeEventRolledBack, event_bus.EventRolledBack{
		EventID:       eventID,
		ActorID:       callerID,
		TargetVersion: target,
		NewVersion:    version.Number,
	}))
	return ev, nil
}

// History stays readable after deletion: the version log is the audit
// record of what the event was.
func (c *CoordinatorImpl) History(ctx context.Context, callerID, eventID uuid.UUID) ([]history.Version, error) {
	if _, err := c.load(ctx, eventID); err != nil {
		return nil, err
	}
	if err := c.requireRole(ctx, eventID, callerID, permission.RoleViewer); err != nil {
		return nil, err
	}
	return c.versions.List(ctx, eventID)
}

func (c *CoordinatorImpl) GetVersion(ctx context.Context, callerID, eventID uuid.UUID, number int) (history.Version, error) {
	if _, err := c.load(ctx, eventID); err != nil {
		return history.Version{}, err
	}
	if err := c.requireRole(ctx, eventID, callerID, permission.RoleViewer); err != nil {
		return history.Version{}, err
	}
	return c.versions.Get(ctx, eventID, number)
}

func (c *CoordinatorImpl) DiffVersions(ctx context.Context, callerID, eventID uuid.UUID, from, to int) ([]history.FieldChange, error) {
	if _, err := c.load(ctx, eventID); err != nil {
		return nil, err
	}
	if err := c.requireRole(ctx, eventID, callerID, permission.RoleViewer); err != nil {
		return nil, err
	}
	return c.versions.DiffVersions(ctx, eventID, from, to)
}

// Share creates the requested grants all-or-nothing: every item is checked
// before the first grant is written, so a bad item cannot leave the batch
// half applied.
func (c *CoordinatorImpl) Share(ctx context.Context, callerID, eventID uuid.UUID, items []ShareItem) ([]permission.Grant, error) {
	unlock := c.locks.lock(eventID)
	defer unlock()

	ev, err := c.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Deleted {
		return nil, apierr.Newf(apierr.KindInvalidState, "event %s is deleted", eventID)
	}
	if err := c.requireRole(ctx, eventID, callerID, permission.RoleOwner); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apierr.Validation("share request must contain at least one user")
	}

	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		if item.UserID == uuid.Nil {
			return nil, apierr.Validation("share item is missing a user id")
		}
		if item.UserID == callerID {
			return nil, apierr.Validation("an event cannot be shared with its owner")
		}
		if item.Role == permission.RoleOwner {
			return nil, apierr.New(apierr.KindInvalidState, "the owner role cannot be granted")
		}
		if item.Role != permission.RoleViewer && item.Role != permission.RoleEditor {
			return nil, apierr.Validation("share role must be Viewer or Editor")
		}
		if _, dup := seen[item.UserID]; dup {
			return nil, apierr.Newf(apierr.KindValidation, "user %s appears twice in the share request", item.UserID)
		}
		seen[item.UserID] = struct{}{}

		_, exists, err := c.permissions.RoleOf(ctx, eventID, item.UserID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, apierr.Newf(apierr.KindConflict, "user %s already has access to event %s", item.UserID, eventID)
		}
	}

	grants := make([]permission.Grant, 0, len(items))
	for _, item := range items {
		grant, err := c.permissions.Grant(ctx, eventID, callerID, item.UserID, item.Role)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
		c.publishAudit(event_bus.NewEvent(ctx, event_bus.TypeEventShared, event_bus.EventShared{
			EventID: eventID,
			ActorID: callerID,
			UserID:  item.UserID,
			Role:    item.Role.String(),
		}))
	}
	return grants, nil
}

func (c *CoordinatorImpl) ListPermissions(ctx context.Context, callerID, eventID uuid.UUID) ([]permission.Grant, error) {
	ev, err := c.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Deleted {
		return nil, apierr.Newf(apierr.KindNotFound, "event %s not found", eventID)
	}
	if err := c.requireRole(ctx, eventID, callerID, permission.RoleViewer); err != nil {
		return nil, err
	}
	return c.permissions.ListGrants(ctx, eventID)
}

func (c *CoordinatorImpl) UpdatePermission(ctx context.Context, callerID, eventID, targetID uuid.UUID, role permission.Role) (permission.Grant, error) {
	unlock := c.locks.lock(eventID)
	defer unlock()

	ev, err := c.load(ctx, eventID)
	if err != nil {
		return permission.Grant{}, err
	}
	if ev.Deleted {
		return permission.Grant{}, apierr.Newf(apierr.KindInvalidState, "event %s is deleted", eventID)
	}

	grant, err := c.permissions.UpdateRole(ctx, eventID, callerID, targetID, role)
	if err != nil {
		return permission.Grant{}, err
	}
	c.publishAudit(event_bus.NewEvent(ctx, event_bus.TypePermissionUpdated, event_bus.PermissionUpdated{
		EventID: eventID,
		ActorID: callerID,
		UserID:  targetID,
		Role:    role.String(),
	}))
	return grant, nil
}

func (c *CoordinatorImpl) RevokePermission(ctx context.Context, callerID, eventID, targetID uuid.UUID) error {
	unlock := c.locks.lock(eventID)
	defer unlock()

	ev, err := c.load(ctx, eventID)
	if err != nil {
		return err
	}
	if ev.Deleted {
		return apierr.Newf(apierr.KindInvalidState, "event %s is deleted", eventID)
	}

	if err := c.permissions.Revoke(ctx, eventID, callerID, targetID); err != nil {
		return err
	}
	c.publishAudit(event_bus.NewEvent(ctx, event_bus.TypePermissionRevoked, event_bus.PermissionRevoked{
		EventID: eventID,
		ActorID: callerID,
		UserID:  targetID,
	}))
	return nil
}

func (c *CoordinatorImpl) persistNew(ctx context.Context, ownerID uuid.UUID, snapshot history.Snapshot) (Event, error) {
	return c.persistNewWithID(ctx, uuid.New(), ownerID, snapshot)
}

func (c *CoordinatorImpl) persistNewWithID(ctx context.Context, id, ownerID uuid.UUID, snapshot history.Snapshot) (Event, error) {
	unlock := c.locks.lock(id)
	defer unlock()

	now := c.clock.Now().UTC()
	ev := Event{
		ID:        id,
		OwnerID:   ownerID,
		Version:   1,
		Snapshot:  snapshot,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.repo.Insert(ctx, ev); err != nil {
		return Event{}, err
	}
	if _, err := c.permissions.GrantOwner(ctx, id, ownerID); err != nil {
		return Event{}, err
	}
	if _, err := c.versions.Append(ctx, id, history.ChangeCreate, snapshot, ownerID); err != nil {
		return Event{}, err
	}

	c.hub.Publish(ctx, notification.EventCreated(id, 1, ownerID))
	c.publishAudit(event_bus.NewEvent(ctx, event_bus.TypeEventCreated, event_bus.EventCreated{
		EventID: id,
		OwnerID: ownerID,
		Title:   snapshot.Title,
		Version: 1,
	}))
	return ev, nil
}

// appendWithRetry absorbs a single duplicate-version race from a concurrent
// writer; the second failure surfaces to the caller as a conflict.
func (c *CoordinatorImpl) appendWithRetry(ctx context.Context, eventID uuid.UUID, kind history.ChangeKind, snapshot history.Snapshot, authorID uuid.UUID) (history.Version, error) {
	version, err := c.versions.Append(ctx, eventID, kind, snapshot, authorID)
	if apierr.IsKind(err, apierr.KindConflict) {
		log.Debugf("version append for event %s raced, retrying once", eventID)
		version, err = c.versions.Append(ctx, eventID, kind, snapshot, authorID)
	}
	return version, err
}

func (c *CoordinatorImpl) ownerConflicts(ctx context.Context, ownerID uuid.UUID, candidates []schedule.Interval, exclude uuid.UUID) ([]schedule.Conflict, error) {
	stored, err := c.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return schedule.CheckOverlap(ownedIntervals(stored), candidates, exclude), nil
}

func (c *CoordinatorImpl) load(ctx context.Context, eventID uuid.UUID) (Event, error) {
	ev, err := c.repo.Get(ctx, eventID)
	if errors.Is(err, ErrEventNotFound) {
		return Event{}, apierr.Newf(apierr.KindNotFound, "event %s not found", eventID)
	}
	return ev, err
}

func (c *CoordinatorImpl) requireRole(ctx context.Context, eventID, userID uuid.UUID, required permission.Role) error {
	role, ok, err := c.permissions.RoleOf(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.Forbidden("you have no access to this event")
	}
	if !role.Covers(required) {
		return apierr.Newf(apierr.KindForbidden, "this operation requires the %s role", required)
	}
	return nil
}

func (c *CoordinatorImpl) publishAudit(e event_bus.Event) {
	if err := c.bus.Publish(e); err != nil {
		log.Warnf("could not publish %s event: %v", e.Type, err)
	}
}

func ownedIntervals(events []Event) []schedule.OwnedInterval {
	out := make([]schedule.OwnedInterval, 0, len(events))
	for _, ev := range events {
		for _, iv := range ev.Snapshot.Intervals() {
			out = append(out, schedule.OwnedInterval{EventID: ev.ID, Interval: iv})
		}
	}
	return out
}
