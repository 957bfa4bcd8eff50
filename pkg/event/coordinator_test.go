package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/irefuse3585/event-manager-api/internal/apierr"
	"github.com/irefuse3585/event-manager-api/internal/event_bus"
	"github.com/irefuse3585/event-manager-api/internal/utils"
	"github.com/irefuse3585/event-manager-api/pkg/history"
	"github.com/irefuse3585/event-manager-api/pkg/notification"
	"github.com/irefuse3585/event-manager-api/pkg/permission"
	"github.com/irefuse3585/event-manager-api/pkg/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (c *capturePublisher) Publish(_ context.Context, msg notification.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *capturePublisher) all() []notification.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notification.Message(nil), c.messages...)
}

func (c *capturePublisher) last(t *testing.T) notification.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.messages)
	return c.messages[len(c.messages)-1]
}

type fixture struct {
	ctx         context.Context
	repo        *StubEventRepo
	registry    *permission.RegistryImpl
	hub         *capturePublisher
	clock       *utils.MockClock
	coordinator *CoordinatorImpl
}

func setupCoordinator(t *testing.T) *fixture {
	t.Helper()
	hub := &capturePublisher{}
	clock := &utils.MockClock{FixedNow: time.Date(2025, time.May, 5, 8, 0, 0, 0, time.UTC)}
	repo := NewStubEventRepo()
	registry := permission.NewRegistry(permission.NewStubRepository(), hub, clock)
	versions := history.NewService(history.NewStubRepository(), repo, clock)
	coordinator := NewCoordinator(repo, versions, registry, hub, event_bus.NewEventBus(), clock)
	return &fixture{
		ctx:         context.Background(),
		repo:        repo,
		registry:    registry,
		hub:         hub,
		clock:       clock,
		coordinator: coordinator,
	}
}

func draftAt(title string, start, end time.Time) Draft {
	return Draft{Title: title, StartTime: start, EndTime: end}
}

func at(hour, minute int) time.Time {
	return time.Date(2025, time.May, 6, hour, minute, 0, 0, time.UTC)
}

func mustCreate(t *testing.T, f *fixture, ownerID uuid.UUID, draft Draft) Event {
	t.Helper()
	ev, _, err := f.coordinator.Create(f.ctx, ownerID, draft)
	require.NoError(t, err)
	return ev
}

func TestCoordinator_Create(t *testing.T) {
	t.Run("should create version one with an owner grant and a notification", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()

		// when
		ev, warnings, err := f.coordinator.Create(f.ctx, ownerID, draftAt("Standup", at(9, 0), at(9, 30)))

		// then
		require.NoError(t, err)
		assert.Equal(t, 1, ev.Version)
		assert.Equal(t, ownerID, ev.OwnerID)
		assert.Empty(t, warnings)

		role, ok, err := f.registry.RoleOf(f.ctx, ev.ID, ownerID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, permission.RoleOwner, role)

		msg := f.hub.last(t)
		assert.Equal(t, notification.KindEventCreated, msg.Kind)
		assert.Equal(t, ev.ID, msg.EventID)
		assert.Equal(t, 1, msg.Version)
	})

	t.Run("should reject an invalid interval", func(t *testing.T) {
		// given
		f := setupCoordinator(t)

		// when
		_, _, err := f.coordinator.Create(f.ctx, uuid.New(), draftAt("Backwards", at(11, 0), at(10, 0)))

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindValidation))
	})

	t.Run("should block an overlapping event and list the conflict", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		existing := mustCreate(t, f, ownerID, draftAt("Planning", at(9, 0), at(10, 0)))

		// when
		_, _, err := f.coordinator.Create(f.ctx, ownerID, draftAt("Review", at(9, 30), at(10, 30)))

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindConflict))
		var apiErr *apierr.Error
		require.ErrorAs(t, err, &apiErr)
		details, ok := apiErr.Details.(ConflictDetails)
		require.True(t, ok)
		require.Len(t, details.Conflicts, 1)
		assert.Equal(t, existing.ID, details.Conflicts[0].EventID)
	})

	t.Run("should create despite overlap when override is set, returning warnings", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		existing := mustCreate(t, f, ownerID, draftAt("Planning", at(9, 0), at(10, 0)))

		// when
		draft := draftAt("Review", at(9, 30), at(10, 30))
		draft.Override = true
		ev, warnings, err := f.coordinator.Create(f.ctx, ownerID, draft)

		// then
		require.NoError(t, err)
		assert.Equal(t, 1, ev.Version)
		require.Len(t, warnings, 1)
		assert.Equal(t, existing.ID, warnings[0].EventID)
	})

	t.Run("should not conflict on a touching boundary", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		mustCreate(t, f, ownerID, draftAt("First", at(10, 0), at(11, 0)))

		// when
		_, warnings, err := f.coordinator.Create(f.ctx, ownerID, draftAt("Second", at(11, 0), at(12, 0)))

		// then
		require.NoError(t, err)
		assert.Empty(t, warnings)
	})

	t.Run("should not conflict with another owner's calendar", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		mustCreate(t, f, uuid.New(), draftAt("Theirs", at(9, 0), at(10, 0)))

		// when
		_, warnings, err := f.coordinator.Create(f.ctx, uuid.New(), draftAt("Mine", at(9, 0), at(10, 0)))

		// then
		require.NoError(t, err)
		assert.Empty(t, warnings)
	})

	t.Run("should check a recurring event's declared occurrences", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		recurring := Draft{
			Title:          "Weekly sync",
			StartTime:      at(9, 0),
			EndTime:        at(9, 30),
			IsRecurring:    true,
			RecurrenceRule: "FREQ=WEEKLY;COUNT=2",
			Occurrences: []schedule.Interval{
				{Start: at(9, 0).AddDate(0, 0, 7), End: at(9, 30).AddDate(0, 0, 7)},
			},
		}
		mustCreate(t, f, ownerID, recurring)

		// when: overlaps the second occurrence, not the base interval
		_, _, err := f.coordinator.Create(f.ctx, ownerID,
			draftAt("One-off", at(9, 15).AddDate(0, 0, 7), at(10, 0).AddDate(0, 0, 7)))

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindConflict))
	})
}

func TestCoordinator_CreateBatch(t *testing.T) {
	t.Run("should create all events when nothing conflicts", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()

		// when
		events, warnings, err := f.coordinator.CreateBatch(f.ctx, ownerID, []Draft{
			draftAt("One", at(9, 0), at(10, 0)),
			draftAt("Two", at(10, 0), at(11, 0)),
		}, false)

		// then
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Empty(t, warnings)
		assert.Equal(t, 1, events[0].Version)
		assert.Equal(t, 1, events[1].Version)
	})

	t.Run("should reject the whole batch when two drafts overlap each other", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()

		// when
		_, _, err := f.coordinator.CreateBatch(f.ctx, ownerID, []Draft{
			draftAt("One", at(9, 0), at(10, 0)),
			draftAt("Two", at(9, 30), at(10, 30)),
		}, false)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindConflict))
		listed, err := f.coordinator.List(f.ctx, ownerID, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, listed, "nothing may be written when the batch fails")
	})

	t.Run("should reject the whole batch on one invalid draft", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()

		// when
		_, _, err := f.coordinator.CreateBatch(f.ctx, ownerID, []Draft{
			draftAt("Fine", at(9, 0), at(10, 0)),
			draftAt("", at(10, 0), at(11, 0)),
		}, false)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindValidation))
		listed, err := f.coordinator.List(f.ctx, ownerID, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, listed)
	})
}

func TestCoordinator_Update(t *testing.T) {
	t.Run("should append contiguous versions across sequential updates", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Draft", at(9, 0), at(10, 0)))

		// when
		titles := []string{"Second", "Third", "Fourth"}
		for _, title := range titles {
			f.clock.Advance(time.Minute)
			updated, _, err := f.coordinator.Update(f.ctx, ownerID, ev.ID, Patch{Title: &title})
			require.NoError(t, err)
			ev = updated
		}

		// then
		assert.Equal(t, 4, ev.Version)
		versions, err := f.coordinator.History(f.ctx, ownerID, ev.ID)
		require.NoError(t, err)
		require.Len(t, versions, 4)
		for i, version := range versions {
			assert.Equal(t, i+1, version.Number)
		}
		assert.Equal(t, "Fourth", versions[3].Snapshot.Title)
	})

	t.Run("should publish an event_changed message with the new version", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Draft", at(9, 0), at(10, 0)))
		title := "Renamed"

		// when
		_, _, err := f.coordinator.Update(f.ctx, ownerID, ev.ID, Patch{Title: &title})

		// then
		require.NoError(t, err)
		msg := f.hub.last(t)
		assert.Equal(t, notification.KindEventChanged, msg.Kind)
		assert.Equal(t, ev.ID, msg.EventID)
		assert.Equal(t, 2, msg.Version)
	})

	t.Run("should fail a stale optimistic update with the current version", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Draft", at(9, 0), at(10, 0)))
		title := "Fresh"
		_, _, err := f.coordinator.Update(f.ctx, ownerID, ev.ID, Patch{Title: &title})
		require.NoError(t, err)

		// when: another caller still believes the event is at version 1
		stale := "Stale"
		_, _, err = f.coordinator.Update(f.ctx, ownerID, ev.ID, Patch{Title: &stale, ExpectedVersion: 1})

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindConflict))
		var apiErr *apierr.Error
		require.ErrorAs(t, err, &apiErr)
		details, ok := apiErr.Details.(VersionMismatchDetails)
		require.True(t, ok)
		assert.Equal(t, 2, details.CurrentVersion)
	})

	t.Run("should let an editor update but not a viewer", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		editorID := uuid.New()
		viewerID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Shared", at(9, 0), at(10, 0)))
		_, err := f.coordinator.Share(f.ctx, ownerID, ev.ID, []ShareItem{
			{UserID: editorID, Role: permission.RoleEditor},
			{UserID: viewerID, Role: permission.RoleViewer},
		})
		require.NoError(t, err)

		// when / then
		title := "By editor"
		_, _, err = f.coordinator.Update(f.ctx, editorID, ev.ID, Patch{Title: &title})
		require.NoError(t, err)

		title = "By viewer"
		_, _, err = f.coordinator.Update(f.ctx, viewerID, ev.ID, Patch{Title: &title})
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindForbidden))
	})

	t.Run("should check conflicts against the owner's calendar excluding the event itself", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Movable", at(9, 0), at(10, 0)))
		blocker := mustCreate(t, f, ownerID, draftAt("Blocker", at(14, 0), at(15, 0)))

		// when: shifting entirely within its own old slot is fine
		start, end := at(9, 15), at(9, 45)
		_, _, err := f.coordinator.Update(f.ctx, ownerID, ev.ID, Patch{StartTime: &start, EndTime: &end})
		require.NoError(t, err)

		// then: moving onto the blocker is not
		start, end = at(14, 30), at(15, 30)
		_, _, err = f.coordinator.Update(f.ctx, ownerID, ev.ID, Patch{StartTime: &start, EndTime: &end})
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindConflict))
		var apiErr *apierr.Error
		require.ErrorAs(t, err, &apiErr)
		details, ok := apiErr.Details.(ConflictDetails)
		require.True(t, ok)
		require.Len(t, details.Conflicts, 1)
		assert.Equal(t, blocker.ID, details.Conflicts[0].EventID)
	})

	t.Run("should refuse updating a deleted event", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Doomed", at(9, 0), at(10, 0)))
		require.NoError(t, f.coordinator.Delete(f.ctx, ownerID, ev.ID))

		// when
		title := "Too late"
		_, _, err := f.coordinator.Update(f.ctx, ownerID, ev.ID, Patch{Title: &title})

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidState))
	})
}

func TestCoordinator_Delete(t *testing.T) {
	t.Run("should tombstone the event, keep history, and notify", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Short-lived", at(9, 0), at(10, 0)))

		// when
		err := f.coordinator.Delete(f.ctx, ownerID, ev.ID)

		// then
		require.NoError(t, err)
		msg := f.hub.last(t)
		assert.Equal(t, notification.KindEventDeleted, msg.Kind)
		assert.Equal(t, ev.ID, msg.EventID)

		_, err = f.coordinator.Get(f.ctx, ownerID, ev.ID)
		assert.True(t, apierr.IsKind(err, apierr.KindNotFound))

		versions, err := f.coordinator.History(f.ctx, ownerID, ev.ID)
		require.NoError(t, err)
		assert.Len(t, versions, 1, "history outlives the event")
	})

	t.Run("should require the owner role", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		editorID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Protected", at(9, 0), at(10, 0)))
		_, err := f.coordinator.Share(f.ctx, ownerID, ev.ID, []ShareItem{{UserID: editorID, Role: permission.RoleEditor}})
		require.NoError(t, err)

		// when
		err = f.coordinator.Delete(f.ctx, editorID, ev.ID)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindForbidden))
	})
}

func TestCoordinator_Rollback(t *testing.T) {
	t.Run("should append a copy of the target as the newest version", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Original", at(9, 0), at(10, 0)))
		for _, title := range []string{"Two", "Three", "Four", "Five"} {
			_, _, err := f.coordinator.Update(f.ctx, ownerID, ev.ID, Patch{Title: &title})
			require.NoError(t, err)
		}

		// when
		rolled, err := f.coordinator.Rollback(f.ctx, ownerID, ev.ID, 2)

		// then
		require.NoError(t, err)
		assert.Equal(t, 6, rolled.Version)
		assert.Equal(t, "Two", rolled.Snapshot.Title)

		versions, err := f.coordinator.History(f.ctx, ownerID, ev.ID)
		require.NoError(t, err)
		require.Len(t, versions, 6)
		assert.Equal(t, history.ChangeRollback, versions[5].Kind)
		assert.Equal(t, "Original", versions[0].Snapshot.Title, "earlier versions stay untouched")
		assert.Equal(t, "Five", versions[4].Snapshot.Title)

		// the rollback result diffs clean against its target
		changes, err := f.coordinator.DiffVersions(f.ctx, ownerID, ev.ID, 2, 6)
		require.NoError(t, err)
		for _, change := range changes {
			assert.Equal(t, history.OpUnchanged, change.Op)
		}
	})

	t.Run("should fail for a missing target version", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Single", at(9, 0), at(10, 0)))

		// when
		_, err := f.coordinator.Rollback(f.ctx, ownerID, ev.ID, 7)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindNotFound))
	})
}

func TestCoordinator_Share(t *testing.T) {
	t.Run("should grant access and publish a permission change per user", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		viewerID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Shared", at(9, 0), at(10, 0)))

		// when
		grants, err := f.coordinator.Share(f.ctx, ownerID, ev.ID, []ShareItem{{UserID: viewerID, Role: permission.RoleViewer}})

		// then
		require.NoError(t, err)
		require.Len(t, grants, 1)
		assert.Equal(t, permission.RoleViewer, grants[0].Role)

		msg := f.hub.last(t)
		assert.Equal(t, notification.KindPermissionChanged, msg.Kind)
		require.NotNil(t, msg.Grant)
		assert.Equal(t, viewerID, msg.Grant.UserID)
	})

	t.Run("should apply nothing when one item is already granted", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		existingID := uuid.New()
		freshID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Shared", at(9, 0), at(10, 0)))
		_, err := f.coordinator.Share(f.ctx, ownerID, ev.ID, []ShareItem{{UserID: existingID, Role: permission.RoleViewer}})
		require.NoError(t, err)

		// when
		_, err = f.coordinator.Share(f.ctx, ownerID, ev.ID, []ShareItem{
			{UserID: freshID, Role: permission.RoleViewer},
			{UserID: existingID, Role: permission.RoleEditor},
		})

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindConflict))
		_, ok, err := f.registry.RoleOf(f.ctx, ev.ID, freshID)
		require.NoError(t, err)
		assert.False(t, ok, "the valid item must not be applied either")
	})

	t.Run("should never grant the owner role", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Mine", at(9, 0), at(10, 0)))

		// when
		_, err := f.coordinator.Share(f.ctx, ownerID, ev.ID, []ShareItem{{UserID: uuid.New(), Role: permission.RoleOwner}})

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidState))
	})
}

func TestCoordinator_Permissions(t *testing.T) {
	t.Run("should refuse revoking the owner grant", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Mine", at(9, 0), at(10, 0)))

		// when
		err := f.coordinator.RevokePermission(f.ctx, ownerID, ev.ID, ownerID)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidState))
		grants, err := f.coordinator.ListPermissions(f.ctx, ownerID, ev.ID)
		require.NoError(t, err)
		require.Len(t, grants, 1)
		assert.Equal(t, permission.RoleOwner, grants[0].Role)
	})

	t.Run("should revoke a viewer grant and cut off reads", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		viewerID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Shared", at(9, 0), at(10, 0)))
		_, err := f.coordinator.Share(f.ctx, ownerID, ev.ID, []ShareItem{{UserID: viewerID, Role: permission.RoleViewer}})
		require.NoError(t, err)
		_, err = f.coordinator.Get(f.ctx, viewerID, ev.ID)
		require.NoError(t, err)

		// when
		err = f.coordinator.RevokePermission(f.ctx, ownerID, ev.ID, viewerID)

		// then
		require.NoError(t, err)
		_, err = f.coordinator.Get(f.ctx, viewerID, ev.ID)
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindForbidden))
	})

	t.Run("should promote a viewer to editor", func(t *testing.T) {
		// given
		f := setupCoordinator(t)
		ownerID := uuid.New()
		viewerID := uuid.New()
		ev := mustCreate(t, f, ownerID, draftAt("Shared", at(9, 0), at(10, 0)))
		_, err := f.coordinator.Share(f.ctx, ownerID, ev.ID, []ShareItem{{UserID: viewerID, Role: permission.RoleViewer}})
		require.NoError(t, err)

		// when
		grant, err := f.coordinator.UpdatePermission(f.ctx, ownerID, ev.ID, viewerID, permission.RoleEditor)

		// then
		require.NoError(t, err)
		assert.Equal(t, permission.RoleEditor, grant.Role)
		title := "Edited after promotion"
		_, _, err = f.coordinator.Update(f.ctx, viewerID, ev.ID, Patch{Title: &title})
		require.NoError(t, err)
	})
}

// The end-to-end sharing scenario: share, notify, update, notify, revoke,
// silence.
func TestCoordinator_SharingLifecycle(t *testing.T) {
	// given
	f := setupCoordinator(t)
	ownerID := uuid.New()
	viewerID := uuid.New()
	ev := mustCreate(t, f, ownerID, draftAt("Project kickoff", at(9, 0), at(10, 0)))

	// share → permission_changed
	_, err := f.coordinator.Share(f.ctx, ownerID, ev.ID, []ShareItem{{UserID: viewerID, Role: permission.RoleViewer}})
	require.NoError(t, err)
	msg := f.hub.last(t)
	require.Equal(t, notification.KindPermissionChanged, msg.Kind)
	require.NotNil(t, msg.Grant)
	assert.Equal(t, viewerID, msg.Grant.UserID)

	// update → event_changed v2
	title := "Project kickoff (moved)"
	_, _, err = f.coordinator.Update(f.ctx, ownerID, ev.ID, Patch{Title: &title})
	require.NoError(t, err)
	msg = f.hub.last(t)
	assert.Equal(t, notification.KindEventChanged, msg.Kind)
	assert.Equal(t, 2, msg.Version)

	// revoke → grant delta marks the user revoked
	require.NoError(t, f.coordinator.RevokePermission(f.ctx, ownerID, ev.ID, viewerID))
	msg = f.hub.last(t)
	require.Equal(t, notification.KindPermissionChanged, msg.Kind)
	require.NotNil(t, msg.Grant)
	assert.True(t, msg.Grant.Revoked)

	// the next update is published, but the hub resolves its audience from
	// current grants, which no longer include the revoked viewer
	before := len(f.hub.all())
	title = "Final agenda"
	_, _, err = f.coordinator.Update(f.ctx, ownerID, ev.ID, Patch{Title: &title})
	require.NoError(t, err)
	messages := f.hub.all()
	require.Len(t, messages, before+1)
	assert.Equal(t, 3, messages[len(messages)-1].Version)
}
