package permission

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/irefuse3585/event-manager-api/internal/apierr"
	"github.com/irefuse3585/event-manager-api/internal/utils"
	"github.com/irefuse3585/event-manager-api/pkg/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	messages []notification.Message
}

func (c *captureNotifier) Publish(ctx context.Context, msg notification.Message) {
	c.messages = append(c.messages, msg)
}

func setupRegistry(t *testing.T) (context.Context, *RegistryImpl, *captureNotifier) {
	t.Helper()
	ctx := context.Background()
	notifier := &captureNotifier{}
	clock := &utils.MockClock{FixedNow: time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)}
	registry := NewRegistry(NewStubRepository(), notifier, clock)
	return ctx, registry, notifier
}

func ownedEvent(t *testing.T, ctx context.Context, registry *RegistryImpl) (uuid.UUID, uuid.UUID) {
	t.Helper()
	eventID := uuid.New()
	ownerID := uuid.New()
	_, err := registry.GrantOwner(ctx, eventID, ownerID)
	require.NoError(t, err)
	return eventID, ownerID
}

func TestRegistry_GrantOwner(t *testing.T) {
	t.Run("should record the creator as owner", func(t *testing.T) {
		// given
		ctx, registry, notifier := setupRegistry(t)
		eventID := uuid.New()
		ownerID := uuid.New()

		// when
		grant, err := registry.GrantOwner(ctx, eventID, ownerID)

		// then
		require.NoError(t, err)
		assert.Equal(t, RoleOwner, grant.Role)
		assert.Equal(t, ownerID, grant.UserID)

		role, ok, err := registry.RoleOf(ctx, eventID, ownerID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, RoleOwner, role)

		// creation fanout is the coordinator's message, not a grant change
		assert.Empty(t, notifier.messages)
	})

	t.Run("should reject a second owner", func(t *testing.T) {
		// given
		ctx, registry, _ := setupRegistry(t)
		eventID, _ := ownedEvent(t, ctx, registry)

		// when
		_, err := registry.GrantOwner(ctx, eventID, uuid.New())

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidState))
	})
}

func TestRegistry_Grant(t *testing.T) {
	t.Run("should let the owner share and notify the change", func(t *testing.T) {
		// given
		ctx, registry, notifier := setupRegistry(t)
		eventID, ownerID := ownedEvent(t, ctx, registry)
		granteeID := uuid.New()

		// when
		grant, err := registry.Grant(ctx, eventID, ownerID, granteeID, RoleEditor)

		// then
		require.NoError(t, err)
		assert.Equal(t, RoleEditor, grant.Role)
		assert.Equal(t, ownerID, grant.GrantedBy)

		require.Len(t, notifier.messages, 1)
		msg := notifier.messages[0]
		assert.Equal(t, notification.KindPermissionChanged, msg.Kind)
		assert.Equal(t, eventID, msg.EventID)
		require.NotNil(t, msg.Grant)
		assert.Equal(t, granteeID, msg.Grant.UserID)
		assert.Equal(t, "Editor", msg.Grant.Role)
		assert.False(t, msg.Grant.Revoked)
	})

	t.Run("should never grant the owner role", func(t *testing.T) {
		// given
		ctx, registry, notifier := setupRegistry(t)
		eventID, ownerID := ownedEvent(t, ctx, registry)

		// when
		_, err := registry.Grant(ctx, eventID, ownerID, uuid.New(), RoleOwner)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidState))
		assert.Empty(t, notifier.messages)
	})

	t.Run("should forbid sharing by a non-owner", func(t *testing.T) {
		// given
		ctx, registry, _ := setupRegistry(t)
		eventID, ownerID := ownedEvent(t, ctx, registry)
		editorID := uuid.New()
		_, err := registry.Grant(ctx, eventID, ownerID, editorID, RoleEditor)
		require.NoError(t, err)

		// when
		_, err = registry.Grant(ctx, eventID, editorID, uuid.New(), RoleViewer)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindForbidden))
	})

	t.Run("should report conflict for an already shared user", func(t *testing.T) {
		// given
		ctx, registry, _ := setupRegistry(t)
		eventID, ownerID := ownedEvent(t, ctx, registry)
		granteeID := uuid.New()
		_, err := registry.Grant(ctx, eventID, ownerID, granteeID, RoleViewer)
		require.NoError(t, err)

		// when
		_, err = registry.Grant(ctx, eventID, ownerID, granteeID, RoleEditor)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindConflict))
	})
}

func TestRegistry_UpdateRole(t *testing.T) {
	t.Run("should change a grantee's role and notify", func(t *testing.T) {
		// given
		ctx, registry, notifier := setupRegistry(t)
		eventID, ownerID := ownedEvent(t, ctx, registry)
		granteeID := uuid.New()
		_, err := registry.Grant(ctx, eventID, ownerID, granteeID, RoleViewer)
		require.NoError(t, err)
		notifier.messages = nil

		// when
		grant, err := registry.UpdateRole(ctx, eventID, ownerID, granteeID, RoleEditor)

		// then
		require.NoError(t, err)
		assert.Equal(t, RoleEditor, grant.Role)

		role, ok, err := registry.RoleOf(ctx, eventID, granteeID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, RoleEditor, role)

		require.Len(t, notifier.messages, 1)
		assert.Equal(t, "Editor", notifier.messages[0].Grant.Role)
	})

	t.Run("should refuse transferring ownership", func(t *testing.T) {
		// given
		ctx, registry, _ := setupRegistry(t)
		eventID, ownerID := ownedEvent(t, ctx, registry)
		granteeID := uuid.New()
		_, err := registry.Grant(ctx, eventID, ownerID, granteeID, RoleEditor)
		require.NoError(t, err)

		// when
		_, err = registry.UpdateRole(ctx, eventID, ownerID, granteeID, RoleOwner)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidState))
	})

	t.Run("should refuse touching the owner grant", func(t *testing.T) {
		// given
		ctx, registry, _ := setupRegistry(t)
		eventID, ownerID := ownedEvent(t, ctx, registry)

		// when
		_, err := registry.UpdateRole(ctx, eventID, ownerID, ownerID, RoleViewer)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidState))
	})

	t.Run("should report not found for a user without a grant", func(t *testing.T) {
		// given
		ctx, registry, _ := setupRegistry(t)
		eventID, ownerID := ownedEvent(t, ctx, registry)

		// when
		_, err := registry.UpdateRole(ctx, eventID, ownerID, uuid.New(), RoleViewer)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindNotFound))
	})

	t.Run("should forbid updates by a non-owner", func(t *testing.T) {
		// given
		ctx, registry, _ := setupRegistry(t)
		eventID, ownerID := ownedEvent(t, ctx, registry)
		editorID := uuid.New()
		viewerID := uuid.New()
		_, err := registry.Grant(ctx, eventID, ownerID, editorID, RoleEditor)
		require.NoError(t, err)
		_, err = registry.Grant(ctx, eventID, ownerID, viewerID, RoleViewer)
		require.NoError(t, err)

		// when
		_, err = registry.UpdateRole(ctx, eventID, editorID, viewerID, RoleEditor)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindForbidden))
	})
}

func TestRegistry_Revoke(t *testing.T) {
	t.Run("should remove the grant and notify the revocation", func(t *testing.T) {
		// given
		ctx, registry, notifier := setupRegistry(t)
		eventID, ownerID := ownedEvent(t, ctx, registry)
		granteeID := uuid.New()
		_, err := registry.Grant(ctx, eventID, ownerID, granteeID, RoleViewer)
		require.NoError(t, err)
		notifier.messages = nil

		// when
		err = registry.Revoke(ctx, eventID, ownerID, granteeID)

		// then
		require.NoError(t, err)
		_, ok, err := registry.RoleOf(ctx, eventID, granteeID)
		require.NoError(t, err)
		assert.False(t, ok)

		require.Len(t, notifier.messages, 1)
		msg := notifier.messages[0]
		assert.Equal(t, notification.KindPermissionChanged, msg.Kind)
		require.NotNil(t, msg.Grant)
		assert.True(t, msg.Grant.Revoked)
		assert.Equal(t, granteeID, msg.Grant.UserID)
	})

	t.Run("should never revoke the owner grant", func(t *testing.T) {
		// given
		ctx, registry, _ := setupRegistry(t)
		eventID, ownerID := ownedEvent(t, ctx, registry)

		// when
		err := registry.Revoke(ctx, eventID, ownerID, ownerID)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidState))

		role, ok, err := registry.RoleOf(ctx, eventID, ownerID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, RoleOwner, role)
	})

	t.Run("should report not found for a user without a grant", func(t *testing.T) {
		// given
		ctx, registry, _ := setupRegistry(t)
		eventID, ownerID := ownedEvent(t, ctx, registry)

		// when
		err := registry.Revoke(ctx, eventID, ownerID, uuid.New())

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindNotFound))
	})

	t.Run("should forbid revocation by a non-owner", func(t *testing.T) {
		// given
		ctx, registry, _ := setupRegistry(t)
		eventID, ownerID := ownedEvent(t, ctx, registry)
		editorID := uuid.New()
		viewerID := uuid.New()
		_, err := registry.Grant(ctx, eventID, ownerID, editorID, RoleEditor)
		require.NoError(t, err)
		_, err = registry.Grant(ctx, eventID, ownerID, viewerID, RoleViewer)
		require.NoError(t, err)

		// when
		err = registry.Revoke(ctx, eventID, editorID, viewerID)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindForbidden))
	})
}

func TestRegistry_Authorize(t *testing.T) {
	t.Run("higher roles cover lower requirements", func(t *testing.T) {
		// given
		ctx, registry, _ := setupRegistry(t)
		eventID, ownerID := ownedEvent(t, ctx, registry)
		editorID := uuid.New()
		viewerID := uuid.New()
		_, err := registry.Grant(ctx, eventID, ownerID, editorID, RoleEditor)
		require.NoError(t, err)
		_, err = registry.Grant(ctx, eventID, ownerID, viewerID, RoleViewer)
		require.NoError(t, err)

		cases := []struct {
			name     string
			userID   uuid.UUID
			required Role
			want     bool
		}{
			{"owner covers viewer", ownerID, RoleViewer, true},
			{"owner covers owner", ownerID, RoleOwner, true},
			{"editor covers viewer", editorID, RoleViewer, true},
			{"editor covers editor", editorID, RoleEditor, true},
			{"editor does not cover owner", editorID, RoleOwner, false},
			{"viewer covers viewer", viewerID, RoleViewer, true},
			{"viewer does not cover editor", viewerID, RoleEditor, false},
			{"stranger covers nothing", uuid.New(), RoleViewer, false},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				allowed, err := registry.Authorize(ctx, eventID, tc.userID, tc.required)
				require.NoError(t, err)
				assert.Equal(t, tc.want, allowed)
			})
		}
	})
}

func TestRegistry_ListGrants(t *testing.T) {
	t.Run("should list every grant on the event", func(t *testing.T) {
		// given
		ctx, registry, _ := setupRegistry(t)
		eventID, ownerID := ownedEvent(t, ctx, registry)
		otherEvent, _ := ownedEvent(t, ctx, registry)
		_ = otherEvent
		granteeID := uuid.New()
		_, err := registry.Grant(ctx, eventID, ownerID, granteeID, RoleViewer)
		require.NoError(t, err)

		// when
		grants, err := registry.ListGrants(ctx, eventID)

		// then
		require.NoError(t, err)
		require.Len(t, grants, 2)
		byUser := map[uuid.UUID]Role{}
		for _, grant := range grants {
			byUser[grant.UserID] = grant.Role
		}
		assert.Equal(t, RoleOwner, byUser[ownerID])
		assert.Equal(t, RoleViewer, byUser[granteeID])
	})
}
