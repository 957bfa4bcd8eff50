package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/irefuse3585/event-manager-api/internal/apierr"
	"github.com/irefuse3585/event-manager-api/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTombstones struct {
	deleted map[uuid.UUID]bool
}

func (s *stubTombstones) IsTombstoned(ctx context.Context, eventID uuid.UUID) (bool, error) {
	return s.deleted[eventID], nil
}

// racingRepo slips a competing append in front of every call, so the
// service-computed number is always taken by the time it writes.
type racingRepo struct {
	*StubRepository
	author uuid.UUID
}

func (r *racingRepo) Append(ctx context.Context, version Version) error {
	competing := version
	competing.AuthorID = r.author
	if err := r.StubRepository.Append(ctx, competing); err != nil {
		return err
	}
	return r.StubRepository.Append(ctx, version)
}

func setupTestService(t *testing.T) (context.Context, *ServiceImpl, *StubRepository, *stubTombstones) {
	ctx := context.Background()
	repo := NewStubRepository()
	tombstones := &stubTombstones{deleted: map[uuid.UUID]bool{}}
	clock := &utils.MockClock{FixedNow: time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)}
	return ctx, NewService(repo, tombstones, clock), repo, tombstones
}

func TestService_Append(t *testing.T) {
	t.Run("should number versions contiguously from one", func(t *testing.T) {
		// given
		ctx, service, _, _ := setupTestService(t)
		eventID := uuid.New()
		authorID := uuid.New()

		// when
		first, err := service.Append(ctx, eventID, ChangeCreate, sampleSnapshot("v1"), authorID)
		require.NoError(t, err)
		second, err := service.Append(ctx, eventID, ChangeUpdate, sampleSnapshot("v2"), authorID)
		require.NoError(t, err)

		// then
		assert.Equal(t, 1, first.Number)
		assert.Equal(t, ChangeCreate, first.Kind)
		assert.Equal(t, 2, second.Number)
		assert.Equal(t, ChangeUpdate, second.Kind)
		assert.Equal(t, authorID, second.AuthorID)
	})

	t.Run("should refuse to append to a deleted event", func(t *testing.T) {
		// given
		ctx, service, _, tombstones := setupTestService(t)
		eventID := uuid.New()
		tombstones.deleted[eventID] = true

		// when
		_, err := service.Append(ctx, eventID, ChangeUpdate, sampleSnapshot("late edit"), uuid.New())

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidState))
	})

	t.Run("should report a conflict when the computed number is taken", func(t *testing.T) {
		// given
		ctx := context.Background()
		repo := &racingRepo{StubRepository: NewStubRepository(), author: uuid.New()}
		tombstones := &stubTombstones{deleted: map[uuid.UUID]bool{}}
		clock := &utils.MockClock{FixedNow: time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)}
		service := NewService(repo, tombstones, clock)

		// when
		_, err := service.Append(ctx, uuid.New(), ChangeCreate, sampleSnapshot("race"), uuid.New())

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindConflict))
	})

	t.Run("should not alias the caller's occurrence slice", func(t *testing.T) {
		// given
		ctx, service, repo, _ := setupTestService(t)
		eventID := uuid.New()
		snapshot := sampleSnapshot("aliasing")
		snapshot.Occurrences = sampleSnapshot("x").Intervals()

		// when
		_, err := service.Append(ctx, eventID, ChangeCreate, snapshot, uuid.New())
		require.NoError(t, err)
		snapshot.Occurrences[0].Start = snapshot.Occurrences[0].Start.Add(time.Hour)

		// then
		stored, err := repo.Get(ctx, eventID, 1)
		require.NoError(t, err)
		assert.False(t, stored.Snapshot.Occurrences[0].Start.Equal(snapshot.Occurrences[0].Start))
	})
}

func TestService_Get(t *testing.T) {
	t.Run("should map a missing version to not found", func(t *testing.T) {
		// given
		ctx, service, _, _ := setupTestService(t)

		// when
		_, err := service.Get(ctx, uuid.New(), 5)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindNotFound))
	})

	t.Run("should reject non-positive version numbers", func(t *testing.T) {
		// given
		ctx, service, _, _ := setupTestService(t)

		// when
		_, err := service.Get(ctx, uuid.New(), 0)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindValidation))
	})
}

func TestService_List(t *testing.T) {
	t.Run("should map an empty history to not found", func(t *testing.T) {
		// given
		ctx, service, _, _ := setupTestService(t)

		// when
		_, err := service.List(ctx, uuid.New())

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindNotFound))
	})

	t.Run("should return every version in order", func(t *testing.T) {
		// given
		ctx, service, _, _ := setupTestService(t)
		eventID := uuid.New()
		for _, title := range []string{"v1", "v2", "v3"} {
			_, err := service.Append(ctx, eventID, ChangeUpdate, sampleSnapshot(title), uuid.New())
			require.NoError(t, err)
		}

		// when
		versions, err := service.List(ctx, eventID)

		// then
		require.NoError(t, err)
		require.Len(t, versions, 3)
		assert.Equal(t, "v1", versions[0].Snapshot.Title)
		assert.Equal(t, "v3", versions[2].Snapshot.Title)
	})
}

func TestService_DiffVersions(t *testing.T) {
	t.Run("should diff two stored versions", func(t *testing.T) {
		// given
		ctx, service, _, _ := setupTestService(t)
		eventID := uuid.New()
		before := sampleSnapshot("Planning")
		after := sampleSnapshot("Planning (moved)")
		after.StartTime = after.StartTime.Add(time.Hour)
		after.EndTime = after.EndTime.Add(time.Hour)
		_, err := service.Append(ctx, eventID, ChangeCreate, before, uuid.New())
		require.NoError(t, err)
		_, err = service.Append(ctx, eventID, ChangeUpdate, after, uuid.New())
		require.NoError(t, err)

		// when
		changes, err := service.DiffVersions(ctx, eventID, 1, 2)

		// then
		require.NoError(t, err)
		byField := map[string]FieldChange{}
		for _, change := range changes {
			byField[change.Field] = change
		}
		assert.Equal(t, OpChanged, byField["title"].Op)
		assert.Equal(t, OpChanged, byField["startTime"].Op)
		assert.Equal(t, OpUnchanged, byField["description"].Op)
	})

	t.Run("should surface not found when one side is missing", func(t *testing.T) {
		// given
		ctx, service, _, _ := setupTestService(t)
		eventID := uuid.New()
		_, err := service.Append(ctx, eventID, ChangeCreate, sampleSnapshot("only one"), uuid.New())
		require.NoError(t, err)

		// when
		_, err = service.DiffVersions(ctx, eventID, 1, 7)

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindNotFound))
	})
}

func TestService_Rollback(t *testing.T) {
	t.Run("should append a rollback version copying the target snapshot", func(t *testing.T) {
		// given
		ctx, service, _, _ := setupTestService(t)
		eventID := uuid.New()
		authorID := uuid.New()
		original := sampleSnapshot("Original")
		_, err := service.Append(ctx, eventID, ChangeCreate, original, authorID)
		require.NoError(t, err)
		edited := sampleSnapshot("Edited")
		_, err = service.Append(ctx, eventID, ChangeUpdate, edited, authorID)
		require.NoError(t, err)

		// when
		rolledBack, err := service.Rollback(ctx, eventID, 1, authorID)

		// then
		require.NoError(t, err)
		assert.Equal(t, 3, rolledBack.Number)
		assert.Equal(t, ChangeRollback, rolledBack.Kind)
		assert.True(t, original.Equal(rolledBack.Snapshot))

		versions, err := service.List(ctx, eventID)
		require.NoError(t, err)
		require.Len(t, versions, 3)
	})

	t.Run("should report not found for an unknown target version", func(t *testing.T) {
		// given
		ctx, service, _, _ := setupTestService(t)
		eventID := uuid.New()
		_, err := service.Append(ctx, eventID, ChangeCreate, sampleSnapshot("only"), uuid.New())
		require.NoError(t, err)

		// when
		_, err = service.Rollback(ctx, eventID, 9, uuid.New())

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindNotFound))
	})

	t.Run("should refuse to roll back a deleted event", func(t *testing.T) {
		// given
		ctx, service, _, tombstones := setupTestService(t)
		eventID := uuid.New()
		_, err := service.Append(ctx, eventID, ChangeCreate, sampleSnapshot("before delete"), uuid.New())
		require.NoError(t, err)
		tombstones.deleted[eventID] = true

		// when
		_, err = service.Rollback(ctx, eventID, 1, uuid.New())

		// then
		require.Error(t, err)
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidState))
	})
}
