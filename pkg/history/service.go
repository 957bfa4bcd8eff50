package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/irefuse3585/event-manager-api/internal/apierr"
	"github.com/irefuse3585/event-manager-api/internal/utils"
)

// TombstoneSource tells the version log whether an event has been deleted.
// Deleted events keep their history readable but accept no new versions.
type TombstoneSource interface {
	IsTombstoned(ctx context.Context, eventID uuid.UUID) (bool, error)
}

type Service interface {
	Append(ctx context.Context, eventID uuid.UUID, kind ChangeKind, snapshot Snapshot, authorID uuid.UUID) (Version, error)
	Get(ctx context.Context, eventID uuid.UUID, number int) (Version, error)
	List(ctx context.Context, eventID uuid.UUID) ([]Version, error)
	Latest(ctx context.Context, eventID uuid.UUID) (Version, error)
	DiffVersions(ctx context.Context, eventID uuid.UUID, from, to int) ([]FieldChange, error)
	Rollback(ctx context.Context, eventID uuid.UUID, target int, authorID uuid.UUID) (Version, error)
}

type ServiceImpl struct {
	repo       Repository
	tombstones TombstoneSource
	clock      utils.Clock
}

func NewService(repo Repository, tombstones TombstoneSource, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, tombstones: tombstones, clock: clock}
}

// Append writes the next version of an event. Version numbers are assigned
// here: the first version of an event is 1 and every later append takes the
// highest stored number plus one. A concurrent append racing for the same
// number surfaces as a conflict so the caller can retry against the fresh
// latest version.
func (s *ServiceImpl) Append(ctx context.Context, eventID uuid.UUID, kind ChangeKind, snapshot Snapshot, authorID uuid.UUID) (Version, error) {
	deleted, err := s.tombstones.IsTombstoned(ctx, eventID)
	if err != nil {
		return Version{}, fmt.Errorf("could not check event state: %w", err)
	}
	if deleted {
		return Version{}, apierr.Newf(apierr.KindInvalidState, "event %s is deleted and accepts no new versions", eventID)
	}

	next := 1
	latest, err := s.repo.Latest(ctx, eventID)
	if err != nil && !errors.Is(err, ErrVersionNotFound) {
		return Version{}, err
	}
	if err == nil {
		next = latest.Number + 1
	}

	version := Version{
		EventID:   eventID,
		Number:    next,
		Kind:      kind,
		Snapshot:  snapshot.Clone(),
		AuthorID:  authorID,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Append(ctx, version); err != nil {
		if errors.Is(err, ErrVersionExists) {
			return Version{}, apierr.Newf(apierr.KindConflict, "version %d of event %s was written concurrently", next, eventID)
		}
		return Version{}, err
	}
	return version, nil
}

func (s *ServiceImpl) Get(ctx context.Context, eventID uuid.UUID, number int) (Version, error) {
	if number < 1 {
		return Version{}, apierr.Newf(apierr.KindValidation, "version number must be positive, got %d", number)
	}
	version, err := s.repo.Get(ctx, eventID, number)
	if errors.Is(err, ErrVersionNotFound) {
		return Version{}, apierr.Newf(apierr.KindNotFound, "version %d of event %s not found", number, eventID)
	}
	if err != nil {
		return Version{}, err
	}
	return version, nil
}

func (s *ServiceImpl) List(ctx context.Context, eventID uuid.UUID) ([]Version, error) {
	versions, err := s.repo.List(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, apierr.Newf(apierr.KindNotFound, "event %s has no recorded versions", eventID)
	}
	return versions, nil
}

func (s *ServiceImpl) Latest(ctx context.Context, eventID uuid.UUID) (Version, error) {
	version, err := s.repo.Latest(ctx, eventID)
	if errors.Is(err, ErrVersionNotFound) {
		return Version{}, apierr.Newf(apierr.KindNotFound, "event %s has no recorded versions", eventID)
	}
	if err != nil {
		return Version{}, err
	}
	return version, nil
}

// DiffVersions compares two stored versions field by field, oriented from
// the first argument towards the second.
func (s *ServiceImpl) DiffVersions(ctx context.Context, eventID uuid.UUID, from, to int) ([]FieldChange, error) {
	fromVersion, err := s.Get(ctx, eventID, from)
	if err != nil {
		return nil, err
	}
	toVersion, err := s.Get(ctx, eventID, to)
	if err != nil {
		return nil, err
	}
	return Diff(fromVersion.Snapshot, toVersion.Snapshot), nil
}

// Rollback appends a new version whose snapshot copies the target version.
// The log keeps growing: rolling back never rewrites or removes entries.
func (s *ServiceImpl) Rollback(ctx context.Context, eventID uuid.UUID, target int, authorID uuid.UUID) (Version, error) {
	targetVersion, err := s.Get(ctx, eventID, target)
	if err != nil {
		return Version{}, err
	}
	return s.Append(ctx, eventID, ChangeRollback, targetVersion.Snapshot, authorID)
}
