package history

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

type StubRepository struct {
	data map[uuid.UUID]map[int]Version
}

func NewStubRepository() *StubRepository {
	return &StubRepository{data: map[uuid.UUID]map[int]Version{}}
}

func (s *StubRepository) Append(ctx context.Context, version Version) error {
	versions, ok := s.data[version.EventID]
	if !ok {
		versions = map[int]Version{}
		s.data[version.EventID] = versions
	}
	if _, exists := versions[version.Number]; exists {
		return ErrVersionExists
	}
	versions[version.Number] = version
	return nil
}

func (s *StubRepository) Get(ctx context.Context, eventID uuid.UUID, number int) (Version, error) {
	version, ok := s.data[eventID][number]
	if !ok {
		return Version{}, ErrVersionNotFound
	}
	return version, nil
}

func (s *StubRepository) List(ctx context.Context, eventID uuid.UUID) ([]Version, error) {
	versions := make([]Version, 0, len(s.data[eventID]))
	for _, version := range s.data[eventID] {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Number < versions[j].Number })
	return versions, nil
}

func (s *StubRepository) Latest(ctx context.Context, eventID uuid.UUID) (Version, error) {
	versions, err := s.List(ctx, eventID)
	if err != nil {
		return Version{}, err
	}
	if len(versions) == 0 {
		return Version{}, ErrVersionNotFound
	}
	return versions[len(versions)-1], nil
}

func (s *StubRepository) Cleanup() {
	s.data = map[uuid.UUID]map[int]Version{}
}
