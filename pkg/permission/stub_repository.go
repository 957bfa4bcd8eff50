package permission

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

type grantKey struct {
	eventID uuid.UUID
	userID  uuid.UUID
}

type StubRepository struct {
	data map[grantKey]Grant
}

func NewStubRepository() *StubRepository {
	return &StubRepository{data: map[grantKey]Grant{}}
}

func (s *StubRepository) Insert(ctx context.Context, grant Grant) error {
	key := grantKey{grant.EventID, grant.UserID}
	if _, exists := s.data[key]; exists {
		return ErrGrantExists
	}
	s.data[key] = grant
	return nil
}

func (s *StubRepository) UpdateRole(ctx context.Context, eventID, userID uuid.UUID, role Role, updatedAt time.Time) error {
	key := grantKey{eventID, userID}
	grant, ok := s.data[key]
	if !ok {
		return ErrGrantNotFound
	}
	grant.Role = role
	grant.UpdatedAt = updatedAt
	s.data[key] = grant
	return nil
}

func (s *StubRepository) Delete(ctx context.Context, eventID, userID uuid.UUID) error {
	key := grantKey{eventID, userID}
	if _, ok := s.data[key]; !ok {
		return ErrGrantNotFound
	}
	delete(s.data, key)
	return nil
}

func (s *StubRepository) Get(ctx context.Context, eventID, userID uuid.UUID) (Grant, error) {
	grant, ok := s.data[grantKey{eventID, userID}]
	if !ok {
		return Grant{}, ErrGrantNotFound
	}
	return grant, nil
}

func (s *StubRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]Grant, error) {
	grants := make([]Grant, 0, len(s.data))
	for key, grant := range s.data {
		if key.eventID == eventID {
			grants = append(grants, grant)
		}
	}
	sort.Slice(grants, func(i, j int) bool {
		if !grants[i].CreatedAt.Equal(grants[j].CreatedAt) {
			return grants[i].CreatedAt.Before(grants[j].CreatedAt)
		}
		return grants[i].UserID.String() < grants[j].UserID.String()
	})
	return grants, nil
}

func (s *StubRepository) ListUserIDsByEvent(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	grants, err := s.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	userIDs := make([]uuid.UUID, 0, len(grants))
	for _, grant := range grants {
		userIDs = append(userIDs, grant.UserID)
	}
	return userIDs, nil
}

func (s *StubRepository) Cleanup() {
	s.data = map[grantKey]Grant{}
}
