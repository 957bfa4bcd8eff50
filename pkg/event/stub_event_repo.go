package event

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StubEventRepo is the in-memory repository used by service tests. Grants
// are mirrored with userIDs so ListByUser can resolve visibility without a
// real permissions table.
type StubEventRepo struct {
	mu      sync.Mutex
	events  map[uuid.UUID]Event
	visible map[uuid.UUID]map[uuid.UUID]struct{}
}

func NewStubEventRepo() *StubEventRepo {
	return &StubEventRepo{
		events:  map[uuid.UUID]Event{},
		visible: map[uuid.UUID]map[uuid.UUID]struct{}{},
	}
}

// GrantVisibility mirrors a permission grant so ListByUser sees the event.
func (s *StubEventRepo) GrantVisibility(eventID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, ok := s.visible[eventID]
	if !ok {
		users = map[uuid.UUID]struct{}{}
		s.visible[eventID] = users
	}
	users[userID] = struct{}{}
}

func (s *StubEventRepo) Insert(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
	users, ok := s.visible[event.ID]
	if !ok {
		users = map[uuid.UUID]struct{}{}
		s.visible[event.ID] = users
	}
	users[event.OwnerID] = struct{}{}
	return nil
}

func (s *StubEventRepo) Get(_ context.Context, id uuid.UUID) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return event, nil
}

func (s *StubEventRepo) ListByUser(_ context.Context, userID uuid.UUID, offset, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []Event
	for id, users := range s.visible {
		if _, ok := users[userID]; !ok {
			continue
		}
		event, stored := s.events[id]
		if !stored || event.Deleted {
			continue
		}
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.After(events[j].CreatedAt)
		}
		return events[i].ID.String() < events[j].ID.String()
	})
	if offset >= len(events) {
		return nil, nil
	}
	events = events[offset:]
	if limit < len(events) {
		events = events[:limit]
	}
	return events, nil
}

func (s *StubEventRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []Event
	for _, event := range s.events {
		if event.OwnerID == ownerID && !event.Deleted {
			events = append(events, event)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Snapshot.StartTime.Before(events[j].Snapshot.StartTime)
	})
	return events, nil
}

func (s *StubEventRepo) ListByOwnerBetween(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]Event, error) {
	all, err := s.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var events []Event
	for _, event := range all {
		if event.Snapshot.StartTime.Before(to) && event.Snapshot.EndTime.After(from) {
			events = append(events, event)
		}
	}
	return events, nil
}

func (s *StubEventRepo) UpdateSnapshot(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.events[event.ID]
	if !ok || stored.Deleted {
		return ErrEventNotFound
	}
	stored.Snapshot = event.Snapshot
	stored.Version = event.Version
	stored.UpdatedAt = event.UpdatedAt
	s.events[event.ID] = stored
	return nil
}

func (s *StubEventRepo) MarkDeleted(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.events[id]
	if !ok || stored.Deleted {
		return ErrEventNotFound
	}
	stored.Deleted = true
	stored.UpdatedAt = at
	s.events[id] = stored
	return nil
}

func (s *StubEventRepo) IsTombstoned(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.events[id]
	if !ok {
		return false, ErrEventNotFound
	}
	return stored.Deleted, nil
}

func (s *StubEventRepo) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = map[uuid.UUID]Event{}
	s.visible = map[uuid.UUID]map[uuid.UUID]struct{}{}
}
