package user

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

type StubUserRepo struct {
	data map[uuid.UUID]User
}

func NewStubUserRepo() *StubUserRepo {
	return &StubUserRepo{data: make(map[uuid.UUID]User)}
}

func (s *StubUserRepo) CreateUser(_ context.Context, user User) error {
	for _, existing := range s.data {
		if existing.Username == user.Username || existing.Email == user.Email {
			return ErrUserExists
		}
	}
	if _, ok := s.data[user.ID]; ok {
		return ErrUserExists
	}
	s.data[user.ID] = user
	return nil
}

func (s *StubUserRepo) GetUser(_ context.Context, id uuid.UUID) (User, error) {
	user, ok := s.data[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *StubUserRepo) GetUserByLogin(_ context.Context, login string) (User, error) {
	for _, user := range s.data {
		if user.Username == login || user.Email == login {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (s *StubUserRepo) GetAllUsers(_ context.Context) ([]User, error) {
	users := make([]User, 0, len(s.data))
	for _, user := range s.data {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *StubUserRepo) Cleanup() {
	s.data = make(map[uuid.UUID]User)
}
