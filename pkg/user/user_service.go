package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/google/uuid"
	"github.com/irefuse3585/event-manager-api/internal/apierr"
	"github.com/irefuse3585/event-manager-api/internal/auth"
	"github.com/irefuse3585/event-manager-api/internal/utils"
)

// Registration carries the fields a new account is created from. The
// plaintext password never reaches the repository.
type Registration struct {
	Username string
	Email    string
	Password string
}

func (r Registration) validate() error {
	if len(r.Username) < 3 || len(r.Username) > 50 {
		return apierr.Validation("username must be between 3 and 50 characters")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return apierr.Validation("email address is not valid")
	}
	if len(r.Password) < 8 {
		return apierr.Validation("password must be at least 8 characters")
	}
	return nil
}

type Service interface {
	Register(ctx context.Context, reg Registration) (User, error)
	Authenticate(ctx context.Context, login string, password string) (User, error)
	GetCurrentUser(ctx context.Context) (User, error)
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	GetAllUsers(ctx context.Context) ([]User, error)
}

type Provider interface {
	GetCurrentUser(ctx context.Context) (User, error)
}

type UserServiceImpl struct {
	repo  Repo
	clock utils.Clock
}

func NewUserService(repo Repo, clock utils.Clock) *UserServiceImpl {
	return &UserServiceImpl{repo: repo, clock: clock}
}

func (u *UserServiceImpl) Register(ctx context.Context, reg Registration) (User, error) {
	if err := reg.validate(); err != nil {
		return User{}, err
	}
	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		return User{}, fmt.Errorf("could not hash password: %w", err)
	}
	user := User{
		ID:           uuid.New(),
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hash,
		Role:         RoleUser,
		Active:       true,
		CreatedAt:    u.clock.Now(),
	}
	if err := u.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			return User{}, apierr.Conflict("username or email already registered")
		}
		return User{}, err
	}
	return user, nil
}

// Authenticate resolves a login (username or email) and checks the password.
// The two failure paths share one message so the response does not reveal
// which part was wrong.
func (u *UserServiceImpl) Authenticate(ctx context.Context, login string, password string) (User, error) {
	user, err := u.repo.GetUserByLogin(ctx, login)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, apierr.Unauthorized("invalid username/email or password")
	}
	if err != nil {
		return User{}, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return User{}, apierr.Unauthorized("invalid username/email or password")
	}
	if !user.Active {
		return User{}, apierr.Forbidden("user account is deactivated")
	}
	return user, nil
}

func (u *UserServiceImpl) GetCurrentUser(ctx context.Context) (User, error) {
	userId, err := CurrentId(ctx)
	if err != nil {
		return User{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return u.GetUser(ctx, userId)
}

func (u *UserServiceImpl) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	user, err := u.repo.GetUser(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, apierr.Newf(apierr.KindNotFound, "user %s does not exist", id)
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (u *UserServiceImpl) GetAllUsers(ctx context.Context) ([]User, error) {
	return u.repo.GetAllUsers(ctx)
}
