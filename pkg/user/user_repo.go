package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("username or email already registered")
)

type Repo interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByLogin(ctx context.Context, login string) (User, error)
	GetAllUsers(ctx context.Context) ([]User, error)
}

type UserRepoImpl struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepoImpl {
	return &UserRepoImpl{db: db}
}

func (u *UserRepoImpl) CreateUser(ctx context.Context, user User) error {
	query := `INSERT INTO users (
                            id,
                            username,
                            email,
                            password_hash,
                            role,
                            is_active,
                            created_at
                        ) VALUES (?, ?, ?, ?, ?, ?, ?)`

	stmt, err := u.db.PrepareContext(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not prepare query: %v", err)
		log.Error(err)
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		user.ID.String(),
		user.Username,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.Active,
		user.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrUserExists
		}
		err := fmt.Errorf("could not execute query: %v", err)
		log.Error(err)
		return err
	}
	return nil
}

func (u *UserRepoImpl) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	query := `SELECT id, username, email, password_hash, role, is_active, created_at
              FROM users
              WHERE id = ?`

	row := u.db.QueryRowContext(ctx, query, id.String())
	user, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		err := fmt.Errorf("could not read user: %w", err)
		log.Error(err)
		return User{}, err
	}
	return user, nil
}

// GetUserByLogin looks a user up by username or email, whichever matches.
func (u *UserRepoImpl) GetUserByLogin(ctx context.Context, login string) (User, error) {
	query := `SELECT id, username, email, password_hash, role, is_active, created_at
              FROM users
              WHERE username = ? OR email = ?`

	row := u.db.QueryRowContext(ctx, query, login, login)
	user, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		err := fmt.Errorf("could not read user: %w", err)
		log.Error(err)
		return User{}, err
	}
	return user, nil
}

func (u *UserRepoImpl) GetAllUsers(ctx context.Context) ([]User, error) {
	query := `SELECT id, username, email, password_hash, role, is_active, created_at
              FROM users
              ORDER BY created_at, username`

	rows, err := u.db.QueryContext(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not query users: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0, 10)
	for rows.Next() {
		user, err := scanUser(rows.Scan)
		if err != nil {
			err := fmt.Errorf("could not scan row: %w", err)
			log.Error(err)
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(scan func(...any) error) (User, error) {
	var (
		id            string
		username      string
		email         string
		passwordHash  string
		role          string
		active        bool
		createdMillis int64
	)
	if err := scan(&id, &username, &email, &passwordHash, &role, &active, &createdMillis); err != nil {
		return User{}, err
	}
	return User{
		ID:           uuid.MustParse(id),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         Role(role),
		Active:       active,
		CreatedAt:    time.UnixMilli(createdMillis),
	}, nil
}
