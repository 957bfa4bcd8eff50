package permission

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
	ErrGrantNotFound = errors.New("permission grant not found")
	ErrGrantExists   = errors.New("permission grant already exists")
)

type Repository interface {
	Insert(ctx context.Context, grant Grant) error
	UpdateRole(ctx context.Context, eventID, userID uuid.UUID, role Role, updatedAt time.Time) error
	Delete(ctx context.Context, eventID, userID uuid.UUID) error
	Get(ctx context.Context, eventID, userID uuid.UUID) (Grant, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]Grant, error)
	ListUserIDsByEvent(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error)
}

type RepositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) Insert(ctx context.Context, grant Grant) error {
	query := `INSERT INTO permissions (
                            id,
                            event_id,
                            user_id,
                            role,
                            granted_by,
                            created_at,
                            updated_at
                        ) VALUES (?, ?, ?, ?, ?, ?, ?)`

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not prepare query: %v", err)
		log.Error(err)
		return err
	}
	defer stmt.Close()

	var grantedBy any
	if grant.GrantedBy != uuid.Nil {
		grantedBy = grant.GrantedBy.String()
	}

	_, err = stmt.ExecContext(ctx,
		grant.ID.String(),
		grant.EventID.String(),
		grant.UserID.String(),
		grant.Role.String(),
		grantedBy,
		grant.CreatedAt.UnixMilli(),
		grant.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrGrantExists
		}
		err := fmt.Errorf("could not execute query: %v", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) UpdateRole(ctx context.Context, eventID, userID uuid.UUID, role Role, updatedAt time.Time) error {
	query := `UPDATE permissions SET role = ?, updated_at = ? WHERE event_id = ? AND user_id = ?`

	result, err := r.db.ExecContext(ctx, query, role.String(), updatedAt.UnixMilli(), eventID.String(), userID.String())
	if err != nil {
		err := fmt.Errorf("could not update permission: %v", err)
		log.Error(err)
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		err := fmt.Errorf("could not read affected rows: %v", err)
		log.Error(err)
		return err
	}
	if affected == 0 {
		return ErrGrantNotFound
	}
	return nil
}

func (r *RepositoryImpl) Delete(ctx context.Context, eventID, userID uuid.UUID) error {
	query := `DELETE FROM permissions WHERE event_id = ? AND user_id = ?`

	result, err := r.db.ExecContext(ctx, query, eventID.String(), userID.String())
	if err != nil {
		err := fmt.Errorf("could not delete permission: %v", err)
		log.Error(err)
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		err := fmt.Errorf("could not read affected rows: %v", err)
		log.Error(err)
		return err
	}
	if affected == 0 {
		return ErrGrantNotFound
	}
	return nil
}

func (r *RepositoryImpl) Get(ctx context.Context, eventID, userID uuid.UUID) (Grant, error) {
	query := `SELECT id, event_id, user_id, role, granted_by, created_at, updated_at
              FROM permissions
              WHERE event_id = ? AND user_id = ?`

	row := r.db.QueryRowContext(ctx, query, eventID.String(), userID.String())
	grant, err := scanGrant(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Grant{}, ErrGrantNotFound
	}
	if err != nil {
		err := fmt.Errorf("could not read permission: %w", err)
		log.Error(err)
		return Grant{}, err
	}
	return grant, nil
}

func (r *RepositoryImpl) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]Grant, error) {
	query := `SELECT id, event_id, user_id, role, granted_by, created_at, updated_at
              FROM permissions
              WHERE event_id = ?
              ORDER BY created_at, user_id`

	rows, err := r.db.QueryContext(ctx, query, eventID.String())
	if err != nil {
		err := fmt.Errorf("could not query permissions: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	grants := make([]Grant, 0, 4)
	for rows.Next() {
		grant, err := scanGrant(rows.Scan)
		if err != nil {
			err := fmt.Errorf("could not scan row: %w", err)
			log.Error(err)
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

func (r *RepositoryImpl) ListUserIDsByEvent(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT user_id FROM permissions WHERE event_id = ?`

	rows, err := r.db.QueryContext(ctx, query, eventID.String())
	if err != nil {
		err := fmt.Errorf("could not query permission holders: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	userIDs := make([]uuid.UUID, 0, 4)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			err := fmt.Errorf("could not scan row: %w", err)
			log.Error(err)
			return nil, err
		}
		userIDs = append(userIDs, uuid.MustParse(raw))
	}
	return userIDs, rows.Err()
}

func scanGrant(scan func(...any) error) (Grant, error) {
	var (
		id            string
		eventID       string
		userID        string
		roleName      string
		grantedBy     sql.NullString
		createdMillis int64
		updatedMillis int64
	)
	if err := scan(&id, &eventID, &userID, &roleName, &grantedBy, &createdMillis, &updatedMillis); err != nil {
		return Grant{}, err
	}

	role, err := ParseRole(roleName)
	if err != nil {
		return Grant{}, err
	}

	grant := Grant{
		ID:        uuid.MustParse(id),
		EventID:   uuid.MustParse(eventID),
		UserID:    uuid.MustParse(userID),
		Role:      role,
		CreatedAt: time.UnixMilli(createdMillis),
		UpdatedAt: time.UnixMilli(updatedMillis),
	}
	if grantedBy.Valid {
		grant.GrantedBy = uuid.MustParse(grantedBy.String)
	}
	return grant, nil
}
