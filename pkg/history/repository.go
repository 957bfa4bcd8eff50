package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrVersionNotFound = errors.New("event version not found")
	ErrVersionExists   = errors.New("event version already exists")
)

type Repository interface {
	Append(ctx context.Context, version Version) error
	Get(ctx context.Context, eventID uuid.UUID, number int) (Version, error)
	List(ctx context.Context, eventID uuid.UUID) ([]Version, error)
	Latest(ctx context.Context, eventID uuid.UUID) (Version, error)
}

type RepositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) Append(ctx context.Context, version Version) error {
	query := `INSERT INTO event_versions (
                            event_id,
                            version,
                            kind,
                            snapshot,
                            author_id,
                            created_at
                        ) VALUES (?, ?, ?, ?, ?, ?)`

	snapshot, err := json.Marshal(version.Snapshot)
	if err != nil {
		err := fmt.Errorf("could not marshal snapshot: %w", err)
		log.Error(err)
		return err
	}

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not prepare query: %v", err)
		log.Error(err)
		return err
	}
	defer stmt.Close()

	var authorID any
	if version.AuthorID != uuid.Nil {
		authorID = version.AuthorID.String()
	}

	_, err = stmt.ExecContext(ctx,
		version.EventID.String(),
		version.Number,
		string(version.Kind),
		string(snapshot),
		authorID,
		version.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrVersionExists
		}
		err := fmt.Errorf("could not execute query: %v", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) Get(ctx context.Context, eventID uuid.UUID, number int) (Version, error) {
	query := `SELECT event_id, version, kind, snapshot, author_id, created_at
              FROM event_versions
              WHERE event_id = ? AND version = ?`

	row := r.db.QueryRowContext(ctx, query, eventID.String(), number)
	version, err := scanVersion(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, ErrVersionNotFound
	}
	if err != nil {
		err := fmt.Errorf("could not read event version: %w", err)
		log.Error(err)
		return Version{}, err
	}
	return version, nil
}

func (r *RepositoryImpl) List(ctx context.Context, eventID uuid.UUID) ([]Version, error) {
	query := `SELECT event_id, version, kind, snapshot, author_id, created_at
              FROM event_versions
              WHERE event_id = ?
              ORDER BY version`

	rows, err := r.db.QueryContext(ctx, query, eventID.String())
	if err != nil {
		err := fmt.Errorf("could not query event versions: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	versions := make([]Version, 0, 10)
	for rows.Next() {
		version, err := scanVersion(rows.Scan)
		if err != nil {
			err := fmt.Errorf("could not scan row: %w", err)
			log.Error(err)
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func (r *RepositoryImpl) Latest(ctx context.Context, eventID uuid.UUID) (Version, error) {
	query := `SELECT event_id, version, kind, snapshot, author_id, created_at
              FROM event_versions
              WHERE event_id = ?
              ORDER BY version DESC
              LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, eventID.String())
	version, err := scanVersion(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, ErrVersionNotFound
	}
	if err != nil {
		err := fmt.Errorf("could not read latest event version: %w", err)
		log.Error(err)
		return Version{}, err
	}
	return version, nil
}

func scanVersion(scan func(...any) error) (Version, error) {
	var (
		eventID       string
		number        int
		kind          string
		snapshotJSON  string
		authorID      sql.NullString
		createdMillis int64
	)
	if err := scan(&eventID, &number, &kind, &snapshotJSON, &authorID, &createdMillis); err != nil {
		return Version{}, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(snapshotJSON), &snapshot); err != nil {
		return Version{}, fmt.Errorf("could not unmarshal snapshot: %w", err)
	}

	version := Version{
		EventID:   uuid.MustParse(eventID),
		Number:    number,
		Kind:      ChangeKind(kind),
		Snapshot:  snapshot,
		CreatedAt: time.UnixMilli(createdMillis),
	}
	if authorID.Valid {
		version.AuthorID = uuid.MustParse(authorID.String)
	}
	return version, nil
}
