package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/irefuse3585/event-manager-api/pkg/history"
	"github.com/irefuse3585/event-manager-api/pkg/schedule"
	log "github.com/sirupsen/logrus"
)

var ErrEventNotFound = errors.New("event not found")

type Repo interface {
	Insert(ctx context.Context, event Event) error
	Get(ctx context.Context, id uuid.UUID) (Event, error)
	ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]Event, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Event, error)
	ListByOwnerBetween(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]Event, error)
	UpdateSnapshot(ctx context.Context, event Event) error
	MarkDeleted(ctx context.Context, id uuid.UUID, at time.Time) error
	IsTombstoned(ctx context.Context, id uuid.UUID) (bool, error)
}

const eventColumns = `id, owner_id, title, description, location, start_time, end_time,
                      is_recurring, recurrence_rule, occurrences, current_version, deleted,
                      created_at, updated_at`

type EventRepoImpl struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepoImpl {
	return &EventRepoImpl{db: db}
}

func (r *EventRepoImpl) Insert(ctx context.Context, event Event) error {
	query := `INSERT INTO events (
                            id,
                            owner_id,
                            title,
                            description,
                            location,
                            start_time,
                            end_time,
                            is_recurring,
                            recurrence_rule,
                            occurrences,
                            current_version,
                            deleted,
                            created_at,
                            updated_at
                        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	occurrences, err := marshalOccurrences(event.Snapshot.Occurrences)
	if err != nil {
		return err
	}

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not prepare query: %v", err)
		log.Error(err)
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		event.ID.String(),
		event.OwnerID.String(),
		event.Snapshot.Title,
		event.Snapshot.Description,
		event.Snapshot.Location,
		event.Snapshot.StartTime.UnixMilli(),
		event.Snapshot.EndTime.UnixMilli(),
		event.Snapshot.IsRecurring,
		event.Snapshot.RecurrenceRule,
		occurrences,
		event.Version,
		event.Deleted,
		event.CreatedAt.UnixMilli(),
		event.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		err := fmt.Errorf("could not execute query: %v", err)
		log.Error(err)
		return err
	}
	return nil
}

// Get returns the event row whether or not it is tombstoned; callers decide
// how a tombstone is surfaced.
func (r *EventRepoImpl) Get(ctx context.Context, id uuid.UUID) (Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id.String())
	event, err := scanEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	if err != nil {
		err := fmt.Errorf("could not read event: %w", err)
		log.Error(err)
		return Event{}, err
	}
	return event, nil
}

// ListByUser returns the live events the user holds any grant on, newest
// first.
func (r *EventRepoImpl) ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
              WHERE deleted = 0
                AND id IN (SELECT event_id FROM permissions WHERE user_id = ?)
              ORDER BY created_at DESC, id
              LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, userID.String(), limit, offset)
	if err != nil {
		err := fmt.Errorf("could not query events: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListByOwner returns the owner's live events, the set conflict detection
// scans.
func (r *EventRepoImpl) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
              WHERE owner_id = ? AND deleted = 0
              ORDER BY start_time, id`

	rows, err := r.db.QueryContext(ctx, query, ownerID.String())
	if err != nil {
		err := fmt.Errorf("could not query events by owner: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListByOwnerBetween returns the owner's live events whose base interval
// intersects the half-open window [from, to).
func (r *EventRepoImpl) ListByOwnerBetween(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
              WHERE owner_id = ? AND deleted = 0
                AND start_time < ? AND end_time > ?
              ORDER BY start_time, id`

	rows, err := r.db.QueryContext(ctx, query, ownerID.String(), to.UnixMilli(), from.UnixMilli())
	if err != nil {
		err := fmt.Errorf("could not query events in window: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// UpdateSnapshot stores the event's new current state and version number.
func (r *EventRepoImpl) UpdateSnapshot(ctx context.Context, event Event) error {
	query := `UPDATE events SET
                  title = ?,
                  description = ?,
                  location = ?,
                  start_time = ?,
                  end_time = ?,
                  is_recurring = ?,
                  recurrence_rule = ?,
                  occurrences = ?,
                  current_version = ?,
                  updated_at = ?
              WHERE id = ? AND deleted = 0`

	occurrences, err := marshalOccurrences(event.Snapshot.Occurrences)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query,
		event.Snapshot.Title,
		event.Snapshot.Description,
		event.Snapshot.Location,
		event.Snapshot.StartTime.UnixMilli(),
		event.Snapshot.EndTime.UnixMilli(),
		event.Snapshot.IsRecurring,
		event.Snapshot.RecurrenceRule,
		occurrences,
		event.Version,
		event.UpdatedAt.UnixMilli(),
		event.ID.String(),
	)
	if err != nil {
		err := fmt.Errorf("could not update event: %v", err)
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
		return ErrEventNotFound
	}
	return nil
}

// MarkDeleted tombstones the event. The row, its history and its grants all
// stay in place.
func (r *EventRepoImpl) MarkDeleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE events SET deleted = 1, updated_at = ? WHERE id = ? AND deleted = 0`

	result, err := r.db.ExecContext(ctx, query, at.UnixMilli(), id.String())
	if err != nil {
		err := fmt.Errorf("could not delete event: %v", err)
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
		return ErrEventNotFound
	}
	return nil
}

// IsTombstoned satisfies the version log's tombstone check.
func (r *EventRepoImpl) IsTombstoned(ctx context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := r.db.QueryRowContext(ctx, "SELECT deleted FROM events WHERE id = ?", id.String()).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrEventNotFound
	}
	if err != nil {
		err := fmt.Errorf("could not read event state: %w", err)
		log.Error(err)
		return false, err
	}
	return deleted, nil
}

func collectEvents(rows *sql.Rows) ([]Event, error) {
	events := make([]Event, 0, 10)
	for rows.Next() {
		event, err := scanEvent(rows.Scan)
		if err != nil {
			err := fmt.Errorf("could not scan row: %w", err)
			log.Error(err)
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(scan func(...any) error) (Event, error) {
	var (
		id              string
		ownerID         string
		title           string
		description     string
		location        string
		startMillis     int64
		endMillis       int64
		isRecurring     bool
		recurrenceRule  string
		occurrencesJSON string
		version         int
		deleted         bool
		createdMillis   int64
		updatedMillis   int64
	)
	err := scan(&id, &ownerID, &title, &description, &location, &startMillis, &endMillis,
		&isRecurring, &recurrenceRule, &occurrencesJSON, &version, &deleted,
		&createdMillis, &updatedMillis)
	if err != nil {
		return Event{}, err
	}

	var occurrences []schedule.Interval
	if err := json.Unmarshal([]byte(occurrencesJSON), &occurrences); err != nil {
		return Event{}, fmt.Errorf("could not unmarshal occurrences: %w", err)
	}

	return Event{
		ID:      uuid.MustParse(id),
		OwnerID: uuid.MustParse(ownerID),
		Version: version,
		Deleted: deleted,
		Snapshot: history.Snapshot{
			Title:          title,
			Description:    description,
			Location:       location,
			StartTime:      time.UnixMilli(startMillis).UTC(),
			EndTime:        time.UnixMilli(endMillis).UTC(),
			IsRecurring:    isRecurring,
			RecurrenceRule: recurrenceRule,
			Occurrences:    occurrences,
		},
		CreatedAt: time.UnixMilli(createdMillis).UTC(),
		UpdatedAt: time.UnixMilli(updatedMillis).UTC(),
	}, nil
}

func marshalOccurrences(occurrences []schedule.Interval) (string, error) {
	if occurrences == nil {
		occurrences = []schedule.Interval{}
	}
	data, err := json.Marshal(occurrences)
	if err != nil {
		err := fmt.Errorf("could not marshal occurrences: %w", err)
		log.Error(err)
		return "", err
	}
	return string(data), nil
}
