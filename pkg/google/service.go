package google

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/irefuse3585/event-manager-api/pkg/event"
	"github.com/irefuse3585/event-manager-api/pkg/user"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

type CalendarItem struct {
	ID      string
	Summary string
}

// ExportResult summarizes one export run: how many of the caller's events
// fell into the window and how many calendar entries they produced.
type ExportResult struct {
	Events  int
	Entries int
}

type Service interface {
	ListCalendars(ctx context.Context) ([]CalendarItem, error)
	Export(ctx context.Context, calendarId string, from, to time.Time) (ExportResult, error)
}

type ServiceImpl struct {
	auth   *GoogleAuth
	events event.Repo
}

func NewService(auth *GoogleAuth, events event.Repo) *ServiceImpl {
	return &ServiceImpl{auth: auth, events: events}
}

func (s *ServiceImpl) ListCalendars(ctx context.Context) ([]CalendarItem, error) {
	userID, err := user.CurrentId(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	googleService, err := s.prepareGoogleService(ctx, userID)
	if err != nil {
		return nil, err
	}
	calendars, err := googleService.CalendarList.List().Do()
	if err != nil {
		err := fmt.Errorf("unable to retrieve calendars from Google Calendar: %v", err)
		log.Error(err)
		return nil, err
	}
	var googleCalendars []CalendarItem
	for _, cal := range calendars.Items {
		googleCalendars = append(googleCalendars, CalendarItem{
			ID:      cal.Id,
			Summary: cal.Summary,
		})
	}
	return googleCalendars, nil
}

// Export copies the caller's own live events whose base interval falls into
// the half-open window [from, to) into the chosen Google calendar. A
// recurring event contributes one calendar entry per stored occurrence
// inside the window.
func (s *ServiceImpl) Export(ctx context.Context, calendarId string, from, to time.Time) (ExportResult, error) {
	userID, err := user.CurrentId(ctx)
	if err != nil {
		return ExportResult{}, fmt.Errorf("failed to get current user: %w", err)
	}

	googleService, err := s.prepareGoogleService(ctx, userID)
	if err != nil {
		return ExportResult{}, err
	}
	cal := newGoogleCalendar(googleService, calendarId)

	events, err := s.events.ListByOwnerBetween(ctx, userID, from, to)
	if err != nil {
		return ExportResult{}, err
	}

	result := ExportResult{}
	for _, ev := range events {
		entries, err := cal.ExportEvent(ctx, ev, from, to)
		if err != nil {
			return result, err
		}
		result.Events++
		result.Entries += entries
	}
	log.Debugf("exported %d events (%d entries) for user %s to calendar %s",
		result.Events, result.Entries, userID, calendarId)
	return result, nil
}

func (s *ServiceImpl) prepareGoogleService(ctx context.Context, userID uuid.UUID) (*calendar.Service, error) {
	client, err := s.auth.getClient(ctx, userID)
	if err != nil {
		err := fmt.Errorf("unable to retrieve Google auth client: %v", err)
		log.Error(err)
		return nil, err
	}
	if client == nil {
		log.Debug("user is unauthenticated, authentication is required")
		return nil, ErrUnauthenticated
	}
	service, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		err := fmt.Errorf("unable to retrieve Calendar client: %v", err)
		log.Error(err)
		return nil, err
	}

	return service, nil
}
