package google

import (
	"context"
	"fmt"
	"time"

	"github.com/irefuse3585/event-manager-api/pkg/event"
	"github.com/irefuse3585/event-manager-api/pkg/schedule"
	log "github.com/sirupsen/logrus"
	gcal "google.golang.org/api/calendar/v3"
)

var ErrUnauthenticated = fmt.Errorf("user is unauthenticated, authentication is required")

// Calendar is one Google calendar of one authenticated user.
type Calendar struct {
	service    *gcal.Service
	calendarId string
}

func newGoogleCalendar(service *gcal.Service, calendarId string) *Calendar {
	return &Calendar{service: service, calendarId: calendarId}
}

// ExportEvent inserts one Google calendar entry per interval the event
// occupies inside the half-open window [from, to). For a recurring event
// that is the stored occurrence set; one-off events contribute their base
// interval. Returns the number of entries created.
func (c *Calendar) ExportEvent(ctx context.Context, ev event.Event, from, to time.Time) (int, error) {
	exported := 0
	for _, interval := range ev.Snapshot.Intervals() {
		if !interval.Overlaps(schedule.Interval{Start: from, End: to}) {
			continue
		}
		entry := &gcal.Event{
			Summary:     ev.Snapshot.Title,
			Description: ev.Snapshot.Description,
			Location:    ev.Snapshot.Location,
			Start: &gcal.EventDateTime{
				DateTime: interval.Start.Format(time.RFC3339),
			},
			End: &gcal.EventDateTime{
				DateTime: interval.End.Format(time.RFC3339),
			},
		}
		if _, err := c.service.Events.Insert(c.calendarId, entry).Context(ctx).Do(); err != nil {
			err := fmt.Errorf("unable to insert event in Google Calendar: %v", err)
			log.Error(err)
			return exported, err
		}
		exported++
	}
	return exported, nil
}
