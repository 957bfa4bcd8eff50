// Package audit turns domain events from the bus into structured audit log
// entries. It is the only subscriber side of the bus; publishers never know
// it exists.
package audit

import (
	"github.com/irefuse3585/event-manager-api/internal/event_bus"
	log "github.com/sirupsen/logrus"
)

type Recorder struct {
	logger *log.Logger
	unsubs []func()
}

// NewRecorder registers audit handlers on the bus. Pass nil to use the
// standard logger.
func NewRecorder(bus *event_bus.EventBus, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.StandardLogger()
	}
	r := &Recorder{logger: logger}

	r.unsubs = append(r.unsubs,
		event_bus.SubscribeTyped(bus, event_bus.TypeEventCreated, func(e event_bus.EventT[event_bus.EventCreated]) error {
			r.entry(log.Fields{
				"eventId": e.Data.EventID,
				"userId":  e.Data.OwnerID,
				"version": e.Data.Version,
				"title":   e.Data.Title,
			}).Info("event created")
			return nil
		}),
		event_bus.SubscribeTyped(bus, event_bus.TypeEventUpdated, func(e event_bus.EventT[event_bus.EventUpdated]) error {
			r.entry(log.Fields{
				"eventId": e.Data.EventID,
				"userId":  e.Data.ActorID,
				"version": e.Data.Version,
			}).Info("event updated")
			return nil
		}),
		event_bus.SubscribeTyped(bus, event_bus.TypeEventDeleted, func(e event_bus.EventT[event_bus.EventDeleted]) error {
			r.entry(log.Fields{
				"eventId": e.Data.EventID,
				"userId":  e.Data.ActorID,
			}).Info("event deleted")
			return nil
		}),
		event_bus.SubscribeTyped(bus, event_bus.TypeEventRolledBack, func(e event_bus.EventT[event_bus.EventRolledBack]) error {
			r.entry(log.Fields{
				"eventId":       e.Data.EventID,
				"userId":        e.Data.ActorID,
				"targetVersion": e.Data.TargetVersion,
				"newVersion":    e.Data.NewVersion,
			}).Info("event rolled back")
			return nil
		}),
		event_bus.SubscribeTyped(bus, event_bus.TypeEventShared, func(e event_bus.EventT[event_bus.EventShared]) error {
			r.entry(log.Fields{
				"eventId":  e.Data.EventID,
				"userId":   e.Data.ActorID,
				"targetId": e.Data.UserID,
				"role":     e.Data.Role,
			}).Info("event shared")
			return nil
		}),
		event_bus.SubscribeTyped(bus, event_bus.TypePermissionUpdated, func(e event_bus.EventT[event_bus.PermissionUpdated]) error {
			r.entry(log.Fields{
				"eventId":  e.Data.EventID,
				"userId":   e.Data.ActorID,
				"targetId": e.Data.UserID,
				"role":     e.Data.Role,
			}).Info("permission updated")
			return nil
		}),
		event_bus.SubscribeTyped(bus, event_bus.TypePermissionRevoked, func(e event_bus.EventT[event_bus.PermissionRevoked]) error {
			r.entry(log.Fields{
				"eventId":  e.Data.EventID,
				"userId":   e.Data.ActorID,
				"targetId": e.Data.UserID,
			}).Info("permission revoked")
			return nil
		}),
		event_bus.SubscribeTyped(bus, event_bus.TypeUserRegistered, func(e event_bus.EventT[event_bus.UserRegistered]) error {
			r.entry(log.Fields{
				"userId":   e.Data.UserID,
				"username": e.Data.Username,
			}).Info("user registered")
			return nil
		}),
		event_bus.SubscribeTyped(bus, event_bus.TypeUserLoggedIn, func(e event_bus.EventT[event_bus.UserLoggedIn]) error {
			r.entry(log.Fields{
				"userId":   e.Data.UserID,
				"username": e.Data.Username,
			}).Info("user logged in")
			return nil
		}),
		event_bus.SubscribeTyped(bus, event_bus.TypeTokenRefreshed, func(e event_bus.EventT[event_bus.TokenRefreshed]) error {
			r.entry(log.Fields{
				"userId": e.Data.UserID,
			}).Info("token refreshed")
			return nil
		}),
	)
	return r
}

func (r *Recorder) entry(fields log.Fields) *log.Entry {
	fields["channel"] = "audit"
	return r.logger.WithFields(fields)
}

// Close removes all bus subscriptions.
func (r *Recorder) Close() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}
