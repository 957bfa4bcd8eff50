package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/irefuse3585/event-manager-api/internal/utils"
	log "github.com/sirupsen/logrus"
)

// GrantSource answers who currently holds access to an event. The hub
// resolves the audience on every publish, so a revoked user stops receiving
// messages the moment the revocation is stored.
type GrantSource interface {
	ListUserIDsByEvent(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error)
}

// Hub owns every live session and fans change messages out to them.
// Session state is in-memory only; a reconnecting client starts over with
// a fresh session and re-fetches whatever it missed.
type Hub struct {
	grants GrantSource
	clock  utils.Clock
	buffer int

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	byUser   map[uuid.UUID]map[uuid.UUID]*Session
	closed   bool
}

func NewHub(grants GrantSource, sessionBuffer int, clock utils.Clock) *Hub {
	if sessionBuffer < 1 {
		sessionBuffer = 1
	}
	return &Hub{
		grants:   grants,
		clock:    clock,
		buffer:   sessionBuffer,
		sessions: map[uuid.UUID]*Session{},
		byUser:   map[uuid.UUID]map[uuid.UUID]*Session{},
	}
}

// NewSession creates an unauthenticated session around the given transport.
// The gateway authenticates it and hands it back through Subscribe.
func (h *Hub) NewSession(transport Transport) *Session {
	return &Session{
		id:        uuid.New(),
		transport: transport,
		clock:     h.clock,
		state:     StateConnecting,
		outbound:  make(chan Message, h.buffer),
		done:      make(chan struct{}),
	}
}

// Subscribe registers an authenticated session for fanout and starts its
// delivery goroutine.
func (h *Hub) Subscribe(session *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("notification hub is shut down")
	}
	if err := session.markSubscribed(); err != nil {
		return err
	}
	session.setOnClose(h.remove)

	h.sessions[session.id] = session
	userSessions, ok := h.byUser[session.UserID()]
	if !ok {
		userSessions = map[uuid.UUID]*Session{}
		h.byUser[session.UserID()] = userSessions
	}
	userSessions[session.id] = session

	go session.run()
	log.Debugf("session %s subscribed for user %s", session.id, session.UserID())
	return nil
}

// Unsubscribe closes the session and forgets it. Safe to call for sessions
// that already closed themselves.
func (h *Hub) Unsubscribe(session *Session) {
	session.Close()
}

// Publish enqueues the message on every subscribed session whose user holds
// a grant on the message's event at this moment. It returns once messages
// are queued, never waiting on delivery; failures affect only the session
// they happen on.
func (h *Hub) Publish(ctx context.Context, msg Message) {
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = h.clock.Now()
	}

	audience, err := h.grants.ListUserIDsByEvent(ctx, msg.EventID)
	if err != nil {
		log.Warnf("could not resolve audience for event %s: %v", msg.EventID, err)
		return
	}

	h.mu.RLock()
	recipients := make([]*Session, 0, len(audience))
	for _, userID := range audience {
		for _, session := range h.byUser[userID] {
			recipients = append(recipients, session)
		}
	}
	h.mu.RUnlock()

	for _, session := range recipients {
		session.Enqueue(msg)
	}
}

// Close tears down every session. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for _, session := range h.sessions {
		sessions = append(sessions, session)
	}
	h.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}

func (h *Hub) remove(session *Session) {
	userID := session.UserID()

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, session.id)
	userSessions := h.byUser[userID]
	delete(userSessions, session.id)
	if len(userSessions) == 0 {
		delete(h.byUser, userID)
	}
}
