package notification

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/irefuse3585/event-manager-api/internal/utils"
	log "github.com/sirupsen/logrus"
)

type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateSubscribed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport writes messages to one connected client. Implementations belong
// to the gateway; the hub never opens or closes network connections itself.
type Transport interface {
	Send(msg Message) error
}

// Session is one live client connection. Messages pass through a bounded
// outbound channel drained by a dedicated delivery goroutine, so a slow
// client never blocks a publisher or another session.
//
// Lifecycle: connecting → authenticated → subscribed → closed. Closed is
// terminal; a reconnecting client gets a fresh session.
type Session struct {
	id        uuid.UUID
	transport Transport
	clock     utils.Clock

	mu           sync.Mutex
	state        State
	userID       uuid.UUID
	resyncQueued bool
	onClose      func(*Session)

	outbound  chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) UserID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authenticate binds the session to a verified user identity.
func (s *Session) Authenticate(userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return fmt.Errorf("cannot authenticate a %s session", s.state)
	}
	s.userID = userID
	s.state = StateAuthenticated
	return nil
}

func (s *Session) markSubscribed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return fmt.Errorf("cannot subscribe a %s session", s.state)
	}
	s.state = StateSubscribed
	return nil
}

func (s *Session) setOnClose(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

// Enqueue offers a message to the session without ever blocking. When the
// outbound channel is full, the oldest undelivered message is dropped in
// favour of a single resync marker; further messages are discarded until
// the channel drains, because the pending marker already obliges the client
// to re-fetch state. Reports whether the message itself was queued.
func (s *Session) Enqueue(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSubscribed {
		return false
	}

	select {
	case s.outbound <- msg:
		return true
	default:
	}

	if s.resyncQueued {
		return false
	}

	// Drop the oldest message to make room for the marker. The delivery
	// goroutine only ever removes messages, so after one receive the send
	// below cannot block.
	select {
	case dropped := <-s.outbound:
		if dropped.Kind == KindResync {
			s.resyncQueued = false
		}
	default:
	}
	select {
	case s.outbound <- resyncMarker(s.clock.Now()):
		s.resyncQueued = true
	default:
	}
	log.Warnf("session %s overflowed, replaced backlog with resync marker", s.id)
	return false
}

// run delivers queued messages until the session closes. A failed write is
// unrecoverable: the session closes and the client must reconnect.
func (s *Session) run() {
	for {
		select {
		case msg := <-s.outbound:
			if msg.Kind == KindResync {
				s.mu.Lock()
				s.resyncQueued = false
				s.mu.Unlock()
			}
			if err := s.transport.Send(msg); err != nil {
				log.Warnf("delivery to session %s failed, closing: %v", s.id, err)
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// Close moves the session to its terminal state and stops delivery. Safe to
// call from any goroutine, any number of times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		onClose := s.onClose
		s.mu.Unlock()

		close(s.done)
		if onClose != nil {
			onClose(s)
		}
	})
}
