package notification

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/irefuse3585/event-manager-api/internal/apierr"
	"github.com/irefuse3585/event-manager-api/internal/auth"
	"github.com/irefuse3585/event-manager-api/internal/rest"
	log "github.com/sirupsen/logrus"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsTransport adapts one gorilla connection to the hub's Transport. Only
// the session's delivery goroutine writes, which keeps the single-writer
// rule the library requires.
type wsTransport struct {
	conn *websocket.Conn
}

func (t wsTransport) Send(msg Message) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteJSON(msg)
}

type Handler struct {
	hub    *Hub
	tokens *auth.TokenManager
}

func NewHandler(hub *Hub, tokens *auth.TokenManager) *Handler {
	return &Handler{hub: hub, tokens: tokens}
}

// Notifications upgrades the request to a websocket and keeps the session
// registered until the client goes away. Browsers cannot set headers on
// websocket requests, so the access token is also accepted as a query
// parameter.
func (handler *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	claims, err := handler.tokens.VerifyAccessToken(token)
	if err != nil {
		rest.RespondError(w, r, apierr.Unauthorized("invalid or missing access token"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session := handler.hub.NewSession(wsTransport{conn: conn})
	if err := session.Authenticate(claims.UserID); err != nil {
		log.Error(err)
		return
	}
	if err := handler.hub.Subscribe(session); err != nil {
		log.Error(err)
		return
	}
	defer handler.hub.Unsubscribe(session)
	log.Infof("websocket connected: user=%s session=%s", claims.UserID, session.ID())

	// The read loop only detects disconnects; clients send nothing the
	// server acts on.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Infof("websocket disconnected: user=%s session=%s", claims.UserID, session.ID())
			return
		}
	}
}
