package app

import (
	"database/sql"

	"github.com/irefuse3585/event-manager-api/internal/audit"
	"github.com/irefuse3585/event-manager-api/internal/auth"
	"github.com/irefuse3585/event-manager-api/internal/config"
	"github.com/irefuse3585/event-manager-api/internal/event_bus"
	"github.com/irefuse3585/event-manager-api/internal/utils"
	"github.com/irefuse3585/event-manager-api/pkg/event"
	"github.com/irefuse3585/event-manager-api/pkg/google"
	"github.com/irefuse3585/event-manager-api/pkg/history"
	"github.com/irefuse3585/event-manager-api/pkg/notification"
	"github.com/irefuse3585/event-manager-api/pkg/permission"
	"github.com/irefuse3585/event-manager-api/pkg/user"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock    utils.Clock
	EventBus *event_bus.EventBus
	Audit    *audit.Recorder

	Tokens       *auth.TokenManager
	RefreshStore *auth.RefreshTokenStore

	UserService user.Service
	UserHandler *user.Handler

	PermissionRegistry permission.Registry

	Hub                 *notification.Hub
	NotificationHandler *notification.Handler

	EventRepo    event.Repo
	Versions     history.Service
	Coordinator  event.Coordinator
	EventHandler *event.EventHandler

	GoogleAuth    *google.GoogleAuth
	GoogleService google.Service
	GoogleHandler *google.Handler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *sql.DB, cfg config.Application) *Dependencies {
	deps := &Dependencies{}

	deps.Clock = &utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus()
	deps.Audit = audit.NewRecorder(deps.EventBus, log.StandardLogger())

	deps.Tokens = auth.NewTokenManager(cfg.Auth, deps.Clock)
	deps.RefreshStore = auth.NewRefreshTokenStore(db)

	deps.UserService = user.NewUserService(user.NewUserRepo(db), deps.Clock)
	deps.UserHandler = user.NewHandler(deps.UserService, deps.Tokens, deps.RefreshStore, deps.EventBus, deps.Clock)

	// The hub resolves its audience from stored grants on every publish,
	// and the registry publishes permission changes back through the hub.
	permissionRepo := permission.NewRepository(db)
	deps.Hub = notification.NewHub(permissionRepo, cfg.Notifications.SessionBuffer, deps.Clock)
	deps.NotificationHandler = notification.NewHandler(deps.Hub, deps.Tokens)
	deps.PermissionRegistry = permission.NewRegistry(permissionRepo, deps.Hub, deps.Clock)

	deps.EventRepo = event.NewEventRepo(db)
	deps.Versions = history.NewService(history.NewRepository(db), deps.EventRepo, deps.Clock)
	deps.Coordinator = event.NewCoordinator(deps.EventRepo, deps.Versions, deps.PermissionRegistry, deps.Hub, deps.EventBus, deps.Clock)
	deps.EventHandler = event.NewEventHandler(deps.Coordinator)

	deps.GoogleAuth = google.NewGoogleAuth(db, cfg)
	deps.GoogleService = google.NewService(deps.GoogleAuth, deps.EventRepo)
	deps.GoogleHandler = google.NewHandler(deps.GoogleService)

	return deps
}
