package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/irefuse3585/event-manager-api/internal/config"
	"github.com/irefuse3585/event-manager-api/internal/rest"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, cfg config.Application) {

	// Auth
	r.HandleFunc("/api/auth/register", deps.UserHandler.Register).Methods("POST")
	r.HandleFunc("/api/auth/login", deps.UserHandler.Login).Methods("POST")
	r.HandleFunc("/api/auth/refresh", deps.UserHandler.Refresh).Methods("POST")
	r.HandleFunc("/api/auth/logout", deps.UserHandler.Logout).Methods("POST")

	// Users
	r.HandleFunc("/api/users/me", deps.UserHandler.CurrentUser).Methods("GET")
	r.HandleFunc("/api/admin/users", deps.UserHandler.GetAllUsers).Methods("GET")

	// Events
	r.HandleFunc("/api/events", deps.EventHandler.CreateEvent).Methods("POST")
	r.HandleFunc("/api/events/batch", deps.EventHandler.CreateBatch).Methods("POST")
	r.HandleFunc("/api/events", deps.EventHandler.ListEvents).Methods("GET")
	r.HandleFunc("/api/events/{eventId}", deps.EventHandler.GetEvent).Methods("GET")
	r.HandleFunc("/api/events/{eventId}", deps.EventHandler.UpdateEvent).Methods("PUT")
	r.HandleFunc("/api/events/{eventId}", deps.EventHandler.DeleteEvent).Methods("DELETE")

	// Sharing and permissions
	r.HandleFunc("/api/events/{eventId}/share", deps.EventHandler.ShareEvent).Methods("POST")
	r.HandleFunc("/api/events/{eventId}/permissions", deps.EventHandler.ListPermissions).Methods("GET")
	r.HandleFunc("/api/events/{eventId}/permissions/{userId}", deps.EventHandler.UpdatePermission).Methods("PUT")
	r.HandleFunc("/api/events/{eventId}/permissions/{userId}", deps.EventHandler.RevokePermission).Methods("DELETE")

	// Version history
	r.HandleFunc("/api/events/{eventId}/history", deps.EventHandler.GetHistory).Methods("GET")
	r.HandleFunc("/api/events/{eventId}/history/{version}", deps.EventHandler.GetVersion).Methods("GET")
	r.HandleFunc("/api/events/{eventId}/rollback/{version}", deps.EventHandler.RollbackEvent).Methods("POST")
	r.HandleFunc("/api/events/{eventId}/diff/{v1}/{v2}", deps.EventHandler.DiffVersions).Methods("GET")

	// Live notifications
	r.HandleFunc("/api/ws/notifications", deps.NotificationHandler.Notifications).Methods("GET")

	// Google integration
	r.HandleFunc("/api/integrations/google/auth/login", deps.GoogleAuth.OAuthLogin).Methods("GET")
	r.HandleFunc("/api/integrations/google/auth/callback", deps.GoogleAuth.OAuthCallback).Methods("GET")
	r.HandleFunc("/api/integrations/google/auth/logout", deps.GoogleAuth.OAuthLogout).Methods("POST")
	r.HandleFunc("/api/integrations/google/calendars", deps.GoogleHandler.ListCalendars).Methods("GET")
	r.HandleFunc("/api/integrations/google/export", deps.GoogleHandler.Export).Methods("POST")

	// Health
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		rest.Respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
}
