package app

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/irefuse3585/event-manager-api/internal/config"
	"github.com/irefuse3585/event-manager-api/internal/database"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

// Application wires configuration, database, router, and server lifecycle.
type Application struct {
	cfg    config.Application
	db     *sql.DB
	deps   *Dependencies
	router *mux.Router
	srv    *http.Server
	cron   *cron.Cron
}

// NewApplication constructs the full HTTP application, ready to Run().
func NewApplication() (*Application, error) {
	cfg, err := config.Load("./config/application.yaml")
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	r := mux.NewRouter()
	deps := BuildDependencies(db, cfg)
	SetupMiddleware(r, deps, cfg)
	RegisterRoutes(r, deps, cfg)

	// Expired refresh-token allowlist rows pile up silently; sweep hourly.
	c := cron.New()
	_, err = c.AddFunc("@hourly", func() {
		removed, err := deps.RefreshStore.DeleteExpired(context.Background(), deps.Clock.Now())
		if err != nil {
			log.Errorf("failed to purge expired refresh tokens: %v", err)
			return
		}
		if removed > 0 {
			log.Infof("purged %d expired refresh tokens", removed)
		}
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	srv := &http.Server{
		Handler:      r,
		Addr:         cfg.Server.Addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{cfg: cfg, db: db, deps: deps, router: r, srv: srv, cron: c}, nil
}

// Run starts the HTTP server and blocks until SIGINT or SIGTERM, then shuts
// down in order: stop accepting requests, close live websocket sessions,
// stop the cron jobs, close the database.
func (a *Application) Run() error {
	a.cron.Start()

	errs := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errs:
		return err
	case sig := <-stop:
		log.Infof("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		log.Errorf("server shutdown: %v", err)
	}

	a.deps.Hub.Close()
	<-a.cron.Stop().Done()

	if err := a.db.Close(); err != nil {
		log.Errorf("database close: %v", err)
	}
	return nil
}
