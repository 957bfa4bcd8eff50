// Package google connects a user's account to Google Calendar: the OAuth2
// authorization-code flow, per-user token storage, and export of the user's
// events into a chosen Google calendar.
package google

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/irefuse3585/event-manager-api/internal/apierr"
	"github.com/irefuse3585/event-manager-api/internal/config"
	"github.com/irefuse3585/event-manager-api/internal/rest"
	"github.com/irefuse3585/event-manager-api/pkg/user"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

type googleAuthRedirect struct {
	RedirectUrl string `json:"redirectUrl"`
}

type GoogleAuth struct {
	db          *sql.DB
	oauthConfig *oauth2.Config
}

func NewGoogleAuth(db *sql.DB, cfg config.Application) *GoogleAuth {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.Google.ClientId,
		ClientSecret: cfg.Google.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.Host + "/api/integrations/google/auth/callback",
		Scopes:       []string{calendar.CalendarEventsScope, calendar.CalendarReadonlyScope},
	}

	return &GoogleAuth{db: db, oauthConfig: oauthConfig}
}

// OAuthLogin starts the authorization-code flow: a fresh nonce is stored for
// the user and carried through Google in the state parameter, so the
// callback can tie the token to the user who started the flow.
func (g *GoogleAuth) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	userID, err := user.CurrentId(r.Context())
	if err != nil {
		rest.RespondError(w, r, apierr.Unauthorized("authentication required"))
		return
	}

	if _, err := g.db.Exec("DELETE FROM google_calendar_auth WHERE user_id = ?", userID.String()); err != nil {
		log.Errorf("failed to delete old Google auth row for user %s: %v", userID, err)
		rest.RespondError(w, r, apierr.Wrap(apierr.KindUnavailable, "failed to handle Google authentication", err))
		return
	}

	stateNonce := uuid.New().String()
	finalUrl := r.URL.Query().Get("finalUrl")

	_, err = g.db.Exec("INSERT INTO google_calendar_auth (user_id, nonce) VALUES (?, ?)", userID.String(), stateNonce)
	if err != nil {
		log.Errorf("failed to store Google auth nonce for user %s: %v", userID, err)
		rest.RespondError(w, r, apierr.Wrap(apierr.KindUnavailable, "failed to handle Google authentication", err))
		return
	}

	log.Tracef("redirecting to Google auth URL with nonce: %s", stateNonce)
	u := g.oauthConfig.AuthCodeURL(finalUrl+"|"+stateNonce, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	rest.Respond(w, r, http.StatusOK, googleAuthRedirect{RedirectUrl: u})
}

// OAuthCallback finishes the flow. The nonce from the state parameter picks
// the row created by OAuthLogin; the exchanged token lands there.
func (g *GoogleAuth) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	state := r.FormValue("state")

	parts := strings.SplitN(state, "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		log.Warn("Google auth callback with a malformed state parameter")
		http.Error(w, "malformed state parameter", http.StatusBadRequest)
		return
	}
	finalUrl := parts[0]
	nonce := parts[1]

	token, err := g.oauthConfig.Exchange(r.Context(), code)
	if err != nil {
		log.Errorf("unable to exchange code for token: %v", err)
		http.Redirect(w, r, finalUrl+"?success=false", http.StatusFound)
		return
	}

	result, err := g.db.Exec("UPDATE google_calendar_auth SET access_token = ?, refresh_token = ?, expiry = ? WHERE nonce = ?",
		token.AccessToken, token.RefreshToken, token.Expiry.Unix(), nonce)
	if err != nil {
		log.Errorf("unable to store Google auth token for nonce: %v", err)
		http.Redirect(w, r, finalUrl+"?success=false", http.StatusFound)
		return
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		log.Warnf("Google auth callback with an unknown nonce: %s", nonce)
		http.Redirect(w, r, finalUrl+"?success=false", http.StatusFound)
		return
	}
	log.Debug("successfully stored Google auth token for nonce: ", nonce)
	http.Redirect(w, r, finalUrl+"?success=true", http.StatusFound)
}

func (g *GoogleAuth) OAuthLogout(w http.ResponseWriter, r *http.Request) {
	userID, err := user.CurrentId(r.Context())
	if err != nil {
		rest.RespondError(w, r, apierr.Unauthorized("authentication required"))
		return
	}
	if _, err := g.db.Exec("DELETE FROM google_calendar_auth WHERE user_id = ?", userID.String()); err != nil {
		log.Errorf("failed to delete Google auth row for user %s: %v", userID, err)
		rest.RespondError(w, r, apierr.Wrap(apierr.KindUnavailable, "failed to handle Google authentication", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *GoogleAuth) getToken(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error) {
	var token oauth2.Token
	var expiryTimestamp int64
	err := g.db.QueryRowContext(ctx,
		"SELECT access_token, refresh_token, expiry FROM google_calendar_auth WHERE user_id = ? AND access_token IS NOT NULL",
		userID.String()).
		Scan(&token.AccessToken, &token.RefreshToken, &expiryTimestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Google auth token: %v", err)
	}

	token.Expiry = time.Unix(expiryTimestamp, 0)
	return &token, nil
}

func (g *GoogleAuth) getClient(ctx context.Context, userID uuid.UUID) (*http.Client, error) {
	token, err := g.getToken(ctx, userID)
	if err != nil {
		log.Error(err)
		return nil, err
	}
	if token == nil {
		return nil, nil
	}
	return g.oauthConfig.Client(ctx, token), nil
}
