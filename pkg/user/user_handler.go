package user

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/irefuse3585/event-manager-api/internal/apierr"
	"github.com/irefuse3585/event-manager-api/internal/auth"
	"github.com/irefuse3585/event-manager-api/internal/event_bus"
	"github.com/irefuse3585/event-manager-api/internal/rest"
	"github.com/irefuse3585/event-manager-api/internal/utils"
	log "github.com/sirupsen/logrus"
)

// refreshCookieName is the httpOnly cookie carrying the refresh JWT. It is
// scoped to the auth endpoints so it never rides along on API calls.
const refreshCookieName = "refresh_token"

const refreshCookiePath = "/api/auth"

type UserDTO struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string  `json:"accessToken"`
	TokenType   string  `json:"tokenType"`
	User        UserDTO `json:"user"`
}

type Handler struct {
	userService  Service
	tokens       *auth.TokenManager
	refreshStore *auth.RefreshTokenStore
	bus          *event_bus.EventBus
	clock        utils.Clock
}

func NewHandler(userService Service, tokens *auth.TokenManager, refreshStore *auth.RefreshTokenStore, bus *event_bus.EventBus, clock utils.Clock) *Handler {
	return &Handler{
		userService:  userService,
		tokens:       tokens,
		refreshStore: refreshStore,
		bus:          bus,
		clock:        clock,
	}
}

// Register godoc
// @Summary Register a new account
// @Description Create a user and open a session for it
// @Tags Auth
// @Accept json
// @Produce json
// @Param registration body RegisterRequest true "Registration"
// @Success 201 {object} TokenResponse
// @Failure 400 {object} rest.ErrorResponse "Invalid registration data"
// @Failure 409 {object} rest.ErrorResponse "Username or email taken"
// @Router /api/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	log.Debug("Registering user")

	var req RegisterRequest
	if err := rest.DecodeBody(r, &req); err != nil {
		rest.RespondError(w, r, err)
		return
	}

	registered, err := h.userService.Register(r.Context(), Registration{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	log.Tracef("Registered user: %s", registered.Username)

	response, err := h.openSession(r.Context(), w, registered)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	h.publish(event_bus.NewEvent(r.Context(), event_bus.TypeUserRegistered, event_bus.UserRegistered{
		UserID:   registered.ID,
		Username: registered.Username,
	}))

	rest.Respond(w, r, http.StatusCreated, response)
}

// Login godoc
// @Summary Log in
// @Description Exchange a username or email and password for tokens
// @Tags Auth
// @Accept json
// @Produce json
// @Param credentials body LoginRequest true "Credentials"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} rest.ErrorResponse "Invalid credentials"
// @Router /api/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	log.Debug("Logging user in")

	var req LoginRequest
	if err := rest.DecodeBody(r, &req); err != nil {
		rest.RespondError(w, r, err)
		return
	}

	authenticated, err := h.userService.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}

	response, err := h.openSession(r.Context(), w, authenticated)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	h.publish(event_bus.NewEvent(r.Context(), event_bus.TypeUserLoggedIn, event_bus.UserLoggedIn{
		UserID:   authenticated.ID,
		Username: authenticated.Username,
	}))

	rest.Respond(w, r, http.StatusOK, response)
}

// Refresh godoc
// @Summary Refresh the session
// @Description Rotate the refresh token and issue a new access token
// @Tags Auth
// @Produce json
// @Success 200 {object} TokenResponse
// @Failure 401 {object} rest.ErrorResponse "Refresh token missing, invalid or revoked"
// @Router /api/auth/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	log.Trace("Refreshing session")

	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		rest.RespondError(w, r, apierr.Unauthorized("refresh token is missing"))
		return
	}
	claims, err := h.tokens.VerifyRefreshToken(cookie.Value)
	if err != nil {
		rest.RespondError(w, r, apierr.Unauthorized("refresh token is invalid or expired"))
		return
	}

	allowed, err := h.refreshStore.Exists(r.Context(), claims.TokenID, h.clock.Now())
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	if !allowed {
		rest.RespondError(w, r, apierr.Unauthorized("refresh token has been revoked"))
		return
	}

	current, err := h.userService.GetUser(r.Context(), claims.UserID)
	if apierr.IsKind(err, apierr.KindNotFound) {
		rest.RespondError(w, r, apierr.Unauthorized("user no longer exists"))
		return
	}
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	if !current.Active {
		rest.RespondError(w, r, apierr.Forbidden("user account is deactivated"))
		return
	}

	if err := h.refreshStore.Delete(r.Context(), claims.TokenID); err != nil && !errors.Is(err, auth.ErrRefreshTokenNotFound) {
		rest.RespondError(w, r, err)
		return
	}

	response, err := h.openSession(r.Context(), w, current)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	h.publish(event_bus.NewEvent(r.Context(), event_bus.TypeTokenRefreshed, event_bus.TokenRefreshed{
		UserID: current.ID,
	}))

	rest.Respond(w, r, http.StatusOK, response)
}

// Logout godoc
// @Summary Log out
// @Description Revoke the refresh token and clear its cookie
// @Tags Auth
// @Success 204 "No Content"
// @Router /api/auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	log.Trace("Logging user out")

	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		if claims, err := h.tokens.VerifyRefreshToken(cookie.Value); err == nil {
			err := h.refreshStore.Delete(r.Context(), claims.TokenID)
			if err != nil && !errors.Is(err, auth.ErrRefreshTokenNotFound) {
				rest.RespondError(w, r, err)
				return
			}
		}
	}

	clearRefreshCookie(w)
	rest.Respond(w, r, http.StatusNoContent, nil)
}

// CurrentUser godoc
// @Summary Get current user
// @Description Retrieve the currently authenticated user's profile
// @Tags User
// @Produce json
// @Success 200 {object} UserDTO
// @Failure 401 {object} rest.ErrorResponse "Not authenticated"
// @Router /api/users/me [get]
// @Security BearerAuth
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	log.Trace("Getting current user")

	currentUser, err := h.userService.GetCurrentUser(r.Context())
	if err != nil {
		if errors.Is(err, ErrNoUser) {
			rest.RespondError(w, r, apierr.Unauthorized("authentication required"))
			return
		}
		rest.RespondError(w, r, err)
		return
	}

	rest.Respond(w, r, http.StatusOK, userToDTO(currentUser))
}

// GetAllUsers godoc
// @Summary List all users
// @Description Retrieve every registered account. Requires the Admin role.
// @Tags User
// @Produce json
// @Success 200 {array} UserDTO
// @Failure 403 {object} rest.ErrorResponse "Admin role required"
// @Router /api/admin/users [get]
// @Security BearerAuth
func (h *Handler) GetAllUsers(w http.ResponseWriter, r *http.Request) {
	log.Trace("Getting all users")

	currentUser, err := CurrentUser(r.Context())
	if err != nil {
		rest.RespondError(w, r, apierr.Unauthorized("authentication required"))
		return
	}
	if currentUser.Role != RoleAdmin {
		rest.RespondError(w, r, apierr.Forbidden("administrator role required"))
		return
	}

	users, err := h.userService.GetAllUsers(r.Context())
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}

	usersDTO := make([]UserDTO, 0, len(users))
	for _, u := range users {
		usersDTO = append(usersDTO, userToDTO(u))
	}
	rest.Respond(w, r, http.StatusOK, usersDTO)
}

// openSession issues the access token and a fresh allowlisted refresh token,
// sets the refresh cookie, and builds the response body.
func (h *Handler) openSession(ctx context.Context, w http.ResponseWriter, u User) (TokenResponse, error) {
	access, err := h.tokens.IssueAccessToken(u.ID, string(u.Role))
	if err != nil {
		return TokenResponse{}, err
	}
	refresh, jti, expiresAt, err := h.tokens.IssueRefreshToken(u.ID)
	if err != nil {
		return TokenResponse{}, err
	}
	if err := h.refreshStore.Save(ctx, jti, u.ID, expiresAt); err != nil {
		return TokenResponse{}, err
	}
	setRefreshCookie(w, refresh, expiresAt)
	return TokenResponse{
		AccessToken: access,
		TokenType:   "bearer",
		User:        userToDTO(u),
	}, nil
}

func (h *Handler) publish(e event_bus.Event) {
	if err := h.bus.Publish(e); err != nil {
		log.Warnf("could not publish %s event: %v", e.Type, err)
	}
}

func setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func userToDTO(u User) UserDTO {
	return UserDTO{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		Role:      string(u.Role),
		IsActive:  u.Active,
		CreatedAt: u.CreatedAt,
	}
}
