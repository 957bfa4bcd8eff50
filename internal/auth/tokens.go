// Package auth issues and verifies the API's credentials: short-lived
// access JWTs, rotating refresh JWTs backed by a jti allowlist, and bcrypt
// password hashes.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/irefuse3585/event-manager-api/internal/config"
	"github.com/irefuse3585/event-manager-api/internal/utils"
)

// Claims is the decoded identity carried by a verified token.
type Claims struct {
	UserID uuid.UUID
	Role   string
	// TokenID is the refresh token's jti; empty for access tokens.
	TokenID string
}

type tokenClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	audience      string
	clock         utils.Clock
}

func NewTokenManager(cfg config.Auth, clock utils.Clock) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute,
		refreshTTL:    time.Duration(cfg.RefreshTokenTTLDays) * 24 * time.Hour,
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		clock:         clock,
	}
}

// RefreshTTL is the validity window of refresh tokens, exposed for cookie
// max-age and allowlist expiry.
func (tm *TokenManager) RefreshTTL() time.Duration {
	return tm.refreshTTL
}

func (tm *TokenManager) IssueAccessToken(userID uuid.UUID, role string) (string, error) {
	now := tm.clock.Now()
	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    tm.issuer,
			Audience:  jwt.ClaimStrings{tm.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.accessSecret)
	if err != nil {
		return "", fmt.Errorf("could not sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken returns the signed token, its jti, and its expiry. The
// caller stores the jti in the allowlist.
func (tm *TokenManager) IssueRefreshToken(userID uuid.UUID) (string, string, time.Time, error) {
	now := tm.clock.Now()
	expiresAt := now.Add(tm.refreshTTL)
	jti := uuid.New().String()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    tm.issuer,
			Audience:  jwt.ClaimStrings{tm.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.refreshSecret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("could not sign refresh token: %w", err)
	}
	return signed, jti, expiresAt, nil
}

func (tm *TokenManager) VerifyAccessToken(raw string) (Claims, error) {
	return tm.verify(raw, tm.accessSecret)
}

func (tm *TokenManager) VerifyRefreshToken(raw string) (Claims, error) {
	claims, err := tm.verify(raw, tm.refreshSecret)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenID == "" {
		return Claims{}, fmt.Errorf("refresh token has no jti")
	}
	return claims, nil
}

func (tm *TokenManager) verify(raw string, secret []byte) (Claims, error) {
	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(raw, &parsed,
		func(t *jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithAudience(tm.audience),
		jwt.WithTimeFunc(tm.clock.Now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("invalid token: %w", err)
	}
	userID, err := uuid.Parse(parsed.Subject)
	if err != nil {
		return Claims{}, fmt.Errorf("invalid token subject: %w", err)
	}
	return Claims{UserID: userID, Role: parsed.Role, TokenID: parsed.ID}, nil
}
