// Package rest holds the HTTP response plumbing shared by all handlers:
// content negotiation (JSON by default, msgpack on request) and the mapping
// from the service error taxonomy to status codes.
package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/irefuse3585/event-manager-api/internal/apierr"
	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

const msgpackContentType = "application/x-msgpack"

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Respond writes payload with the given status, honoring
// `Accept: application/x-msgpack` and defaulting to JSON. A nil payload
// writes the status only.
func Respond(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}

	if wantsMsgpack(r) {
		w.Header().Set("Content-Type", msgpackContentType)
		w.WriteHeader(status)
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(payload); err != nil {
			log.Errorf("failed to encode msgpack response: %v", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("failed to encode response: %v", err)
	}
}

// RespondError maps err to a status code and error body. Unclassified
// errors become 500 without leaking their message.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		log.Errorf("unhandled error: %v", err)
		Respond(w, r, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	Respond(w, r, statusFor(apiErr.Kind), ErrorResponse{
		Error:   apiErr.Message,
		Code:    apiErr.Kind.Code(),
		Details: apiErr.Details,
	})
}

func statusFor(kind apierr.Kind) int {
	switch kind {
	case apierr.KindValidation:
		return http.StatusBadRequest
	case apierr.KindUnauthorized:
		return http.StatusUnauthorized
	case apierr.KindForbidden:
		return http.StatusForbidden
	case apierr.KindNotFound:
		return http.StatusNotFound
	case apierr.KindConflict, apierr.KindInvalidState:
		return http.StatusConflict
	case apierr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func wantsMsgpack(r *http.Request) bool {
	for _, accept := range r.Header.Values("Accept") {
		for _, part := range strings.Split(accept, ",") {
			mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
			if strings.EqualFold(mediaType, msgpackContentType) {
				return true
			}
		}
	}
	return false
}

// DecodeBody parses a JSON request body into dst, returning a Validation
// error the handler can pass straight to RespondError.
func DecodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierr.Wrap(apierr.KindValidation, "invalid request body", err)
	}
	return nil
}
