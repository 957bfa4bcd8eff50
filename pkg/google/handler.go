package google

import (
	"errors"
	"net/http"
	"time"

	"github.com/irefuse3585/event-manager-api/internal/apierr"
	"github.com/irefuse3585/event-manager-api/internal/rest"
)

type CalendarItemDto struct {
	Id      string `json:"id"`
	Summary string `json:"summary"`
}

type ExportResponse struct {
	Events  int `json:"events"`
	Entries int `json:"entries"`
}

type Handler struct {
	service Service
}

func NewHandler(s Service) *Handler {
	return &Handler{s}
}

// ListCalendars godoc
// @Summary List the caller's Google calendars
// @Produce json
// @Success 200 {array} CalendarItemDto
// @Router /api/integrations/google/calendars [get]
func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	calendars, err := h.service.ListCalendars(r.Context())
	if err != nil {
		rest.RespondError(w, r, translateAuthErr(err))
		return
	}

	calendarItems := make([]CalendarItemDto, 0, len(calendars))
	for _, c := range calendars {
		calendarItems = append(calendarItems, toCalendarItemDto(c))
	}
	rest.Respond(w, r, http.StatusOK, calendarItems)
}

// Export godoc
// @Summary Export the caller's events in a time window to a Google calendar
// @Produce json
// @Param calendarId query string true "target Google calendar"
// @Param from query string true "window start (RFC 3339)"
// @Param to query string true "window end, exclusive (RFC 3339)"
// @Success 200 {object} ExportResponse
// @Router /api/integrations/google/export [post]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	calendarId := r.URL.Query().Get("calendarId")
	if calendarId == "" {
		rest.RespondError(w, r, apierr.Validation("calendarId query parameter is required"))
		return
	}
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		rest.RespondError(w, r, apierr.Validation("from must be an RFC 3339 timestamp"))
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		rest.RespondError(w, r, apierr.Validation("to must be an RFC 3339 timestamp"))
		return
	}
	if !to.After(from) {
		rest.RespondError(w, r, apierr.Validation("to must be after from"))
		return
	}

	result, err := h.service.Export(r.Context(), calendarId, from, to)
	if err != nil {
		rest.RespondError(w, r, translateAuthErr(err))
		return
	}
	rest.Respond(w, r, http.StatusOK, ExportResponse{Events: result.Events, Entries: result.Entries})
}

func translateAuthErr(err error) error {
	if errors.Is(err, ErrUnauthenticated) {
		return apierr.Forbidden("Google account is not connected")
	}
	return err
}

func toCalendarItemDto(ci CalendarItem) CalendarItemDto {
	return CalendarItemDto{
		Id:      ci.ID,
		Summary: ci.Summary,
	}
}
