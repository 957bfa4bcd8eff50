package event

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/irefuse3585/event-manager-api/internal/apierr"
	"github.com/irefuse3585/event-manager-api/internal/rest"
	"github.com/irefuse3585/event-manager-api/pkg/permission"
	"github.com/irefuse3585/event-manager-api/pkg/schedule"
	"github.com/irefuse3585/event-manager-api/pkg/user"
	log "github.com/sirupsen/logrus"
)

type EventDTO struct {
	ID             string              `json:"id"`
	OwnerID        string              `json:"ownerId"`
	Version        int                 `json:"version"`
	Title          string              `json:"title"`
	Description    string              `json:"description,omitempty"`
	Location       string              `json:"location,omitempty"`
	StartTime      time.Time           `json:"startTime"`
	EndTime        time.Time           `json:"endTime"`
	IsRecurring    bool                `json:"isRecurring"`
	RecurrenceRule string              `json:"recurrenceRule,omitempty"`
	Occurrences    []schedule.Interval `json:"occurrences,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

type CreateEventRequest struct {
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Location       string              `json:"location"`
	StartTime      time.Time           `json:"startTime"`
	EndTime        time.Time           `json:"endTime"`
	IsRecurring    bool                `json:"isRecurring"`
	RecurrenceRule string              `json:"recurrenceRule"`
	Occurrences    []schedule.Interval `json:"occurrences"`
	Override       bool                `json:"override"`
}

func (req CreateEventRequest) toDraft() Draft {
	return Draft{
		Title:          req.Title,
		Description:    req.Description,
		Location:       req.Location,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		IsRecurring:    req.IsRecurring,
		RecurrenceRule: req.RecurrenceRule,
		Occurrences:    req.Occurrences,
		Override:       req.Override,
	}
}

type BatchCreateRequest struct {
	Events   []CreateEventRequest `json:"events"`
	Override bool                 `json:"override"`
}

type UpdateEventRequest struct {
	Title          *string             `json:"title"`
	Description    *string             `json:"description"`
	Location       *string             `json:"location"`
	StartTime      *time.Time          `json:"startTime"`
	EndTime        *time.Time          `json:"endTime"`
	IsRecurring    *bool               `json:"isRecurring"`
	RecurrenceRule *string             `json:"recurrenceRule"`
	Occurrences    []schedule.Interval `json:"occurrences"`
	Version        int                 `json:"version"`
	Override       bool                `json:"override"`
}

type ShareItemRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type ShareRequest struct {
	Users []ShareItemRequest `json:"users"`
}

type UpdatePermissionRequest struct {
	Role string `json:"role"`
}

type MutationResponse struct {
	Event    EventDTO            `json:"event"`
	Warnings []schedule.Conflict `json:"warnings,omitempty"`
}

type BatchCreateResponse struct {
	Events   []EventDTO          `json:"events"`
	Warnings []schedule.Conflict `json:"warnings,omitempty"`
}

type EventDetailsResponse struct {
	EventDTO
	Permissions []permission.Grant `json:"permissions"`
}

type EventHandler struct {
	coordinator Coordinator
}

func NewEventHandler(coordinator Coordinator) *EventHandler {
	return &EventHandler{coordinator: coordinator}
}

// CreateEvent godoc
// @Summary Create an event
// @Description Create an event; overlaps block unless override is set
// @Tags Events
// @Accept json
// @Produce json
// @Param event body CreateEventRequest true "Event"
// @Success 201 {object} MutationResponse
// @Failure 400 {object} rest.ErrorResponse "Invalid event data"
// @Failure 409 {object} rest.ErrorResponse "Overlapping events"
// @Router /api/events [post]
// @Security BearerAuth
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating event")

	callerID, err := currentUserID(r)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	var req CreateEventRequest
	if err := rest.DecodeBody(r, &req); err != nil {
		rest.RespondError(w, r, err)
		return
	}

	created, warnings, err := h.coordinator.Create(r.Context(), callerID, req.toDraft())
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	rest.Respond(w, r, http.StatusCreated, MutationResponse{Event: eventToDTO(created), Warnings: warnings})
}

// CreateBatch godoc
// @Summary Create several events
// @Description All-or-nothing batch create; any invalid or conflicting event rejects the whole batch
// @Tags Events
// @Accept json
// @Produce json
// @Param batch body BatchCreateRequest true "Batch"
// @Success 201 {object} BatchCreateResponse
// @Failure 400 {object} rest.ErrorResponse "Invalid event data"
// @Failure 409 {object} rest.ErrorResponse "Overlapping events"
// @Router /api/events/batch [post]
// @Security BearerAuth
func (h *EventHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating event batch")

	callerID, err := currentUserID(r)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	var req BatchCreateRequest
	if err := rest.DecodeBody(r, &req); err != nil {
		rest.RespondError(w, r, err)
		return
	}

	drafts := make([]Draft, 0, len(req.Events))
	for _, item := range req.Events {
		drafts = append(drafts, item.toDraft())
	}

	created, warnings, err := h.coordinator.CreateBatch(r.Context(), callerID, drafts, req.Override)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}

	events := make([]EventDTO, 0, len(created))
	for _, ev := range created {
		events = append(events, eventToDTO(ev))
	}
	rest.Respond(w, r, http.StatusCreated, BatchCreateResponse{Events: events, Warnings: warnings})
}

// ListEvents godoc
// @Summary List visible events
// @Description List the events the caller holds any grant on, newest first
// @Tags Events
// @Produce json
// @Param offset query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {array} EventDTO
// @Router /api/events [get]
// @Security BearerAuth
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	log.Trace("Listing events")

	callerID, err := currentUserID(r)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.coordinator.List(r.Context(), callerID, offset, limit)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}

	dtos := make([]EventDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, eventToDTO(ev))
	}
	rest.Respond(w, r, http.StatusOK, dtos)
}

// GetEvent godoc
// @Summary Get one event
// @Description Retrieve an event with its current version and grants
// @Tags Events
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 200 {object} EventDetailsResponse
// @Failure 403 {object} rest.ErrorResponse "No grant on this event"
// @Failure 404 {object} rest.ErrorResponse "Event not found"
// @Router /api/events/{eventId} [get]
// @Security BearerAuth
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	log.Trace("Getting event")

	callerID, err := currentUserID(r)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	eventID, err := pathUUID(r, "eventId")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}

	ev, err := h.coordinator.Get(r.Context(), callerID, eventID)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	grants, err := h.coordinator.ListPermissions(r.Context(), callerID, eventID)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	rest.Respond(w, r, http.StatusOK, EventDetailsResponse{EventDTO: eventToDTO(ev), Permissions: grants})
}

// UpdateEvent godoc
// @Summary Update an event
// @Description Partial update with optional optimistic version check and conflict override
// @Tags Events
// @Accept json
// @Produce json
// @Param eventId path string true "Event ID"
// @Param patch body UpdateEventRequest true "Fields to change"
// @Success 200 {object} MutationResponse
// @Failure 403 {object} rest.ErrorResponse "Editor role required"
// @Failure 404 {object} rest.ErrorResponse "Event not found"
// @Failure 409 {object} rest.ErrorResponse "Version mismatch or overlap"
// @Router /api/events/{eventId} [put]
// @Security BearerAuth
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	log.Debug("Updating event")

	callerID, err := currentUserID(r)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	eventID, err := pathUUID(r, "eventId")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	var req UpdateEventRequest
	if err := rest.DecodeBody(r, &req); err != nil {
		rest.RespondError(w, r, err)
		return
	}

	patch := Patch{
		Title:           req.Title,
		Description:     req.Description,
		Location:        req.Location,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		IsRecurring:     req.IsRecurring,
		RecurrenceRule:  req.RecurrenceRule,
		Occurrences:     req.Occurrences,
		ExpectedVersion: req.Version,
		Override:        req.Override,
	}
	updated, warnings, err := h.coordinator.Update(r.Context(), callerID, eventID, patch)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	rest.Respond(w, r, http.StatusOK, MutationResponse{Event: eventToDTO(updated), Warnings: warnings})
}

// DeleteEvent godoc
// @Summary Delete an event
// @Description Tombstone the event; its history stays readable
// @Tags Events
// @Param eventId path string true "Event ID"
// @Success 204 "No Content"
// @Failure 403 {object} rest.ErrorResponse "Owner role required"
// @Failure 404 {object} rest.ErrorResponse "Event not found"
// @Router /api/events/{eventId} [delete]
// @Security BearerAuth
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	log.Debug("Deleting event")

	callerID, err := currentUserID(r)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	eventID, err := pathUUID(r, "eventId")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}

	if err := h.coordinator.Delete(r.Context(), callerID, eventID); err != nil {
		rest.RespondError(w, r, err)
		return
	}
	rest.Respond(w, r, http.StatusNoContent, nil)
}

// ShareEvent godoc
// @Summary Share an event
// @Description Grant Viewer or Editor access to other users, all-or-nothing
// @Tags Permissions
// @Accept json
// @Produce json
// @Param eventId path string true "Event ID"
// @Param share body ShareRequest true "Users and roles"
// @Success 200 {array} permission.Grant
// @Failure 403 {object} rest.ErrorResponse "Owner role required"
// @Failure 409 {object} rest.ErrorResponse "User already has access"
// @Router /api/events/{eventId}/share [post]
// @Security BearerAuth
func (h *EventHandler) ShareEvent(w http.ResponseWriter, r *http.Request) {
	log.Debug("Sharing event")

	callerID, err := currentUserID(r)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	eventID, err := pathUUID(r, "eventId")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	var req ShareRequest
	if err := rest.DecodeBody(r, &req); err != nil {
		rest.RespondError(w, r, err)
		return
	}

	items := make([]ShareItem, 0, len(req.Users))
	for _, item := range req.Users {
		userID, err := uuid.Parse(item.UserID)
		if err != nil {
			rest.RespondError(w, r, apierr.Validation("share item carries an invalid user id"))
			return
		}
		role, err := permission.ParseRole(item.Role)
		if err != nil {
			rest.RespondError(w, r, apierr.Wrap(apierr.KindValidation, "share item carries an invalid role", err))
			return
		}
		items = append(items, ShareItem{UserID: userID, Role: role})
	}

	grants, err := h.coordinator.Share(r.Context(), callerID, eventID, items)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	rest.Respond(w, r, http.StatusOK, grants)
}

// ListPermissions godoc
// @Summary List event permissions
// @Tags Permissions
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 200 {array} permission.Grant
// @Failure 404 {object} rest.ErrorResponse "Event not found"
// @Router /api/events/{eventId}/permissions [get]
// @Security BearerAuth
func (h *EventHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	log.Trace("Listing event permissions")

	callerID, err := currentUserID(r)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	eventID, err := pathUUID(r, "eventId")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}

	grants, err := h.coordinator.ListPermissions(r.Context(), callerID, eventID)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	rest.Respond(w, r, http.StatusOK, grants)
}

// UpdatePermission godoc
// @Summary Change a user's role
// @Tags Permissions
// @Accept json
// @Produce json
// @Param eventId path string true "Event ID"
// @Param userId path string true "User ID"
// @Param role body UpdatePermissionRequest true "New role"
// @Success 200 {object} permission.Grant
// @Failure 403 {object} rest.ErrorResponse "Owner role required"
// @Failure 404 {object} rest.ErrorResponse "No such grant"
// @Router /api/events/{eventId}/permissions/{userId} [put]
// @Security BearerAuth
func (h *EventHandler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	log.Debug("Updating event permission")

	callerID, err := currentUserID(r)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	eventID, err := pathUUID(r, "eventId")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	targetID, err := pathUUID(r, "userId")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	var req UpdatePermissionRequest
	if err := rest.DecodeBody(r, &req); err != nil {
		rest.RespondError(w, r, err)
		return
	}
	role, err := permission.ParseRole(req.Role)
	if err != nil {
		rest.RespondError(w, r, apierr.Wrap(apierr.KindValidation, "invalid role", err))
		return
	}

	grant, err := h.coordinator.UpdatePermission(r.Context(), callerID, eventID, targetID, role)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	rest.Respond(w, r, http.StatusOK, grant)
}

// RevokePermission godoc
// @Summary Revoke a user's access
// @Tags Permissions
// @Param eventId path string true "Event ID"
// @Param userId path string true "User ID"
// @Success 204 "No Content"
// @Failure 403 {object} rest.ErrorResponse "Owner role required"
// @Failure 404 {object} rest.ErrorResponse "No such grant"
// @Router /api/events/{eventId}/permissions/{userId} [delete]
// @Security BearerAuth
func (h *EventHandler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	log.Debug("Revoking event permission")

	callerID, err := currentUserID(r)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	eventID, err := pathUUID(r, "eventId")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	targetID, err := pathUUID(r, "userId")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}

	if err := h.coordinator.RevokePermission(r.Context(), callerID, eventID, targetID); err != nil {
		rest.RespondError(w, r, err)
		return
	}
	rest.Respond(w, r, http.StatusNoContent, nil)
}

// GetHistory godoc
// @Summary List an event's versions
// @Description The full append-only version log, oldest first
// @Tags History
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 200 {array} history.Version
// @Failure 404 {object} rest.ErrorResponse "Event not found"
// @Router /api/events/{eventId}/history [get]
// @Security BearerAuth
func (h *EventHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	log.Trace("Getting event history")

	callerID, err := currentUserID(r)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	eventID, err := pathUUID(r, "eventId")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}

	versions, err := h.coordinator.History(r.Context(), callerID, eventID)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	rest.Respond(w, r, http.StatusOK, versions)
}

// GetVersion godoc
// @Summary Get one version
// @Tags History
// @Produce json
// @Param eventId path string true "Event ID"
// @Param version path int true "Version number"
// @Success 200 {object} history.Version
// @Failure 404 {object} rest.ErrorResponse "Version not found"
// @Router /api/events/{eventId}/history/{version} [get]
// @Security BearerAuth
func (h *EventHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	log.Trace("Getting event version")

	callerID, err := currentUserID(r)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	eventID, err := pathUUID(r, "eventId")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	number, err := pathInt(r, "version")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}

	version, err := h.coordinator.GetVersion(r.Context(), callerID, eventID, number)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	rest.Respond(w, r, http.StatusOK, version)
}

// RollbackEvent godoc
// @Summary Roll an event back
// @Description Append a copy of the target version as the new current version
// @Tags History
// @Produce json
// @Param eventId path string true "Event ID"
// @Param version path int true "Target version"
// @Success 200 {object} MutationResponse
// @Failure 403 {object} rest.ErrorResponse "Editor role required"
// @Failure 404 {object} rest.ErrorResponse "Version not found"
// @Router /api/events/{eventId}/rollback/{version} [post]
// @Security BearerAuth
func (h *EventHandler) RollbackEvent(w http.ResponseWriter, r *http.Request) {
	log.Debug("Rolling event back")

	callerID, err := currentUserID(r)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	eventID, err := pathUUID(r, "eventId")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	target, err := pathInt(r, "version")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}

	ev, err := h.coordinator.Rollback(r.Context(), callerID, eventID, target)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	rest.Respond(w, r, http.StatusOK, MutationResponse{Event: eventToDTO(ev)})
}

// DiffVersions godoc
// @Summary Diff two versions
// @Description Field-by-field structural diff oriented from v1 towards v2
// @Tags History
// @Produce json
// @Param eventId path string true "Event ID"
// @Param v1 path int true "From version"
// @Param v2 path int true "To version"
// @Success 200 {array} history.FieldChange
// @Failure 404 {object} rest.ErrorResponse "Version not found"
// @Router /api/events/{eventId}/diff/{v1}/{v2} [get]
// @Security BearerAuth
func (h *EventHandler) DiffVersions(w http.ResponseWriter, r *http.Request) {
	log.Trace("Diffing event versions")

	callerID, err := currentUserID(r)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	eventID, err := pathUUID(r, "eventId")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	from, err := pathInt(r, "v1")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	to, err := pathInt(r, "v2")
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}

	changes, err := h.coordinator.DiffVersions(r.Context(), callerID, eventID, from, to)
	if err != nil {
		rest.RespondError(w, r, err)
		return
	}
	rest.Respond(w, r, http.StatusOK, changes)
}

func currentUserID(r *http.Request) (uuid.UUID, error) {
	callerID, err := user.CurrentId(r.Context())
	if err != nil {
		return uuid.Nil, apierr.Unauthorized("authentication required")
	}
	return callerID, nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, apierr.Newf(apierr.KindValidation, "invalid %s", name)
	}
	return id, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	value, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		return 0, apierr.Newf(apierr.KindValidation, "invalid %s", name)
	}
	return value, nil
}

func eventToDTO(ev Event) EventDTO {
	return EventDTO{
		ID:             ev.ID.String(),
		OwnerID:        ev.OwnerID.String(),
		Version:        ev.Version,
		Title:          ev.Snapshot.Title,
		Description:    ev.Snapshot.Description,
		Location:       ev.Snapshot.Location,
		StartTime:      ev.Snapshot.StartTime,
		EndTime:        ev.Snapshot.EndTime,
		IsRecurring:    ev.Snapshot.IsRecurring,
		RecurrenceRule: ev.Snapshot.RecurrenceRule,
		Occurrences:    ev.Snapshot.Occurrences,
		CreatedAt:      ev.CreatedAt,
		UpdatedAt:      ev.UpdatedAt,
	}
}
