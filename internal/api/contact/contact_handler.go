package contact

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mkravets/contacts-api/internal/api"
)

type ContactHandler struct {
	logger  *slog.Logger
	service ContactService
}

func NewContactHandler(service ContactService, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{
		logger:  logger,
		service: service,
	}
}

// List handles GET /contacts. Supports search, birthdays_within, offset and
// limit query parameters.
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	current, ok := api.CurrentUserFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	var filter ContactFilter
	var err error
	q := r.URL.Query()
	if s := q.Get("search"); s != "" {
		filter.Search = &s
	}
	if filter.BirthdaysWithin, err = intParam(q, "birthdays_within"); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Offset, err = intParam(q, "offset"); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit, err = intParam(q, "limit"); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	contacts, err := h.service.List(r.Context(), current.ID, filter)
	if err != nil {
		api.RespondError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, contacts)
}

// Get handles GET /contacts/{contactID}.
func (h *ContactHandler) Get(w http.ResponseWriter, r *http.Request) {
	current, id, ok := h.contactRequest(w, r)
	if !ok {
		return
	}

	contact, err := h.service.Get(r.Context(), current.ID, id)
	if err != nil {
		api.RespondError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, contact)
}

// Create handles POST /contacts.
func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	current, ok := api.CurrentUserFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	var body ContactRequest
	if err := api.DecodeJSONBody(w, r, &body); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := body.Validate(); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	contact, err := h.service.Create(r.Context(), current.ID, body)
	if err != nil {
		api.RespondError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusCreated, contact)
}

// Update handles PUT /contacts/{contactID}. Absent fields keep their value.
func (h *ContactHandler) Update(w http.ResponseWriter, r *http.Request) {
	current, id, ok := h.contactRequest(w, r)
	if !ok {
		return
	}

	var body ContactPatchRequest
	if err := api.DecodeJSONBody(w, r, &body); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := body.Validate(); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	contact, err := h.service.Update(r.Context(), current.ID, id, body.toUpdate())
	if err != nil {
		api.RespondError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, contact)
}

// Delete handles DELETE /contacts/{contactID}.
func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	current, id, ok := h.contactRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), current.ID, id); err != nil {
		api.RespondError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

func intParam(q url.Values, name string) (*int, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return &v, nil
}

// contactRequest pulls the current user and the contactID path parameter,
// writing the error response itself when either is missing.
func (h *ContactHandler) contactRequest(w http.ResponseWriter, r *http.Request) (*api.CurrentUser, int64, bool) {
	current, ok := api.CurrentUserFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Could not validate credentials")
		return nil, 0, false
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "contactID"), 10, 64)
	if err != nil || id <= 0 {
		api.ErrorResponse(w, r, http.StatusNotFound, "Contact not found")
		return nil, 0, false
	}
	return current, id, true
}
