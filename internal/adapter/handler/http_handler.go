package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carryo/job-intake/internal/adapter/api"
	"github.com/carryo/job-intake/internal/core/domain"
	"github.com/carryo/job-intake/internal/core/service"
)

const maxPhotoUpload = 10 << 20

type HTTPHandler struct {
	forms *service.JobFormService
	now   func() time.Time
}

type errorResponse struct {
	Error      string             `json:"error"`
	Reasons    []string           `json:"reasons,omitempty"`
	Validation *domain.StepResult `json:"validation,omitempty"`
	Session    *SessionView       `json:"session,omitempty"`
}

type cancelRequest struct {
	Confirmed bool `json:"confirmed"`
}

type selectCenterRequest struct {
	ID string `json:"id"`
}

type coordinatesRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func NewHTTPHandler(forms *service.JobFormService) *HTTPHandler {
	return &HTTPHandler{forms: forms, now: time.Now}
}

// RegisterRoutes mounts the authenticated API on r.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Get("/recycling-centers", h.RecyclingCenters)
	r.Get("/geocode", h.Geocode)
	r.Get("/geocode/reverse", h.ReverseGeocode)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.Start)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Post("/next", h.Next)
			r.Post("/back", h.Back)
			r.Post("/cancel", h.Cancel)
			r.Post("/submit", h.Submit)
			r.Put("/recycling-center", h.SelectRecyclingCenter)
			r.Post("/pickup/resolve", h.ResolvePickup)
			r.Post("/delivery/resolve", h.ResolveDelivery)
			r.Post("/photos", h.UploadPhoto)
		})
	})
}

func (h *HTTPHandler) Start(w http.ResponseWriter, r *http.Request) {
	customerID, _ := CustomerIDFromContext(r.Context())
	sess, err := h.forms.Start(r.Context(), customerID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, NewSessionView(sess, time.Time{}))
}

func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	customerID, _ := CustomerIDFromContext(r.Context())
	sess, err := h.forms.Get(r.Context(), customerID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, NewSessionView(sess, h.now()))
}

func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch DraftPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	edits, err := patch.Edits()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	customerID, _ := CustomerIDFromContext(r.Context())
	sess, err := h.forms.Update(r.Context(), customerID, chi.URLParam(r, "id"), edits...)
	h.respond(w, sess, err)
}

func (h *HTTPHandler) Next(w http.ResponseWriter, r *http.Request) {
	customerID, _ := CustomerIDFromContext(r.Context())
	sess, _, err := h.forms.Next(r.Context(), customerID, chi.URLParam(r, "id"))
	h.respond(w, sess, err)
}

func (h *HTTPHandler) Back(w http.ResponseWriter, r *http.Request) {
	customerID, _ := CustomerIDFromContext(r.Context())
	sess, err := h.forms.Back(r.Context(), customerID, chi.URLParam(r, "id"))
	h.respond(w, sess, err)
}

func (h *HTTPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	customerID, _ := CustomerIDFromContext(r.Context())
	sess, err := h.forms.Cancel(r.Context(), customerID, chi.URLParam(r, "id"), req.Confirmed)
	h.respond(w, sess, err)
}

func (h *HTTPHandler) Submit(w http.ResponseWriter, r *http.Request) {
	customerID, _ := CustomerIDFromContext(r.Context())
	sess, err := h.forms.Submit(r.Context(), customerID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, sess)
		return
	}
	writeJSON(w, http.StatusCreated, NewSessionView(sess, time.Time{}))
}

func (h *HTTPHandler) SelectRecyclingCenter(w http.ResponseWriter, r *http.Request) {
	var req selectCenterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "recycling center id is required"})
		return
	}
	customerID, _ := CustomerIDFromContext(r.Context())
	sess, err := h.forms.SelectRecyclingCenter(r.Context(), customerID, chi.URLParam(r, "id"), req.ID)
	h.respond(w, sess, err)
}

func (h *HTTPHandler) ResolvePickup(w http.ResponseWriter, r *http.Request) {
	var req coordinatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	customerID, _ := CustomerIDFromContext(r.Context())
	sess, err := h.forms.ResolvePickupAddress(r.Context(), customerID, chi.URLParam(r, "id"), req.Lat, req.Lng)
	h.respond(w, sess, err)
}

func (h *HTTPHandler) ResolveDelivery(w http.ResponseWriter, r *http.Request) {
	var req coordinatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	customerID, _ := CustomerIDFromContext(r.Context())
	sess, err := h.forms.ResolveDeliveryAddress(r.Context(), customerID, chi.URLParam(r, "id"), req.Lat, req.Lng)
	h.respond(w, sess, err)
}

// UploadPhoto expects a multipart form with the image in the "photo" part.
func (h *HTTPHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoUpload+1<<20)
	if err := r.ParseMultipartForm(maxPhotoUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid photo upload"})
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "photo is required"})
		return
	}
	defer file.Close()

	name := strconv.FormatInt(h.now().UnixNano(), 36) + path.Ext(header.Filename)
	customerID, _ := CustomerIDFromContext(r.Context())
	sess, err := h.forms.AttachPickupPhoto(r.Context(), customerID, chi.URLParam(r, "id"),
		name, header.Header.Get("Content-Type"), file)
	h.respond(w, sess, err)
}

func (h *HTTPHandler) RecyclingCenters(w http.ResponseWriter, r *http.Request) {
	centers, err := h.forms.RecyclingCenters(r.Context())
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	if centers == nil {
		centers = []domain.RecyclingCenter{}
	}
	writeJSON(w, http.StatusOK, centers)
}

func (h *HTTPHandler) Geocode(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "address is required"})
		return
	}
	loc, err := h.forms.LookupAddress(r.Context(), address)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *HTTPHandler) ReverseGeocode(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lat and lng are required"})
		return
	}
	writeJSON(w, http.StatusOK, h.forms.ReverseGeocode(r.Context(), lat, lng))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) respond(w http.ResponseWriter, sess *service.FormSession, err error) {
	if err != nil {
		h.writeError(w, err, sess)
		return
	}
	writeJSON(w, http.StatusOK, NewSessionView(sess, h.now()))
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error, sess *service.FormSession) {
	status, resp := errorStatus(err)
	if sess != nil {
		view := NewSessionView(sess, time.Time{})
		resp.Session = &view
	}
	if status >= http.StatusInternalServerError {
		log.Printf("http: %v", err)
	}
	writeJSON(w, status, resp)
}

// errorStatus maps service and API errors to an HTTP status and body.
func errorStatus(err error) (int, errorResponse) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Validation: &verr.Result}
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		resp := errorResponse{Error: apiErr.UserMessage(), Reasons: apiErr.ModerationReasons()}
		switch {
		case apiErr.Status == http.StatusUnauthorized:
			return http.StatusUnauthorized, resp
		case apiErr.Status == http.StatusBadRequest, apiErr.Status == http.StatusUnprocessableEntity:
			return http.StatusUnprocessableEntity, resp
		}
		return http.StatusBadGateway, resp
	}

	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, errorResponse{Error: "session not found"}
	case errors.Is(err, service.ErrSessionClosed):
		return http.StatusGone, errorResponse{Error: "session already closed"}
	case errors.Is(err, service.ErrSubmissionInProgress):
		return http.StatusConflict, errorResponse{Error: "submission in progress"}
	case errors.Is(err, service.ErrSessionBusy):
		return http.StatusConflict, errorResponse{Error: "session is being updated"}
	case errors.Is(err, service.ErrNoNextStep), errors.Is(err, service.ErrNoPreviousStep),
		errors.Is(err, service.ErrNotFinalStep):
		return http.StatusConflict, errorResponse{Error: err.Error()}
	case errors.Is(err, service.ErrCancelNotConfirmed), errors.Is(err, service.ErrUnknownRecyclingCenter):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case errors.Is(err, api.ErrAddressNotFound):
		return http.StatusNotFound, errorResponse{Error: "address not found"}
	case errors.Is(err, service.ErrPhotoUpload):
		return http.StatusBadGateway, errorResponse{Error: "photo upload failed"}
	case errors.Is(err, api.ErrNoToken):
		return http.StatusUnauthorized, errorResponse{Error: "not authenticated"}
	}
	return http.StatusInternalServerError, errorResponse{Error: "internal error"}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
