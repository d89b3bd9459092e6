// Package api exposes HTTP handlers for the signup service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"example.com/signup/internal/ctxlog"
	"example.com/signup/internal/domain"
)

const (
	activitiesPath = "/activities"
	signupSuffix   = "/signup"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(activitiesPath, h.activities)
	mux.HandleFunc(activitiesPath+"/", h.activitySignup)
	mux.HandleFunc("/healthz", healthz)
	mux.HandleFunc("/", root)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not_found", "Not Found")
		return
	}
	http.Redirect(w, r, activitiesPath, http.StatusTemporaryRedirect)
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	listing := h.service.ListActivities(r.Context())
	resp := make(ActivitiesResponse, len(listing))
	for name, activity := range listing {
		resp[name] = toActivityView(activity)
	}

	// Rosters change on every signup; clients must always refetch.
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

// activitySignup serves /activities/{name}/signup for POST and DELETE.
func (h *Handler) activitySignup(w http.ResponseWriter, r *http.Request) {
	name, ok := activityName(r.URL)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Not Found")
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.signup(w, r, name)
	case http.MethodDelete:
		h.unregister(w, r, name)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request, activity string) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}

	message, err := h.service.Signup(r.Context(), activity, email)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: message})
}

func (h *Handler) unregister(w http.ResponseWriter, r *http.Request, activity string) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}

	message, err := h.service.Unregister(r.Context(), activity, email)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: message})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Activity not found")
	case errors.Is(err, domain.ErrAlreadyRegistered):
		writeError(w, http.StatusBadRequest, "already_registered", "Student is already signed up")
	case errors.Is(err, domain.ErrNotRegistered):
		writeError(w, http.StatusBadRequest, "not_registered", "Student is not signed up for this activity")
	default:
		ctxlog.FromContext(r.Context()).Error("signup request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// activityName extracts and percent-decodes {name} from /activities/{name}/signup.
// The escaped path is used so an encoded "/" stays inside the name.
func activityName(u *url.URL) (string, bool) {
	escaped := strings.TrimPrefix(u.EscapedPath(), activitiesPath+"/")
	escaped, found := strings.CutSuffix(escaped, signupSuffix)
	if !found || escaped == "" || strings.Contains(escaped, "/") {
		return "", false
	}
	name, err := url.PathUnescape(escaped)
	if err != nil {
		return "", false
	}
	return name, true
}

func requireEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	query := r.URL.Query()
	if !query.Has("email") {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing email parameter")
		return "", false
	}
	return query.Get("email"), true
}

// ActivityView is the public representation of an activity.
type ActivityView struct {
	Description     string   `json:"description"`
	Schedule        string   `json:"schedule"`
	MaxParticipants int      `json:"max_participants"`
	Participants    []string `json:"participants"`
}

// ActivitiesResponse maps activity name to its view.
type ActivitiesResponse map[string]ActivityView

// MessageResponse is returned by signup and unregister.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toActivityView(activity domain.Activity) ActivityView {
	participants := activity.Participants
	if participants == nil {
		participants = []string{}
	}
	return ActivityView{
		Description:     activity.Description,
		Schedule:        activity.Schedule,
		MaxParticipants: activity.MaxParticipants,
		Participants:    participants,
	}
}
