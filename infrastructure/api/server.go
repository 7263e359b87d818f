// Package api exposes the chat client to a local browser: a JSON API, a websocket
// event stream and the prometheus registry.
package api

import (
	"encoding/json"
	errs "errors"
	"log/slog"
	"mini-chat/errors"
	"mini-chat/services"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

type Handler struct {
	log      *slog.Logger
	service  services.IChatService
	push     *PushHub
	gatherer prometheus.Gatherer
	validate *validator.Validate
}

func NewHandler(log *slog.Logger, service services.IChatService, push *PushHub, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		push:     push,
		gatherer: gatherer,
		validate: validator.New(),
	}
}

type NicknameRequest struct {
	Nickname string `json:"nickname" validate:"required,max=64"`
}

type PrivateRequest struct {
	PeerID string `json:"peerId" validate:"required,max=128"`
}

type GroupRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

type JoinRequest struct {
	Topic string `json:"topic" validate:"required,max=256"`
	Name  string `json:"name" validate:"max=128"`
}

type MessageRequest struct {
	Content string `json:"content" validate:"required,max=4096"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/me", h.GetMe).Methods(http.MethodGet)
	api.HandleFunc("/me", h.UpdateMe).Methods(http.MethodPut)
	api.HandleFunc("/status", h.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/sessions", h.GetSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/private", h.StartPrivate).Methods(http.MethodPost)
	api.HandleFunc("/sessions/group", h.CreateGroup).Methods(http.MethodPost)
	api.HandleFunc("/sessions/join", h.JoinGroup).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/messages", h.GetMessages).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/messages", h.SendMessage).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/messages/{messageId}/revoke", h.RevokeMessage).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/messages/{messageId}", h.DeleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/search", h.Search).Methods(http.MethodGet)

	if h.push != nil {
		r.HandleFunc("/ws", h.push.HandleWebSocket).Methods(http.MethodGet)
	}
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

// NewHTTPHandler wraps the router with the CORS policy.
func NewHTTPHandler(h *Handler, allowedOrigins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	})
	return c.Handler(h.SetupRouter())
}

// GetMe handles GET /api/me
func (h *Handler) GetMe(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Me())
}

// UpdateMe handles PUT /api/me
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var body NicknameRequest
	if !h.decode(w, r, &body) {
		return
	}
	identity, err := h.service.Rename(body.Nickname)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, identity)
}

// GetStatus handles GET /api/status
func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Status())
}

// GetSessions handles GET /api/sessions
func (h *Handler) GetSessions(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Sessions())
}

// StartPrivate handles POST /api/sessions/private
func (h *Handler) StartPrivate(w http.ResponseWriter, r *http.Request) {
	var body PrivateRequest
	if !h.decode(w, r, &body) {
		return
	}
	session, err := h.service.StartPrivate(body.PeerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, session)
}

// CreateGroup handles POST /api/sessions/group
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var body GroupRequest
	if !h.decode(w, r, &body) {
		return
	}
	session, err := h.service.CreateGroup(body.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, session)
}

// JoinGroup handles POST /api/sessions/join
func (h *Handler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	var body JoinRequest
	if !h.decode(w, r, &body) {
		return
	}
	session, err := h.service.JoinGroup(body.Topic, body.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, session)
}

// DeleteSession handles DELETE /api/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSession(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMessages handles GET /api/sessions/{id}/messages
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.service.Messages(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messages)
}

// SendMessage handles POST /api/sessions/{id}/messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body MessageRequest
	if !h.decode(w, r, &body) {
		return
	}
	msg, err := h.service.Send(mux.Vars(r)["id"], body.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, msg)
}

// RevokeMessage handles POST /api/sessions/{id}/messages/{messageId}/revoke
func (h *Handler) RevokeMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	msg, err := h.service.Revoke(vars["id"], vars["messageId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, msg)
}

// DeleteMessage handles DELETE /api/sessions/{id}/messages/{messageId}
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.service.DeleteMessage(vars["id"], vars["messageId"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/sessions/{id}/search?q=
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	messages, err := h.service.Search(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, body any) bool {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	if err := h.validate.Struct(body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: strings.ToLower(err.Error())})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", "error", err)
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errs.Is(err, errors.ErrProtectedSession), errs.Is(err, errors.ErrNotMessageOwner):
		return http.StatusForbidden
	case errs.Is(err, errors.ErrSessionNotFound), errs.Is(err, errors.ErrMessageNotFound):
		return http.StatusNotFound
	case errs.Is(err, errors.ErrEmptyContent),
		errs.Is(err, errors.ErrEmptyNickname),
		errs.Is(err, errors.ErrEmptySessionName),
		errs.Is(err, errors.ErrInvalidPeer),
		errs.Is(err, errors.ErrInvalidTopic),
		errs.Is(err, errors.ErrMalformedMessage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Debug("Failed to write response", "error", err)
	}
}
