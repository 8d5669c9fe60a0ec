package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/nova/internal/google"
	"github.com/kalambet/nova/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// TextRequest carries the input for process and perceive.
type TextRequest struct {
	Text string `json:"text"`
}

// ChatRequest carries one chat message.
type ChatRequest struct {
	Message string `json:"message"`
}

// CreateSessionRequest optionally names a new session.
type CreateSessionRequest struct {
	Title string `json:"title"`
}

// MailRequest queues a message for sending or drafting.
type MailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Draft   bool   `json:"draft"`
}

func (m MailRequest) Outgoing() google.Outgoing {
	return google.Outgoing{To: m.To, Subject: m.Subject, Body: m.Body}
}

// EventRequest creates a calendar event. Times are RFC 3339.
type EventRequest struct {
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Location string    `json:"location,omitempty"`
}

func (e EventRequest) Event() google.Event {
	return google.Event{Title: e.Title, Start: e.Start, End: e.End, Location: e.Location}
}

// NewHandler returns the HTTP API. Everything except /health requires the
// bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/v1/perceive", handlePerceive(deps))
		r.Get("/v1/snapshot", handleSnapshot(deps))
		r.Get("/v1/brief", handleBrief(deps))

		r.Route("/v1/sessions", func(r chi.Router) {
			r.Get("/", handleListSessions(deps))
			r.Post("/", handleCreateSession(deps))
			r.Get("/{id}", handleGetSession(deps))
			r.Delete("/{id}", handleDeleteSession(deps))
			r.Post("/{id}/process", handleProcess(deps))
			r.Get("/{id}/perceptions", handlePerceptions(deps))
			r.Post("/{id}/chat", handleChat(deps))
			r.Get("/{id}/history", handleHistory(deps))
		})

		r.Post("/v1/mail", handleQueueMail(deps))
		r.Get("/v1/mail/{id}", handleMailStatus(deps))

		r.Post("/v1/calendar/events", handleCreateEvent(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handlePerceive(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TextRequest
		if !decodeBody(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, deps.perceive(req.Text))
	}
}

func handleSnapshot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Assistant.Snapshot(r.Context(), deps.now()))
	}
}

func handleBrief(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := deps.brief(r.Context(), r.URL.Query().Get("tickers"))
		if strings.Contains(r.Header.Get("Accept"), "text/plain") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte(b.Text()))
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		sessions, err := deps.Sessions.List(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sessions: %v", err)
			return
		}

		out := make([]SessionView, len(sessions))
		for i, s := range sessions {
			out[i] = sessionView(s)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleCreateSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}
		info, _, err := deps.Sessions.Create(req.Title)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create session: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, sessionView(info))
	}
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := deps.Sessions.Info(chi.URLParam(r, "id"))
		if sessionError(w, err, "get session") {
			return
		}
		writeJSON(w, http.StatusOK, sessionView(info))
	}
}

func handleDeleteSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Sessions.Delete(chi.URLParam(r, "id"))
		if sessionError(w, err, "delete session") {
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleProcess(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TextRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := deps.process(chi.URLParam(r, "id"), req.Text)
		if sessionError(w, err, "process") {
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handlePerceptions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := deps.Sessions.History(chi.URLParam(r, "id"))
		if sessionError(w, err, "load perceptions") {
			return
		}
		writeJSON(w, http.StatusOK, history)
	}
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}
		resp, err := deps.chat(r.Context(), chi.URLParam(r, "id"), req.Message)
		if sessionError(w, err, "chat") {
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 0, 0)
		turns, err := deps.history(chi.URLParam(r, "id"), limit)
		if sessionError(w, err, "load history") {
			return
		}
		writeJSON(w, http.StatusOK, turns)
	}
}

func handleQueueMail(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MailRequest
		if !decodeBody(w, r, &req) {
			return
		}
		id, err := deps.queueMail(req)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "queued"})
	}
}

func handleMailStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Store.GetJob(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "mail job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get mail job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, jobView(job))
	}
}

func handleCreateEvent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EventRequest
		if !decodeBody(w, r, &req) {
			return
		}
		ev, err := deps.createEvent(r.Context(), req)
		switch {
		case errors.Is(err, errInvalidEvent):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		case errors.Is(err, ErrCalendarUnavailable):
			httpError(w, http.StatusServiceUnavailable, "unavailable", "%v", err)
		case err != nil:
			httpError(w, http.StatusBadGateway, "upstream_error", "failed to create event: %v", err)
		default:
			writeJSON(w, http.StatusCreated, ev)
		}
	}
}

// sessionError writes the response for err and reports whether there was one.
func sessionError(w http.ResponseWriter, err error, action string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "session not found")
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "failed to %s: %v", action, err)
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
