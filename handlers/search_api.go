package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"time"

	"streamfinder/internal/search"
	"streamfinder/services/sessions"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

// SessionStore is the live search session store.
type SessionStore interface {
	Create(params url.Values) *sessions.Session
	Get(id string) (*sessions.Session, error)
	Delete(id string) error
}

// SearchAPIHandler serves controller views as JSON.
type SearchAPIHandler struct {
	fetcher     search.Fetcher
	sessions    SessionStore
	waitTimeout time.Duration
}

func NewSearchAPIHandler(fetcher search.Fetcher, store SessionStore, waitTimeout time.Duration) *SearchAPIHandler {
	return &SearchAPIHandler{fetcher: fetcher, sessions: store, waitTimeout: waitTimeout}
}

type sessionResponse struct {
	ID          string      `json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	ScrollToTop bool        `json:"scroll_to_top,omitempty"`
	View        search.View `json:"view"`
}

// View resolves the URL parameters, waits for the fetch and returns the view.
func (h *SearchAPIHandler) View(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()

	ctrl := search.NewController(ctx, h.fetcher)
	defer ctrl.Close()
	ctrl.Navigate(r.URL.Query())
	if err := ctrl.Wait(ctx); err != nil && r.Context().Err() != nil {
		return
	}

	view := ctrl.View()
	status := http.StatusOK
	if view.State == search.StateFailed {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, view)
}

// CreateSession starts a live search from the URL parameters. Pass wait=1
// to block until the first fetch settles.
func (h *SearchAPIHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	wait := params.Get("wait") == "1"
	params.Del("wait")

	sess := h.sessions.Create(params)
	if wait {
		h.wait(r.Context(), sess)
	}
	log.Printf("[sessions] created session %s q=%q", sess.ID, params.Get("q"))
	writeJSON(w, http.StatusCreated, sessionResponse{ID: sess.ID, CreatedAt: sess.CreatedAt, View: sess.Controller.View()})
}

// GetSession returns the session's current view. Pass wait=1 to block until
// any in-flight fetch settles.
func (h *SearchAPIHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("wait") == "1" {
		h.wait(r.Context(), sess)
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: sess.ID, CreatedAt: sess.CreatedAt, View: sess.Controller.View()})
}

// ApplyAction feeds one user action to the session.
func (h *SearchAPIHandler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var action sessions.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := sess.Apply(action); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if r.URL.Query().Get("wait") == "1" {
		h.wait(r.Context(), sess)
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		ID:          sess.ID,
		CreatedAt:   sess.CreatedAt,
		ScrollToTop: action.Type == sessions.ActionPage,
		View:        sess.Controller.View(),
	})
}

// DeleteSession closes the session.
func (h *SearchAPIHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SearchAPIHandler) lookup(w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	sess, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sessions.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return nil, false
	}
	return sess, true
}

func (h *SearchAPIHandler) wait(ctx context.Context, sess *sessions.Session) {
	ctx, cancel := context.WithTimeout(ctx, h.waitTimeout)
	defer cancel()
	_ = sess.Controller.Wait(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
