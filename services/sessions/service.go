// Package sessions keeps live search controllers for clients that drive a
// search over several requests through the JSON API.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"streamfinder/config"
	"streamfinder/internal/search"
	"streamfinder/metrics"
	"streamfinder/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var ErrNotFound = errors.New("session not found")

// Action types accepted by Apply.
const (
	ActionQuery       = "query"
	ActionContentType = "content_type"
	ActionPlatform    = "platform"
	ActionSort        = "sort"
	ActionPage        = "page"
)

// Action is one user interaction with a live search.
type Action struct {
	Type  string `json:"type" validate:"required,oneof=query content_type platform sort page"`
	Value string `json:"value" validate:"max=256"`
	Page  int    `json:"page" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Session is one live search.
type Session struct {
	ID         string
	CreatedAt  time.Time
	Controller *search.Controller
}

// Service holds sessions in a bounded LRU. Sessions idle for longer than the
// configured time are evicted and their controllers closed.
type Service struct {
	base    context.Context
	fetcher search.Fetcher
	lru     *expirable.LRU[string, *Session]
}

// NewService creates the session store. ctx bounds every fetch started by a
// session; cancelling it stops them all.
func NewService(ctx context.Context, fetcher search.Fetcher, cfg config.SessionSettings) *Service {
	onEvict := func(id string, sess *Session) {
		sess.Controller.Close()
		metrics.ActiveSessions.Dec()
		log.Printf("[sessions] closed session %s", id)
	}
	return &Service{
		base:    ctx,
		fetcher: fetcher,
		lru:     expirable.NewLRU[string, *Session](cfg.MaxSessions, onEvict, time.Duration(cfg.IdleMinutes)*time.Minute),
	}
}

// Create starts a session positioned at the given URL parameters.
func (s *Service) Create(params url.Values) *Session {
	sess := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Controller: search.NewController(s.base, s.fetcher),
	}
	sess.Controller.Navigate(params)
	s.lru.Add(sess.ID, sess)
	metrics.ActiveSessions.Inc()
	return sess
}

// Get returns the session and renews its idle timer.
func (s *Service) Get(id string) (*Session, error) {
	sess, ok := s.lru.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	s.lru.Add(id, sess)
	return sess, nil
}

// Delete closes and forgets the session.
func (s *Service) Delete(id string) error {
	if !s.lru.Remove(id) {
		return ErrNotFound
	}
	return nil
}

// Len reports the number of live sessions.
func (s *Service) Len() int {
	return s.lru.Len()
}

// Close closes every session.
func (s *Service) Close() {
	s.lru.Purge()
}

// Apply validates a and feeds it to the session's controller.
func (sess *Session) Apply(a Action) error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("invalid action: %w", err)
	}

	c := sess.Controller
	switch a.Type {
	case ActionQuery:
		q := c.Query()
		q.Text = a.Value
		c.SetQuery(q)
	case ActionContentType:
		c.SetContentType(models.ParseContentType(a.Value))
	case ActionPlatform:
		c.SetPlatformFilter(a.Value)
	case ActionSort:
		c.SetSort(search.ParseSortKey(a.Value))
	case ActionPage:
		c.ChangePage(a.Page)
	}
	return nil
}
