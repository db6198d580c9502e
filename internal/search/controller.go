package search

import (
	"context"
	"log"
	"net/url"
	"sync"

	"streamfinder/metrics"
	"streamfinder/models"
)

//go:generate mockgen -source=controller.go -destination=fetcher_mock_test.go -package=search

// Fetcher loads one page of search results.
type Fetcher interface {
	Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error)
}

// State is the fetch state of the active query.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateFailed
)

var stateNames = [...]string{"idle", "loading", "loaded", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Option configures a Controller.
type Option func(*Controller)

// WithPageChangeHook registers fn to run after every accepted page change.
// Renderers use it to scroll back to the top of the grid.
func WithPageChangeHook(fn func(page int)) Option {
	return func(c *Controller) { c.onPageChange = fn }
}

// Controller owns the query, page and sort state of one visitor and runs
// the fetch for the current key. All mutations go through one lock; a
// response is applied only while its key is still the current one.
type Controller struct {
	mu      sync.Mutex
	base    context.Context
	fetcher Fetcher

	query Query
	page  int
	sort  SortKey

	state   State
	resp    *models.SearchResponse
	respKey Key
	err     error

	cancel  context.CancelFunc
	settled chan struct{} // closed whenever state is not loading
	closed  bool

	onPageChange func(page int)
}

// NewController returns an idle controller. Fetches run on contexts derived
// from ctx; cancelling ctx cancels any in-flight fetch.
func NewController(ctx context.Context, fetcher Fetcher, opts ...Option) *Controller {
	settled := make(chan struct{})
	close(settled)
	c := &Controller{
		base:    ctx,
		fetcher: fetcher,
		query:   Query{ContentType: models.ContentTypeMulti},
		page:    1,
		sort:    SortRelevance,
		state:   StateIdle,
		err:     ErrEmptyQuery,
		settled: settled,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetQuery replaces the query. Any changed field resets the page to 1 and
// starts a fetch; an empty text moves the controller to idle.
func (c *Controller) SetQuery(q Query) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setQueryLocked(normalize(q))
}

// SetContentType changes the content type filter.
func (c *Controller) SetContentType(ct models.ContentType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.query
	q.ContentType = ct
	c.setQueryLocked(normalize(q))
}

// SetPlatformFilter changes the platform filter. "all" and "" clear it.
func (c *Controller) SetPlatformFilter(platform string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.query
	q.Platform = platform
	c.setQueryLocked(normalize(q))
}

// SetSort changes the sort key. Results are re-sorted on read; nothing is
// refetched.
func (c *Controller) SetSort(key SortKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sort = ParseSortKey(string(key))
}

// ChangePage moves to page, clamped to at least 1 and to the known page
// count of the current query. Changing page refetches and runs the page
// change hook. Requesting the current page again retries a failed fetch.
func (c *Controller) ChangePage(page int) {
	c.mu.Lock()
	if c.closed || c.query.IsEmpty() {
		c.mu.Unlock()
		return
	}
	if page < 1 {
		page = 1
	}
	if total := c.knownTotalPagesLocked(); total > 0 && page > total {
		page = total
	}
	if page == c.page && c.state != StateFailed {
		c.mu.Unlock()
		return
	}
	c.page = page
	c.refreshLocked()
	hook := c.onPageChange
	c.mu.Unlock()

	if hook != nil {
		hook(page)
	}
}

// Navigate applies URL parameters in one step. The query comes from q,
// content_type and platform; page and sort are taken as given, so a
// deep link reproduces the state that produced it.
func (c *Controller) Navigate(v url.Values) {
	q := DeriveQuery(v)
	page := parsePage(v.Get("page"))
	if q.IsEmpty() {
		page = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.sort = ParseSortKey(v.Get("sort"))
	if q == c.query && page == c.page {
		return
	}
	c.query = q
	c.page = page
	c.refreshLocked()
}

// URL is the canonical query string for the current state.
func (c *Controller) URL() url.Values {
	c.mu.Lock()
	defer c.mu.Unlock()
	return EncodeURL(c.query, c.page, c.sort)
}

// Query returns the current query.
func (c *Controller) Query() Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// State returns the current fetch state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until the controller is not loading, ctx is done, or the
// controller is closed.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.state != StateLoading || c.closed {
			c.mu.Unlock()
			return nil
		}
		ch := c.settled
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels any in-flight fetch. Later actions are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.state == StateLoading {
		close(c.settled)
	}
}

func (c *Controller) setQueryLocked(q Query) {
	if c.closed || q == c.query {
		return
	}
	c.query = q
	c.page = 1
	c.refreshLocked()
}

func (c *Controller) knownTotalPagesLocked() int {
	if c.resp == nil || !c.respKey.sameQuery(c.query) {
		return 0
	}
	return c.resp.TotalPages
}

// refreshLocked starts the fetch for the current key, superseding any
// fetch in flight. An empty query goes to idle and drops the response.
func (c *Controller) refreshLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if c.query.IsEmpty() {
		c.resp = nil
		c.respKey = Key{}
		c.err = ErrEmptyQuery
		c.transitionLocked(StateIdle)
		return
	}

	key := c.query.key(c.page)
	ctx, cancel := context.WithCancel(c.base)
	c.cancel = cancel
	c.err = nil
	c.transitionLocked(StateLoading)

	go func() {
		resp, err := c.fetcher.Search(ctx, key.Request())
		c.apply(ctx, key, resp, err)
	}()
}

func (c *Controller) apply(ctx context.Context, key Key, resp *models.SearchResponse, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.state != StateLoading || key != c.query.key(c.page) {
		metrics.StaleResponsesDropped.Inc()
		return
	}
	// A fetch for the same key was cancelled and restarted; the newer one
	// will settle the state.
	if err != nil && ctx.Err() != nil && c.base.Err() == nil {
		return
	}

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if err != nil {
		log.Printf("[search] fetch q=%q page=%d content_type=%s failed: %v", key.Text, key.Page, key.ContentType, err)
		c.resp = nil
		c.respKey = Key{}
		c.err = &NetworkError{Key: key, Err: err}
		c.transitionLocked(StateFailed)
		return
	}

	if resp == nil {
		resp = &models.SearchResponse{Page: key.Page}
	}
	c.resp = resp
	c.respKey = key
	c.err = nil
	if len(resp.Results) == 0 {
		c.err = ErrNoResults
	}
	c.transitionLocked(StateLoaded)
}

func (c *Controller) transitionLocked(next State) {
	prev := c.state
	if prev == next {
		return
	}
	switch {
	case next == StateLoading:
		c.settled = make(chan struct{})
	case prev == StateLoading:
		close(c.settled)
	}
	c.state = next
	metrics.SearchStates.WithLabelValues(next.String()).Inc()
}
