package search

import (
	"streamfinder/models"
)

// View is everything a renderer needs to paint the search page.
type View struct {
	State        State               `json:"state"`
	Query        Query               `json:"query"`
	Page         int                 `json:"page"`
	Sort         SortKey             `json:"sort"`
	Results      []models.ResultItem `json:"results"`
	TotalResults int                 `json:"total_results"`
	TotalPages   int                 `json:"total_pages"`
	Pagination   *Pagination         `json:"pagination,omitempty"`
	Error        *ErrorView          `json:"error,omitempty"`
	// Stale marks results that belong to the previous key while the
	// current one loads.
	Stale bool   `json:"stale"`
	URL   string `json:"url"`
}

// Loading reports whether a fetch is in flight.
func (v View) Loading() bool { return v.State == StateLoading }

// View snapshots the controller. Results are sorted on every call.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:   c.state,
		Query:   c.query,
		Page:    c.page,
		Sort:    c.sort,
		Results: []models.ResultItem{},
		Error:   classify(c.err),
		URL:     EncodeURL(c.query, c.page, c.sort).Encode(),
	}
	if c.resp == nil {
		return v
	}

	v.Stale = c.state == StateLoading
	if len(c.resp.Results) > 0 {
		v.Results = SortResults(c.resp.Results, c.sort)
	}
	v.TotalResults = c.resp.TotalResults
	v.TotalPages = c.resp.TotalPages
	v.Pagination = BuildPagination(c.page, c.resp.TotalPages)
	return v
}
