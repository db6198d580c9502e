package search

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuery is reported while the query text is empty. No fetch is issued.
	ErrEmptyQuery = errors.New("search: empty query")

	// ErrNoResults is reported for a successful response without items.
	ErrNoResults = errors.New("search: no results")
)

// NetworkError wraps any failure of the fetching layer for one key.
type NetworkError struct {
	Key Key
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("search %q page %d failed: %v", e.Key.Text, e.Key.Page, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ErrorView is the renderer-facing description of an error state.
type ErrorView struct {
	Kind    string `json:"kind"` // validation, network, empty
	Title   string `json:"title"`
	Message string `json:"message"`
}

func classify(err error) *ErrorView {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEmptyQuery):
		return &ErrorView{
			Kind:    "validation",
			Title:   "Search for Movies & TV Shows",
			Message: "Use the search bar above to find your favorite content",
		}
	case errors.Is(err, ErrNoResults):
		return &ErrorView{
			Kind:    "empty",
			Title:   "No Results Found",
			Message: "Try different keywords or check your spelling",
		}
	default:
		return &ErrorView{
			Kind:    "network",
			Title:   "Search Failed",
			Message: "Unable to search content. Please try again.",
		}
	}
}
