// Package search turns URL query parameters into search requests, tracks
// page and sort state for one visitor, and projects fetched results into the
// view the renderer paints.
package search

import (
	"net/url"
	"strconv"
	"strings"

	"streamfinder/models"

	"golang.org/x/text/unicode/norm"
)

// PlatformAll is the filter value that clears the platform.
const PlatformAll = "all"

// Query is the search text plus its filters, round-tripped through the URL.
type Query struct {
	Text        string             `json:"q"`
	ContentType models.ContentType `json:"content_type"`
	Platform    string             `json:"platform,omitempty"`
}

// DeriveQuery parses q, content_type and platform. Missing values take their
// defaults: empty text, multi, and no platform.
func DeriveQuery(v url.Values) Query {
	return normalize(Query{
		Text:        v.Get("q"),
		ContentType: models.ContentType(v.Get("content_type")),
		Platform:    v.Get("platform"),
	})
}

func normalize(q Query) Query {
	q.Text = norm.NFC.String(strings.TrimSpace(q.Text))
	q.ContentType = models.ParseContentType(string(q.ContentType))
	q.Platform = normalizePlatform(q.Platform)
	return q
}

func normalizePlatform(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, PlatformAll) {
		return ""
	}
	return raw
}

// IsEmpty reports whether the query has no text to search for.
func (q Query) IsEmpty() bool { return q.Text == "" }

// Key identifies one page of results for a query.
type Key struct {
	Text        string
	Page        int
	ContentType models.ContentType
	Platform    string
}

func (q Query) key(page int) Key {
	return Key{Text: q.Text, Page: page, ContentType: q.ContentType, Platform: q.Platform}
}

// Request converts the key into the content API request.
func (k Key) Request() models.SearchRequest {
	return models.SearchRequest{
		Query:       k.Text,
		Page:        k.Page,
		ContentType: k.ContentType,
		Platform:    k.Platform,
	}
}

func (k Key) sameQuery(q Query) bool {
	return k.Text == q.Text && k.ContentType == q.ContentType && k.Platform == q.Platform
}

// EncodeURL is the canonical URL form of a query, page and sort key.
// Page 1, relevance sort and the empty platform are omitted.
func EncodeURL(q Query, page int, sort SortKey) url.Values {
	v := url.Values{}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	if q.ContentType != "" && q.ContentType != models.ContentTypeMulti {
		v.Set("content_type", string(q.ContentType))
	}
	if q.Platform != "" {
		v.Set("platform", q.Platform)
	}
	if page > 1 {
		v.Set("page", strconv.Itoa(page))
	}
	if sort != "" && sort != SortRelevance {
		v.Set("sort", string(sort))
	}
	return v
}

func parsePage(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}
