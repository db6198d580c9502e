package models

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Content structures as served by the discovery backend.

// ContentType is the content filter used by search and platform pages.
type ContentType string

const (
	ContentTypeMulti ContentType = "multi"
	ContentTypeMovie ContentType = "movie"
	ContentTypeTV    ContentType = "tv"
)

// ParseContentType maps a raw query value onto a known content type.
// Unknown or empty values fall back to multi.
func ParseContentType(raw string) ContentType {
	switch ContentType(strings.ToLower(strings.TrimSpace(raw))) {
	case ContentTypeMovie:
		return ContentTypeMovie
	case ContentTypeTV:
		return ContentTypeTV
	default:
		return ContentTypeMulti
	}
}

// Label is the human readable name used in headings and tabs.
func (c ContentType) Label() string {
	switch c {
	case ContentTypeMovie:
		return "Movies"
	case ContentTypeTV:
		return "TV Shows"
	default:
		return "Movies & TV Shows"
	}
}

// CastSupport flags which casting protocols a platform (or item) supports.
type CastSupport struct {
	Chromecast bool `json:"chromecast"`
	AirPlay    bool `json:"airplay"`
	DLNA       bool `json:"dlna"`
}

// PlatformRef is a deep link to a title on a streaming platform.
type PlatformRef struct {
	Platform    string       `json:"platform"`
	Name        string       `json:"name"`
	URL         string       `json:"url"`
	Quality     string       `json:"quality,omitempty"`
	Cost        string       `json:"cost,omitempty"`
	Description string       `json:"description,omitempty"`
	CastSupport *CastSupport `json:"cast_support,omitempty"`
}

// ResultItem is a single movie or TV show.
type ResultItem struct {
	ID           int64         `json:"id"`
	ContentType  ContentType   `json:"content_type"` // movie | tv
	Title        string        `json:"title"`
	Overview     string        `json:"overview"`
	PosterPath   string        `json:"poster_path,omitempty"`
	BackdropPath string        `json:"backdrop_path,omitempty"`
	ReleaseDate  string        `json:"release_date,omitempty"`
	FirstAirDate string        `json:"first_air_date,omitempty"` // TV shows
	VoteAverage  float64       `json:"vote_average"`
	VoteCount    int           `json:"vote_count"`
	GenreNames   []string      `json:"genre_names"`
	Platforms    []PlatformRef `json:"platforms"`
	Seasons      *int          `json:"seasons,omitempty"`
	Episodes     *int          `json:"episodes,omitempty"`
	CastSupport  *CastSupport  `json:"cast_support,omitempty"`
}

const dateLayout = "2006-01-02"

// FallbackDate is used for items without a usable release or first air date.
var FallbackDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// EffectiveDate returns the release date, else the first air date, else FallbackDate.
func (r ResultItem) EffectiveDate() time.Time {
	for _, raw := range []string{r.ReleaseDate, r.FirstAirDate} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if t, err := time.Parse(dateLayout, raw); err == nil {
			return t
		}
		return FallbackDate
	}
	return FallbackDate
}

// DisplayDate is the date shown on cards: first air date for TV, release date otherwise.
func (r ResultItem) DisplayDate() string {
	if r.ContentType == ContentTypeTV {
		return r.FirstAirDate
	}
	return r.ReleaseDate
}

// Year returns the display year or "N/A".
func (r ResultItem) Year() string {
	d := strings.TrimSpace(r.DisplayDate())
	if len(d) < 4 {
		return "N/A"
	}
	if _, err := strconv.Atoi(d[:4]); err != nil {
		return "N/A"
	}
	return d[:4]
}

// StarRating converts the 10 point vote average to a 5 point scale.
func (r ResultItem) StarRating() string {
	return strconv.FormatFloat(r.VoteAverage/2, 'f', 1, 64)
}

// ShortVoteCount abbreviates vote counts above a thousand ("1.2k").
func (r ResultItem) ShortVoteCount() string {
	if r.VoteCount >= 1000 {
		return strconv.FormatFloat(float64(r.VoteCount)/1000, 'f', 1, 64) + "k"
	}
	return strconv.Itoa(r.VoteCount)
}

// SeasonLabel returns "N Season(s)" for TV shows with a known season count.
func (r ResultItem) SeasonLabel() string {
	if r.ContentType != ContentTypeTV || r.Seasons == nil || *r.Seasons <= 0 {
		return ""
	}
	if *r.Seasons == 1 {
		return "1 Season"
	}
	return strconv.Itoa(*r.Seasons) + " Seasons"
}

// SearchRequest identifies one page of search results.
type SearchRequest struct {
	Query       string
	Page        int
	ContentType ContentType
	Platform    string
}

// Values encodes the request using the backend's query parameter names.
// The platform parameter is omitted when no filter is set.
func (r SearchRequest) Values() url.Values {
	v := url.Values{}
	v.Set("q", r.Query)
	page := r.Page
	if page < 1 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))
	ct := r.ContentType
	if ct == "" {
		ct = ContentTypeMulti
	}
	v.Set("content_type", string(ct))
	if r.Platform != "" {
		v.Set("platform", r.Platform)
	}
	return v
}

// SearchResponse is one page of search (or platform) results.
type SearchResponse struct {
	Results        []ResultItem `json:"results"`
	TotalResults   int          `json:"total_results"`
	Page           int          `json:"page"`
	TotalPages     int          `json:"total_pages"`
	ContentType    string       `json:"content_type,omitempty"`
	PlatformFilter string       `json:"platform_filter,omitempty"`
}

// TrendingResponse is the landing page payload.
type TrendingResponse struct {
	Results []ResultItem `json:"results"`
}

// Platform describes a free streaming service.
type Platform struct {
	Name         string        `json:"name"`
	BaseURL      string        `json:"base_url"`
	Description  string        `json:"description"`
	ContentTypes []ContentType `json:"content_types"`
	CastSupport  CastSupport   `json:"cast_support"`
}

// Supports reports whether the platform carries the given content type.
// Multi matches every platform.
func (p Platform) Supports(ct ContentType) bool {
	if ct == ContentTypeMulti || ct == "" {
		return true
	}
	for _, c := range p.ContentTypes {
		if c == ct {
			return true
		}
	}
	return false
}

// PlatformDirectory maps platform keys to platforms.
type PlatformDirectory struct {
	Platforms map[string]Platform `json:"platforms"`
}

// PlatformEntry is a keyed platform used for ordered listings.
type PlatformEntry struct {
	Key string
	Platform
}

// Sorted returns the platforms ordered by display name, then key.
func (d *PlatformDirectory) Sorted() []PlatformEntry {
	if d == nil {
		return nil
	}
	entries := make([]PlatformEntry, 0, len(d.Platforms))
	for key, p := range d.Platforms {
		entries = append(entries, PlatformEntry{Key: key, Platform: p})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
		if a != b {
			return a < b
		}
		return entries[i].Key < entries[j].Key
	})
	return entries
}

// Lookup returns the platform for key.
func (d *PlatformDirectory) Lookup(key string) (Platform, bool) {
	if d == nil || key == "" {
		return Platform{}, false
	}
	p, ok := d.Platforms[key]
	return p, ok
}

// CastSupportSummary counts casting support across the directory.
type CastSupportSummary struct {
	Capabilities struct {
		Chromecast     int `json:"chromecast"`
		AirPlay        int `json:"airplay"`
		DLNA           int `json:"dlna"`
		TotalPlatforms int `json:"total_platforms"`
	} `json:"casting_capabilities"`
	SupportedProtocols []string `json:"supported_protocols"`
	TVOptimized        bool     `json:"tv_optimized"`
}

// UpstreamHealth is the backend's health payload.
type UpstreamHealth struct {
	Status         string            `json:"status"`
	Timestamp      string            `json:"timestamp"`
	APIKeys        map[string]string `json:"api_keys,omitempty"`
	PlatformsCount int               `json:"platforms_count"`
	ContentTypes   []string          `json:"content_types,omitempty"`
}
