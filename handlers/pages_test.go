package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"streamfinder/config"
	"streamfinder/models"
	"streamfinder/services/contentapi"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContentService struct {
	mu sync.Mutex

	searchResp   *models.SearchResponse
	searchErr    error
	trendingResp *models.TrendingResponse
	trendingErr  error
	directory    *models.PlatformDirectory
	directoryErr error
	platformResp *models.SearchResponse
	platformErr  error
	cast         *models.CastSupportSummary
	health       *models.UpstreamHealth
	healthErr    error

	searches        []models.SearchRequest
	lastPlatformKey string
	lastPlatformCT  models.ContentType
}

func (f *fakeContentService) Search(_ context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, req)
	return f.searchResp, f.searchErr
}

func (f *fakeContentService) Trending(context.Context, string) (*models.TrendingResponse, error) {
	return f.trendingResp, f.trendingErr
}

func (f *fakeContentService) Platforms(context.Context) (*models.PlatformDirectory, error) {
	return f.directory, f.directoryErr
}

func (f *fakeContentService) PlatformContent(_ context.Context, key string, ct models.ContentType, _ int) (*models.SearchResponse, error) {
	f.mu.Lock()
	f.lastPlatformKey, f.lastPlatformCT = key, ct
	f.mu.Unlock()
	return f.platformResp, f.platformErr
}

func (f *fakeContentService) CastSupport(context.Context) (*models.CastSupportSummary, error) {
	return f.cast, nil
}

func (f *fakeContentService) Health(context.Context) (*models.UpstreamHealth, error) {
	return f.health, f.healthErr
}

func (f *fakeContentService) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

func testDirectory() *models.PlatformDirectory {
	return &models.PlatformDirectory{Platforms: map[string]models.Platform{
		"tubi": {Name: "Tubi", BaseURL: "https://tubitv.com", Description: "Free movies and TV",
			ContentTypes: []models.ContentType{models.ContentTypeMovie, models.ContentTypeTV},
			CastSupport:  models.CastSupport{Chromecast: true}},
		"crackle": {Name: "Crackle", BaseURL: "https://crackle.com", Description: "Sony free streaming",
			ContentTypes: []models.ContentType{models.ContentTypeMovie}},
	}}
}

func batmanResults() *models.SearchResponse {
	return &models.SearchResponse{
		Results: []models.ResultItem{
			{ID: 2, Title: "Batman Returns", ContentType: models.ContentTypeMovie, VoteAverage: 6, VoteCount: 1500},
			{ID: 1, Title: "The Dark Knight", ContentType: models.ContentTypeMovie, VoteAverage: 8, VoteCount: 32000, ReleaseDate: "2008-07-16",
				Platforms: []models.PlatformRef{{Platform: "tubi", Name: "Tubi", URL: "https://tubitv.com/movies/1"}}},
		},
		TotalResults: 2,
		Page:         1,
		TotalPages:   1,
	}
}

func newPages(t *testing.T, f *fakeContentService) *PagesHandler {
	t.Helper()
	h, err := NewPagesHandler(f, config.DefaultSettings().UI, 2*time.Second)
	require.NoError(t, err)
	return h
}

func get(h http.HandlerFunc, target string, vars map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestSearchPageIdleWithoutQuery(t *testing.T) {
	f := &fakeContentService{directory: testDirectory()}
	rec := get(newPages(t, f).Search, "/search", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Search for Movies &amp; TV Shows")
	assert.Equal(t, 0, f.searchCount())
}

func TestSearchPageRendersSortedResults(t *testing.T) {
	f := &fakeContentService{directory: testDirectory(), searchResp: batmanResults()}
	rec := get(newPages(t, f).Search, "/search?q=batman&content_type=movie&sort=rating", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Search Results for &#34;batman&#34;")
	assert.Contains(t, body, "2 movies found")
	dark, returns := strings.Index(body, "The Dark Knight"), strings.Index(body, "Batman Returns")
	require.True(t, dark > 0 && returns > 0)
	assert.Less(t, dark, returns, "rating sort puts the higher rated title first")
	assert.Contains(t, body, "★ 4.0 (32.0k)")
	assert.Contains(t, body, `<option value="rating" selected>Highest Rated</option>`)
	assert.Contains(t, body, `<option value="tubi">Tubi</option>`)
	assert.NotContains(t, body, `class="pager"`, "single page has no pager")
	assert.Equal(t, []models.SearchRequest{{Query: "batman", Page: 1, ContentType: models.ContentTypeMovie}}, f.searches)
}

func TestSearchPagePaginates(t *testing.T) {
	resp := batmanResults()
	resp.TotalPages = 5
	resp.Page = 2
	f := &fakeContentService{directory: testDirectory(), searchResp: resp}
	rec := get(newPages(t, f).Search, "/search?q=batman&page=2&platform=tubi", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `class="pager"`)
	assert.Contains(t, body, "/search?page=3&amp;platform=tubi&amp;q=batman#top")
	assert.Contains(t, body, " · on Tubi")
	assert.Equal(t, 2, f.searches[0].Page)
	assert.Equal(t, "tubi", f.searches[0].Platform)
}

func TestSearchPageFailure(t *testing.T) {
	f := &fakeContentService{directory: testDirectory(), searchErr: &contentapi.StatusError{Endpoint: "search", StatusCode: 503, Status: "503 Service Unavailable"}}
	rec := get(newPages(t, f).Search, "/search?q=batman", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Search Failed")
	assert.Contains(t, body, "Unable to search content. Please try again.")
	assert.NotContains(t, body, `class="card"`)
}

func TestSearchPageEmptyResults(t *testing.T) {
	f := &fakeContentService{directoryErr: errors.New("down"), searchResp: &models.SearchResponse{Page: 1}}
	rec := get(newPages(t, f).Search, "/search?q=qwxzzy", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "No Results Found")
	assert.Contains(t, body, "Try different keywords or check your spelling")
	assert.NotContains(t, body, "Search Failed")
}

func TestHomePage(t *testing.T) {
	var items []models.ResultItem
	for i := 0; i < 40; i++ {
		items = append(items, models.ResultItem{ID: int64(i), Title: "Title", ContentType: models.ContentTypeMovie})
	}
	items[0].Title = "Hero Title"
	f := &fakeContentService{directory: testDirectory(), trendingResp: &models.TrendingResponse{Results: items}}
	rec := get(newPages(t, f).Home, "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Hero Title")
	assert.Contains(t, body, "Streaming links from 2 free platforms.")
	assert.Equal(t, 28, strings.Count(body, `class="card"`))
	assert.Equal(t, 8, strings.Count(body, `class="hero-item"`))
}

func TestHomePageTrendingFailure(t *testing.T) {
	f := &fakeContentService{directory: testDirectory(), trendingErr: errors.New("boom")}
	rec := get(newPages(t, f).Home, "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unable to Load Content")
	assert.Contains(t, rec.Body.String(), "Crackle")
}

func TestPlatformsPage(t *testing.T) {
	cast := &models.CastSupportSummary{}
	cast.Capabilities.Chromecast = 1
	cast.Capabilities.TotalPlatforms = 2
	f := &fakeContentService{directory: testDirectory(), cast: cast}
	rec := get(newPages(t, f).Platforms, "/platforms", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Less(t, strings.Index(body, "Crackle"), strings.Index(body, "Tubi"), "platforms are listed by name")
	assert.Contains(t, body, "Chromecast on 1")
}

func TestPlatformsPageFailure(t *testing.T) {
	f := &fakeContentService{directoryErr: errors.New("down")}
	rec := get(newPages(t, f).Platforms, "/platforms", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unable to Load Platforms")
}

func TestPlatformPage(t *testing.T) {
	resp := batmanResults()
	resp.TotalPages = 3
	f := &fakeContentService{directory: testDirectory(), platformResp: resp}
	rec := get(newPages(t, f).Platform, "/platforms/crackle?content_type=movie", map[string]string{"key": "crackle"})

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Sony free streaming")
	assert.Contains(t, body, "/platforms/crackle?content_type=movie&amp;page=2#top")
	assert.NotContains(t, body, ">TV Shows</a>", "crackle has no TV tab")
	assert.Equal(t, "crackle", f.lastPlatformKey)
	assert.Equal(t, models.ContentTypeMovie, f.lastPlatformCT)
}

func TestPlatformPageUnknownKey(t *testing.T) {
	f := &fakeContentService{directory: testDirectory(), platformErr: contentapi.ErrNotFound}
	rec := get(newPages(t, f).Platform, "/platforms/nope", map[string]string{"key": "nope"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page Not Found")
}
