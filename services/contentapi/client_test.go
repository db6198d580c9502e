package contentapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"streamfinder/config"
	"streamfinder/models"
	"streamfinder/services/querycache"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings(baseURL string) config.UpstreamSettings {
	return config.UpstreamSettings{
		BaseURL:                 baseURL,
		TimeoutSeconds:          5,
		RetryAttempts:           2,
		RetryDelayMillis:        1,
		Burst:                   10,
		BreakerFailureThreshold: 3,
		BreakerOpenSeconds:      60,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(testSettings(srv.URL), srv.Client())
	require.NoError(t, err)
	return c, srv
}

const batmanPayload = `{
  "results": [
    {"id": 1, "title": "A", "content_type": "movie", "vote_average": 8, "vote_count": 10, "release_date": "2020-01-01", "genre_names": ["Action"], "platforms": [{"platform": "tubi", "name": "Tubi", "url": "https://tubitv.com/movie/1"}]},
    {"id": 2, "title": "B", "content_type": "movie", "vote_average": 6, "vote_count": 5, "release_date": null, "genre_names": [], "platforms": []}
  ],
  "total_results": 2,
  "page": 1,
  "total_pages": 1,
  "content_type": "movie"
}`

func TestSearchSendsQueryParameters(t *testing.T) {
	var gotQuery map[string][]string
	var gotPath string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(batmanPayload))
	})

	resp, err := c.Search(context.Background(), models.SearchRequest{Query: "batman", Page: 1, ContentType: models.ContentTypeMovie})
	require.NoError(t, err)

	assert.Equal(t, "/api/search", gotPath)
	assert.Equal(t, []string{"batman"}, gotQuery["q"])
	assert.Equal(t, []string{"1"}, gotQuery["page"])
	assert.Equal(t, []string{"movie"}, gotQuery["content_type"])
	_, hasPlatform := gotQuery["platform"]
	assert.False(t, hasPlatform, "platform must be omitted without a filter")

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "A", resp.Results[0].Title)
	assert.Equal(t, "", resp.Results[1].ReleaseDate)
	assert.Equal(t, 1, resp.TotalPages)
	assert.Equal(t, "Tubi", resp.Results[0].Platforms[0].Name)
}

func TestSearchIncludesPlatformFilter(t *testing.T) {
	var platform string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		platform = r.URL.Query().Get("platform")
		_, _ = w.Write([]byte(`{"results":[],"total_results":0,"page":1,"total_pages":0}`))
	})

	_, err := c.Search(context.Background(), models.SearchRequest{Query: "x", Page: 2, Platform: "tubi"})
	require.NoError(t, err)
	assert.Equal(t, "tubi", platform)
}

func TestRetryBudgetIsTwoAttempts(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	_, err := c.Search(context.Background(), models.SearchRequest{Query: "batman"})
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRetryRecoversOnSecondAttempt(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(batmanPayload))
	})

	resp, err := c.Search(context.Background(), models.SearchRequest{Query: "batman"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	})

	_, err := c.PlatformContent(context.Background(), "nowhere", models.ContentTypeMulti, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), hits.Load())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 3; i++ {
		_, err := c.Trending(context.Background(), "all")
		require.Error(t, err)
	}
	before := hits.Load()

	_, err := c.Trending(context.Background(), "all")
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, before, hits.Load(), "open breaker must not reach upstream")
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	for i := 0; i < 5; i++ {
		_, err := c.Search(context.Background(), models.SearchRequest{Query: "x"})
		require.Error(t, err)
		assert.False(t, errors.Is(err, gobreaker.ErrOpenState))
	}
}

func TestDecodeErrorIsReported(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"platforms":`))
	})
	_, err := c.Platforms(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode platforms")
}

func TestPlatformsAndPathEscaping(t *testing.T) {
	var paths []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.EscapedPath())
		switch r.URL.Path {
		case "/api/platforms":
			_, _ = w.Write([]byte(`{"platforms":{"tubi":{"name":"Tubi","base_url":"https://tubitv.com","description":"Free movies","content_types":["movie","tv"],"cast_support":{"chromecast":true,"airplay":true,"dlna":true}}}}`))
		default:
			_, _ = w.Write([]byte(`{"results":[],"total_results":0,"page":3,"total_pages":0}`))
		}
	})

	dir, err := c.Platforms(context.Background())
	require.NoError(t, err)
	p, ok := dir.Lookup("tubi")
	require.True(t, ok)
	assert.True(t, p.CastSupport.DLNA)
	assert.True(t, p.Supports(models.ContentTypeTV))

	_, err = c.PlatformContent(context.Background(), "a/b", models.ContentTypeTV, 3)
	require.NoError(t, err)
	assert.Equal(t, "/api/platforms/a%2Fb", paths[len(paths)-1])
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	_, err := New(config.UpstreamSettings{BaseURL: "/api"}, nil)
	assert.Error(t, err)
}

func TestCachedClientServesRepeatSearchFromCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(batmanPayload))
	}))
	defer srv.Close()

	api, err := New(testSettings(srv.URL), srv.Client())
	require.NoError(t, err)
	cache := querycache.New(querycache.NewMemoryStore(32, time.Hour))
	cached := NewCachedClient(api, cache, PoliciesFromSettings(config.DefaultSettings().Cache))

	req := models.SearchRequest{Query: "batman", Page: 1, ContentType: models.ContentTypeMovie}
	for i := 0; i < 3; i++ {
		resp, err := cached.Search(context.Background(), req)
		require.NoError(t, err)
		assert.Len(t, resp.Results, 2)
	}
	assert.Equal(t, int32(1), hits.Load())

	req.Page = 2
	_, err = cached.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "different page is a different key")
}
