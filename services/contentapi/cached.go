package contentapi

import (
	"context"
	"strconv"
	"time"

	"streamfinder/config"
	"streamfinder/models"
	"streamfinder/services/querycache"
)

// Policies groups the cache policy per request class.
type Policies struct {
	Search    querycache.Policy
	Trending  querycache.Policy
	Platforms querycache.Policy
}

// PoliciesFromSettings derives cache policies from configuration.
func PoliciesFromSettings(cfg config.CacheSettings) Policies {
	retention := time.Duration(cfg.RetentionMinutes) * time.Minute
	return Policies{
		Search:    querycache.Policy{Class: "search", StaleTime: time.Duration(cfg.SearchStaleMinutes) * time.Minute, CacheTime: retention},
		Trending:  querycache.Policy{Class: "trending", StaleTime: time.Duration(cfg.TrendingStaleMinutes) * time.Minute, CacheTime: retention},
		Platforms: querycache.Policy{Class: "platforms", StaleTime: time.Duration(cfg.PlatformsStaleMinutes) * time.Minute, CacheTime: retention},
	}
}

// CachedClient serves content API calls through the request cache.
type CachedClient struct {
	api      *Client
	cache    *querycache.Cache
	policies Policies
}

func NewCachedClient(api *Client, cache *querycache.Cache, policies Policies) *CachedClient {
	return &CachedClient{api: api, cache: cache, policies: policies}
}

func (c *CachedClient) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	v := req.Values()
	key := querycache.Key("search", v.Get("q"), v.Get("page"), v.Get("content_type"), v.Get("platform"))
	return querycache.Fetch(ctx, c.cache, key, c.policies.Search, func(ctx context.Context) (*models.SearchResponse, error) {
		return c.api.Search(ctx, req)
	})
}

func (c *CachedClient) Trending(ctx context.Context, contentType string) (*models.TrendingResponse, error) {
	key := querycache.Key("trending", contentType)
	return querycache.Fetch(ctx, c.cache, key, c.policies.Trending, func(ctx context.Context) (*models.TrendingResponse, error) {
		return c.api.Trending(ctx, contentType)
	})
}

func (c *CachedClient) Platforms(ctx context.Context) (*models.PlatformDirectory, error) {
	key := querycache.Key("platforms", "directory")
	return querycache.Fetch(ctx, c.cache, key, c.policies.Platforms, func(ctx context.Context) (*models.PlatformDirectory, error) {
		return c.api.Platforms(ctx)
	})
}

func (c *CachedClient) PlatformContent(ctx context.Context, platformKey string, contentType models.ContentType, page int) (*models.SearchResponse, error) {
	key := querycache.Key("platform_content", platformKey, string(contentType), strconv.Itoa(page))
	return querycache.Fetch(ctx, c.cache, key, c.policies.Search, func(ctx context.Context) (*models.SearchResponse, error) {
		return c.api.PlatformContent(ctx, platformKey, contentType, page)
	})
}

func (c *CachedClient) CastSupport(ctx context.Context) (*models.CastSupportSummary, error) {
	key := querycache.Key("cast_support", "summary")
	return querycache.Fetch(ctx, c.cache, key, c.policies.Platforms, func(ctx context.Context) (*models.CastSupportSummary, error) {
		return c.api.CastSupport(ctx)
	})
}

// Health is never cached.
func (c *CachedClient) Health(ctx context.Context) (*models.UpstreamHealth, error) {
	return c.api.Health(ctx)
}
