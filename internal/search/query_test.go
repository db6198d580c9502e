package search

import (
	"net/url"
	"testing"

	"streamfinder/models"

	"github.com/stretchr/testify/assert"
)

func TestDeriveQuery(t *testing.T) {
	tests := []struct {
		name   string
		params url.Values
		want   Query
	}{
		{
			name:   "defaults",
			params: url.Values{},
			want:   Query{ContentType: models.ContentTypeMulti},
		},
		{
			name:   "all fields",
			params: url.Values{"q": {"batman"}, "content_type": {"movie"}, "platform": {"tubi"}},
			want:   Query{Text: "batman", ContentType: models.ContentTypeMovie, Platform: "tubi"},
		},
		{
			name:   "all clears the platform",
			params: url.Values{"q": {"batman"}, "platform": {"all"}},
			want:   Query{Text: "batman", ContentType: models.ContentTypeMulti},
		},
		{
			name:   "unknown content type falls back to multi",
			params: url.Values{"q": {"x"}, "content_type": {"anime"}},
			want:   Query{Text: "x", ContentType: models.ContentTypeMulti},
		},
		{
			name:   "whitespace only text is empty",
			params: url.Values{"q": {"   \t"}},
			want:   Query{ContentType: models.ContentTypeMulti},
		},
		{
			name:   "text is trimmed and NFC normalised",
			params: url.Values{"q": {"  Ame\u0301lie "}},
			want:   Query{Text: "Am\u00e9lie", ContentType: models.ContentTypeMulti},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveQuery(tc.params))
		})
	}
}

func TestEncodeStateOmitsDefaults(t *testing.T) {
	q := Query{Text: "batman", ContentType: models.ContentTypeMulti}
	assert.Equal(t, "q=batman", EncodeURL(q, 1, SortRelevance).Encode())

	q = Query{Text: "batman", ContentType: models.ContentTypeTV, Platform: "tubi"}
	assert.Equal(t, "content_type=tv&page=3&platform=tubi&q=batman&sort=year", EncodeURL(q, 3, SortYear).Encode())
}

func TestKeyRequestOmitsEmptyPlatform(t *testing.T) {
	k := Query{Text: "batman", ContentType: models.ContentTypeMovie}.key(2)
	v := k.Request().Values()
	assert.Equal(t, "batman", v.Get("q"))
	assert.Equal(t, "2", v.Get("page"))
	assert.Equal(t, "movie", v.Get("content_type"))
	assert.False(t, v.Has("platform"))
}
