package steam

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/gamerec/internal/retry"
)

type sleepRecorder struct {
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.sleeps = append(s.sleeps, d)
	return nil
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rec := &sleepRecorder{}
	policy := retry.DefaultPolicy()
	policy.Sleep = rec.sleep
	policy.Float64 = func() float64 { return 0 }

	return NewClient(Options{
		AppListURL: srv.URL + "/ISteamApps/GetAppList/v2/",
		DetailsURL: srv.URL + "/api/appdetails",
		ReviewsURL: srv.URL + "/appreviews",
		NewsURL:    srv.URL + "/feeds/news/app",
		Policy:     policy,
	}), rec
}

const detailJSON = `{"10": {"success": true, "data": {
	"name": "Counter-Strike",
	"short_description": "Play the world's number 1 online action game.",
	"price_overview": {"final_formatted": "$9.99"},
	"release_date": {"coming_soon": false, "date": "1 Nov, 2000"},
	"developers": ["Valve", "Other"],
	"publishers": ["Valve"],
	"genres": [{"id": "1", "description": "Action"}, {"id": "2", "description": "Multiplayer"}]
}}}`

func TestListApps(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ISteamApps/GetAppList/v2/", r.URL.Path)
		fmt.Fprint(w, `{"applist": {"apps": [{"appid": 10, "name": "Counter-Strike"}, {"appid": 20, "name": "TFC"}]}}`)
	}))

	apps, err := c.ListApps(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, App{AppID: 20, Name: "TFC"}, apps[1])
}

func TestListAppsFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.ListApps(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchDetail(t *testing.T) {
	c, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("appids"))
		fmt.Fprint(w, detailJSON)
	}))

	g, err := c.FetchDetail(context.Background(), 10)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, int64(10), g.AppID)
	assert.Equal(t, "Counter-Strike", g.Name)
	assert.Equal(t, "$9.99", g.Price)
	assert.Equal(t, "1 Nov, 2000", g.ReleaseDate)
	assert.Equal(t, "Valve", g.Developer)
	assert.Equal(t, "Valve", g.Publisher)
	assert.Equal(t, "Action, Multiplayer", g.Tags)
	assert.Empty(t, rec.sleeps)
}

func TestFetchDetailDefaults(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"70": {"success": true, "data": {"name": "Half-Life", "short_description": "x", "developers": []}}}`)
	}))

	g, err := c.FetchDetail(context.Background(), 70)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "N/A", g.Price)
	assert.Equal(t, "N/A", g.ReleaseDate)
	assert.Equal(t, "N/A", g.Developer)
	assert.Equal(t, "N/A", g.Publisher)
	assert.Equal(t, "", g.Tags)
}

func TestFetchDetailFallsBackToAboutText(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"5": {"success": true, "data": {"name": "Quiet", "short_description": "",
			"about_the_game": "<h2>Story</h2><p>A calm &amp; quiet game.</p>"}}}`)
	}))

	g, err := c.FetchDetail(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "Story A calm & quiet game.", g.Description)
}

func TestFetchDetailNotSuccessful(t *testing.T) {
	var calls atomic.Int32
	c, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"99": {"success": false, "data": []}}`)
	}))

	g, err := c.FetchDetail(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, g)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, rec.sleeps)
}

func TestFetchDetailNullBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "null")
	}))

	g, err := c.FetchDetail(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestFetchDetailServerErrorExhausts(t *testing.T) {
	var calls atomic.Int32
	c, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	g, err := c.FetchDetail(context.Background(), 10)
	assert.Nil(t, g)
	require.True(t, errors.Is(err, retry.ErrExhausted))
	assert.Equal(t, int32(5), calls.Load())

	require.Len(t, rec.sleeps, 4)
	for i := 1; i < len(rec.sleeps); i++ {
		assert.GreaterOrEqual(t, rec.sleeps[i], rec.sleeps[i-1])
	}
	assert.Less(t, rec.sleeps[0], 5*time.Second)
}

func TestFetchDetailThrottledScalesBackoff(t *testing.T) {
	var calls atomic.Int32
	c, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, detailJSON)
	}))

	g, err := c.FetchDetail(context.Background(), 10)
	require.NoError(t, err)
	require.NotNil(t, g)
	require.Len(t, rec.sleeps, 1)
	assert.Equal(t, 30*time.Second+500*time.Millisecond, rec.sleeps[0])
}

func TestFetchDetailTransportErrorUsesStandardStep(t *testing.T) {
	var calls atomic.Int32
	c, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Hijack and drop the connection to force a transport error.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		fmt.Fprint(w, detailJSON)
	}))

	g, err := c.FetchDetail(context.Background(), 10)
	require.NoError(t, err)
	require.NotNil(t, g)
	require.Len(t, rec.sleeps, 1)
	assert.Equal(t, time.Second+500*time.Millisecond, rec.sleeps[0])
}

func TestFetchReviews(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/appreviews/10", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("json"))
		assert.Equal(t, "100", r.URL.Query().Get("num_per_page"))
		fmt.Fprint(w, `{"success": 1, "reviews": [
			{"recommendationid": "1", "review": "Classic", "voted_up": true, "timestamp_created": 1600000000,
			 "author": {"steamid": "x", "num_reviews": 3, "playtime_forever": 5000, "playtime_last_two_weeks": 12}},
			{"recommendationid": "2", "review": "Meh", "voted_up": false, "timestamp_created": 1600000100,
			 "author": {"num_reviews": 1, "playtime_forever": 10, "playtime_last_two_weeks": 0}}
		]}`)
	}))

	reviews := c.FetchReviews(context.Background(), 10, 100)
	require.Len(t, reviews, 2)
	assert.Equal(t, int64(10), reviews[0].AppID)
	assert.Equal(t, "Classic", reviews[0].Text)
	assert.True(t, reviews[0].VotedUp)
	assert.Equal(t, int64(5000), reviews[0].PlaytimeForever)
	assert.Equal(t, int64(12), reviews[0].PlaytimeLastTwoWeeks)
	assert.Equal(t, int64(3), reviews[0].AuthorNumReviews)
	assert.False(t, reviews[1].VotedUp)
}

func TestFetchReviewsBestEffort(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "{not json")
		},
		"missing reviews": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"success": 2}`)
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				h(w, r)
			}))
			assert.Empty(t, c.FetchReviews(context.Background(), 10, 100))
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestFetchNews(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/feeds/news/app/10/", r.URL.Path)
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>News</title>
<item><title>Patch 1.1</title><link>https://example.com/1</link>
<pubDate>Mon, 02 Jan 2023 15:04:05 GMT</pubDate><description>&lt;p&gt;Fixed &amp;amp; tuned.&lt;/p&gt;</description></item>
<item><title>Patch 1.0</title><link>https://example.com/0</link></item>
<item><title></title><link>https://example.com/skip</link></item>
</channel></rss>`)
	}))

	items, err := c.FetchNews(context.Background(), 10, 5)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Patch 1.1", items[0].Title)
	assert.Equal(t, "2023-01-02", items[0].PublishedDate)
	assert.Equal(t, "Fixed & tuned.", items[0].Summary)
	assert.Equal(t, "", items[1].PublishedDate)
}

func TestFetchNewsLimit(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>N</title>`)
		for i := 0; i < 10; i++ {
			fmt.Fprintf(&b, `<item><title>Post %d</title><link>https://example.com/%d</link></item>`, i, i)
		}
		b.WriteString(`</channel></rss>`)
		fmt.Fprint(w, b.String())
	}))

	items, err := c.FetchNews(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestHasAPIKey(t *testing.T) {
	assert.False(t, NewClient(Options{}).HasAPIKey())
	assert.True(t, NewClient(Options{APIKey: "k"}).HasAPIKey())
}
