// Package steam talks to the public Steam storefront endpoints: the app
// catalog, per-app details, user reviews and the per-app news feed.
package steam

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/TobiSchelling/gamerec/internal/database"
	"github.com/TobiSchelling/gamerec/internal/logging"
	"github.com/TobiSchelling/gamerec/internal/metrics"
	"github.com/TobiSchelling/gamerec/internal/retry"
	"github.com/TobiSchelling/gamerec/internal/textutil"
)

const (
	userAgent    = "gamerec/1.0 (game catalog indexer)"
	notAvailable = "N/A"
	maxBodyBytes = 32 << 20
)

// App is one entry of the storefront catalog.
type App struct {
	AppID int64  `json:"appid"`
	Name  string `json:"name"`
}

// Options configures a Client. Empty URLs fall back to the public endpoints.
type Options struct {
	AppListURL string
	DetailsURL string
	ReviewsURL string
	NewsURL    string
	APIKey     string
	Policy     retry.Policy
	HTTPClient *http.Client
}

// Client fetches catalog data from the storefront.
type Client struct {
	appListURL string
	detailsURL string
	reviewsURL string
	newsURL    string
	apiKey     string
	policy     retry.Policy
	client     *http.Client
}

// NewClient creates a storefront client.
func NewClient(opts Options) *Client {
	c := &Client{
		appListURL: opts.AppListURL,
		detailsURL: opts.DetailsURL,
		reviewsURL: strings.TrimRight(opts.ReviewsURL, "/"),
		newsURL:    strings.TrimRight(opts.NewsURL, "/"),
		apiKey:     opts.APIKey,
		policy:     opts.Policy,
		client:     opts.HTTPClient,
	}
	if c.appListURL == "" {
		c.appListURL = "http://api.steampowered.com/ISteamApps/GetAppList/v2/"
	}
	if c.detailsURL == "" {
		c.detailsURL = "https://store.steampowered.com/api/appdetails"
	}
	if c.reviewsURL == "" {
		c.reviewsURL = "https://store.steampowered.com/appreviews"
	}
	if c.newsURL == "" {
		c.newsURL = "https://store.steampowered.com/feeds/news/app"
	}
	if c.policy.MaxAttempts == 0 {
		c.policy = retry.DefaultPolicy()
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// HasAPIKey reports whether a key was configured. No endpoint uses it.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// ListApps returns the full storefront catalog. It is not retried.
func (c *Client) ListApps(ctx context.Context) ([]App, error) {
	body, status, err := c.get(ctx, c.appListURL)
	if err != nil {
		return nil, fmt.Errorf("fetching app list: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetching app list: HTTP %d", status)
	}

	var payload struct {
		AppList struct {
			Apps []App `json:"apps"`
		} `json:"applist"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding app list: %w", err)
	}

	logging.Info().Int("apps", len(payload.AppList.Apps)).Msg("fetched app list")
	return payload.AppList.Apps, nil
}

// errThrottled marks an HTTP 429 response.
var errThrottled = errors.New("rate limited (HTTP 429)")

type detailPayload struct {
	Name             string `json:"name"`
	ShortDescription string `json:"short_description"`
	AboutTheGame     string `json:"about_the_game"`
	PriceOverview    *struct {
		FinalFormatted string `json:"final_formatted"`
	} `json:"price_overview"`
	ReleaseDate *struct {
		Date string `json:"date"`
	} `json:"release_date"`
	Developers []string `json:"developers"`
	Publishers []string `json:"publishers"`
	Genres     []struct {
		Description string `json:"description"`
	} `json:"genres"`
}

// FetchDetail returns the catalog entry for appID, or nil when the store has
// no usable record. Transient failures are retried per the client policy;
// exhausting them returns an error wrapping retry.ErrExhausted.
func (c *Client) FetchDetail(ctx context.Context, appID int64) (*database.Game, error) {
	endpoint := c.detailsURL + "?" + url.Values{"appids": {strconv.FormatInt(appID, 10)}}.Encode()

	policy := c.policy
	policy.OnRetry = func(attempt int, throttled bool, delay time.Duration, reason error) {
		if throttled {
			metrics.FetchRetries.WithLabelValues("rate_limited").Inc()
			logging.Warn().Int64("appid", appID).Int("attempt", attempt+1).
				Dur("backoff", delay).Msg("rate limited, backing off")
			return
		}
		metrics.FetchRetries.WithLabelValues("transport").Inc()
		logging.Warn().Int64("appid", appID).Int("attempt", attempt+1).
			Dur("backoff", delay).Err(reason).Msg("detail fetch failed, retrying")
	}

	game, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) retry.Outcome[*database.Game] {
		logging.Debug().Int64("appid", appID).Int("attempt", attempt+1).Msg("fetching details")
		return c.detailAttempt(ctx, appID, endpoint)
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			logging.Error().Int64("appid", appID).Err(err).Msg("giving up on app details")
		}
		return nil, err
	}
	return game, nil
}

func (c *Client) detailAttempt(ctx context.Context, appID int64, endpoint string) retry.Outcome[*database.Game] {
	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		metrics.DetailRequests.WithLabelValues("transport").Inc()
		return retry.Retry[*database.Game](err)
	}
	if status == http.StatusTooManyRequests {
		metrics.DetailRequests.WithLabelValues("rate_limited").Inc()
		return retry.Throttle[*database.Game](errThrottled)
	}
	if status < 200 || status >= 300 {
		metrics.DetailRequests.WithLabelValues("bad_status").Inc()
		return retry.Retry[*database.Game](fmt.Errorf("HTTP %d", status))
	}

	trimmed := bytes.TrimSpace(body)
	if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		metrics.DetailRequests.WithLabelValues("not_found").Inc()
		logging.Warn().Int64("appid", appID).Msg("no details returned")
		return retry.Success[*database.Game](nil)
	}

	var envelope map[string]struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		metrics.DetailRequests.WithLabelValues("decode").Inc()
		return retry.Retry[*database.Game](fmt.Errorf("decoding details: %w", err))
	}

	entry, ok := envelope[strconv.FormatInt(appID, 10)]
	if !ok || !entry.Success {
		metrics.DetailRequests.WithLabelValues("not_found").Inc()
		logging.Warn().Int64("appid", appID).Msg("store reported no details")
		return retry.Success[*database.Game](nil)
	}

	var data detailPayload
	if err := json.Unmarshal(entry.Data, &data); err != nil {
		metrics.DetailRequests.WithLabelValues("decode").Inc()
		return retry.Retry[*database.Game](fmt.Errorf("decoding detail data: %w", err))
	}

	metrics.DetailRequests.WithLabelValues("ok").Inc()
	return retry.Success(c.toGame(appID, &data))
}

func (c *Client) toGame(appID int64, d *detailPayload) *database.Game {
	g := &database.Game{
		AppID:       appID,
		Name:        d.Name,
		Description: d.ShortDescription,
		Price:       notAvailable,
		ReleaseDate: notAvailable,
		Developer:   first(d.Developers),
		Publisher:   first(d.Publishers),
	}
	if d.PriceOverview != nil {
		g.Price = d.PriceOverview.FinalFormatted
	}
	if d.ReleaseDate != nil {
		g.ReleaseDate = d.ReleaseDate.Date
	}

	genres := make([]string, 0, len(d.Genres))
	for _, genre := range d.Genres {
		genres = append(genres, genre.Description)
	}
	g.Tags = strings.Join(genres, ", ")

	if strings.TrimSpace(g.Description) == "" && d.AboutTheGame != "" {
		pageURL, _ := url.Parse(fmt.Sprintf("https://store.steampowered.com/app/%d", appID))
		g.Description = textutil.ExtractText(d.AboutTheGame, pageURL)
	}
	return g
}

func first(values []string) string {
	if len(values) == 0 || values[0] == "" {
		return notAvailable
	}
	return values[0]
}

// FetchReviews returns up to count recent reviews for appID. It makes a
// single attempt; any failure is logged and yields no reviews.
func (c *Client) FetchReviews(ctx context.Context, appID int64, count int) []database.Review {
	params := url.Values{
		"json":         {"1"},
		"num_per_page": {strconv.Itoa(count)},
	}
	endpoint := fmt.Sprintf("%s/%d?%s", c.reviewsURL, appID, params.Encode())

	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		metrics.ReviewRequests.WithLabelValues("transport").Inc()
		logging.Error().Int64("appid", appID).Err(err).Msg("review fetch failed")
		return nil
	}
	if status != http.StatusOK {
		metrics.ReviewRequests.WithLabelValues("bad_status").Inc()
		logging.Error().Int64("appid", appID).Int("status", status).Msg("review fetch failed")
		return nil
	}

	var payload struct {
		Reviews *[]struct {
			Review           string `json:"review"`
			VotedUp          bool   `json:"voted_up"`
			TimestampCreated int64  `json:"timestamp_created"`
			Author           struct {
				PlaytimeForever      int64 `json:"playtime_forever"`
				PlaytimeLastTwoWeeks int64 `json:"playtime_last_two_weeks"`
				NumReviews           int64 `json:"num_reviews"`
			} `json:"author"`
		} `json:"reviews"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.ReviewRequests.WithLabelValues("decode").Inc()
		logging.Error().Int64("appid", appID).Err(err).Msg("review decode failed")
		return nil
	}
	if payload.Reviews == nil {
		metrics.ReviewRequests.WithLabelValues("missing").Inc()
		logging.Warn().Int64("appid", appID).Msg("no reviews field in response")
		return nil
	}

	reviews := make([]database.Review, 0, len(*payload.Reviews))
	for _, r := range *payload.Reviews {
		reviews = append(reviews, database.Review{
			AppID:                appID,
			Text:                 r.Review,
			VotedUp:              r.VotedUp,
			TimestampCreated:     r.TimestampCreated,
			PlaytimeForever:      r.Author.PlaytimeForever,
			PlaytimeLastTwoWeeks: r.Author.PlaytimeLastTwoWeeks,
			AuthorNumReviews:     r.Author.NumReviews,
		})
	}
	metrics.ReviewRequests.WithLabelValues("ok").Inc()
	logging.Debug().Int64("appid", appID).Int("reviews", len(reviews)).Msg("fetched reviews")
	return reviews
}

// get performs a GET and returns the body and status code.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading body: %w", err)
	}
	return body, resp.StatusCode, nil
}
