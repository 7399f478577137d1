// Package pipeline runs the resumable catalog fetch: list every app, skip
// ids already in the ledger, fetch the rest on a bounded worker pool and
// persist results in batches.
package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TobiSchelling/gamerec/internal/database"
	"github.com/TobiSchelling/gamerec/internal/logging"
	"github.com/TobiSchelling/gamerec/internal/metrics"
	"github.com/TobiSchelling/gamerec/internal/retry"
	"github.com/TobiSchelling/gamerec/internal/steam"
)

// Client fetches catalog data. *steam.Client satisfies it.
type Client interface {
	ListApps(ctx context.Context) ([]steam.App, error)
	FetchDetail(ctx context.Context, appID int64) (*database.Game, error)
	FetchReviews(ctx context.Context, appID int64, count int) []database.Review
}

// Store persists batches. database.FileStore satisfies it.
type Store interface {
	EnsureSchema(ctx context.Context) error
	SaveBatch(ctx context.Context, games []database.Game, reviews []database.Review) error
}

// Ledger records processed ids. *ledger.Ledger satisfies it.
type Ledger interface {
	Contains(id int64) bool
	Append(id int64) error
}

// Config tunes a fetch run.
type Config struct {
	Workers       int           // concurrent fetch units
	BatchSize     int           // games buffered before a store flush
	RateLimit     float64       // completions per second before jitter
	PaceJitterMin time.Duration // added to every pacing sleep
	PaceJitterMax time.Duration
	ReviewCount   int // reviews requested per app
}

// DefaultConfig returns the stock settings: 3 workers, batches of 50,
// one completion per second plus 0.5-1.5s of jitter, 100 reviews per app.
func DefaultConfig() Config {
	return Config{
		Workers:       3,
		BatchSize:     50,
		RateLimit:     1,
		PaceJitterMin: 500 * time.Millisecond,
		PaceJitterMax: 1500 * time.Millisecond,
		ReviewCount:   100,
	}
}

// Result summarizes a fetch run.
type Result struct {
	RunID       string
	Listed      int // ids in the catalog listing
	Skipped     int // already in the ledger
	Queued      int
	Stored      int // units with a detail, buffered and ledgered
	NoResult    int // the store had no usable detail
	Failed      int // exhausted retries or unit errors
	Reviews     int
	Batches     int
	BatchErrors int
}

// Pipeline orchestrates one fetch run.
type Pipeline struct {
	cfg    Config
	client Client
	store  Store
	ledger Ledger

	// Sleep paces completions; defaults to retry.SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
	// Float64 supplies pacing jitter in [0, 1).
	Float64 func() float64
	// OnProgress is called after every completed unit.
	OnProgress func(done, total int)
}

// New creates a pipeline.
func New(cfg Config, client Client, store Store, ledger Ledger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		client:  client,
		store:   store,
		ledger:  ledger,
		Sleep:   retry.SleepContext,
		Float64: rand.Float64,
	}
}

type unit struct {
	appID   int64
	game    *database.Game
	reviews []database.Review
	err     error
}

type batch struct {
	games   []database.Game
	reviews []database.Review
}

// Run executes the fetch. Schema and listing failures abort the run. If ctx
// is cancelled, dispatch stops, completed units are still flushed and the
// context error is returned alongside the partial result.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString()[:8]}
	log := logging.With("run", res.RunID)

	if err := p.store.EnsureSchema(ctx); err != nil {
		return res, fmt.Errorf("ensuring schema: %w", err)
	}

	apps, err := p.client.ListApps(ctx)
	if err != nil {
		return res, fmt.Errorf("listing catalog: %w", err)
	}
	res.Listed = len(apps)

	pending := p.pending(apps, res)
	res.Queued = len(pending)
	log.Info().Int("listed", res.Listed).Int("skipped", res.Skipped).Int("queued", res.Queued).
		Int("workers", p.cfg.Workers).Msg("starting fetch")
	if len(pending) == 0 {
		return res, nil
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := NewWorkerPool(p.cfg.Workers, p.cfg.Workers*2)
	pool.Start(workCtx)
	results := make(chan unit, p.cfg.Workers)

	go func() {
		defer func() {
			pool.Close()
			close(results)
		}()
		for _, id := range pending {
			appID := id
			err := pool.SubmitCtx(workCtx, func(ctx context.Context) error {
				results <- p.process(ctx, appID)
				return nil
			})
			if err != nil {
				return
			}
		}
	}()

	// Flushes must still land after cancellation.
	flushCtx := context.WithoutCancel(ctx)
	var buf batch
	done := 0
	for u := range results {
		done++
		p.collect(u, &buf, res, log)

		if len(buf.games) >= p.cfg.BatchSize {
			p.flush(flushCtx, &buf, res, log)
		}
		if p.OnProgress != nil {
			p.OnProgress(done, len(pending))
		}
		_ = p.Sleep(ctx, p.paceDelay())
	}
	p.flush(flushCtx, &buf, res, log)

	log.Info().Int("stored", res.Stored).Int("no_result", res.NoResult).Int("failed", res.Failed).
		Int("reviews", res.Reviews).Int("batches", res.Batches).Int("batch_errors", res.BatchErrors).
		Msg("fetch complete")

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// pending drops ledgered and duplicate ids, keeping listing order.
func (p *Pipeline) pending(apps []steam.App, res *Result) []int64 {
	seen := make(map[int64]struct{}, len(apps))
	ids := make([]int64, 0, len(apps))
	for _, app := range apps {
		if _, dup := seen[app.AppID]; dup {
			continue
		}
		seen[app.AppID] = struct{}{}
		if p.ledger.Contains(app.AppID) {
			res.Skipped++
			continue
		}
		ids = append(ids, app.AppID)
	}
	return ids
}

// process fetches one id. It runs on a worker goroutine.
func (p *Pipeline) process(ctx context.Context, appID int64) (u unit) {
	u.appID = appID
	defer func() {
		if r := recover(); r != nil {
			u = unit{appID: appID, err: fmt.Errorf("panic processing %d: %v", appID, r)}
		}
	}()

	game, err := p.client.FetchDetail(ctx, appID)
	if err != nil {
		u.err = err
		return u
	}
	if game == nil {
		return u
	}
	u.game = game
	u.reviews = p.client.FetchReviews(ctx, appID, p.cfg.ReviewCount)
	return u
}

// collect buffers a completed unit and records it in the ledger. Only the
// draining goroutine calls it.
func (p *Pipeline) collect(u unit, buf *batch, res *Result, log zerolog.Logger) {
	switch {
	case u.err != nil:
		res.Failed++
		metrics.UnitsProcessed.WithLabelValues("failed").Inc()
		log.Error().Int64("appid", u.appID).Err(u.err).Msg("fetch failed")
		return
	case u.game == nil:
		res.NoResult++
		metrics.UnitsProcessed.WithLabelValues("no_result").Inc()
		return
	}

	buf.games = append(buf.games, *u.game)
	buf.reviews = append(buf.reviews, u.reviews...)
	res.Stored++
	res.Reviews += len(u.reviews)
	metrics.UnitsProcessed.WithLabelValues("stored").Inc()

	// The id is ledgered before its batch commits; a crash in between
	// leaves it recorded but absent from the store.
	if err := p.ledger.Append(u.appID); err != nil {
		log.Error().Int64("appid", u.appID).Err(err).Msg("ledger append failed")
	}
	log.Debug().Int64("appid", u.appID).Str("name", u.game.Name).Int("reviews", len(u.reviews)).Msg("fetched")
}

// flush writes and clears the buffers. A failed batch is logged and dropped.
func (p *Pipeline) flush(ctx context.Context, buf *batch, res *Result, log zerolog.Logger) {
	if len(buf.games) == 0 && len(buf.reviews) == 0 {
		return
	}
	games, reviews := len(buf.games), len(buf.reviews)

	if err := p.store.SaveBatch(ctx, buf.games, buf.reviews); err != nil {
		res.BatchErrors++
		metrics.BatchFlushes.WithLabelValues("error").Inc()
		log.Error().Err(err).Int("games", games).Int("reviews", reviews).Msg("batch save failed, dropping batch")
	} else {
		res.Batches++
		metrics.BatchFlushes.WithLabelValues("ok").Inc()
		metrics.GamesSaved.Add(float64(games))
		metrics.ReviewsSaved.Add(float64(reviews))
		log.Info().Int("games", games).Int("reviews", reviews).Msg("saved batch")
	}

	buf.games = nil
	buf.reviews = nil
}

func (p *Pipeline) paceDelay() time.Duration {
	base := time.Duration(float64(time.Second) / p.cfg.RateLimit)
	spread := p.cfg.PaceJitterMax - p.cfg.PaceJitterMin
	return base + p.cfg.PaceJitterMin + time.Duration(p.Float64()*float64(spread))
}
