// Package recommend ranks catalog entries by cosine similarity between a
// free-text query and the reduced item features.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/TobiSchelling/gamerec/internal/database"
	"github.com/TobiSchelling/gamerec/internal/embed"
	"github.com/TobiSchelling/gamerec/internal/features"
	"github.com/TobiSchelling/gamerec/internal/metrics"
	"github.com/TobiSchelling/gamerec/internal/prepare"
)

// DefaultTopK is the number of results shown per query.
const DefaultTopK = 5

// ErrEmptyQuery is returned for a blank query. No embedding is computed.
var ErrEmptyQuery = errors.New("query is empty")

// Paths locates the prepared files.
type Paths struct {
	FilteredGames string
	Reduced       string
	PCAMean       string
	PCAComponents string
}

// Recommendation is a ranked catalog entry.
type Recommendation struct {
	Game  database.Game `json:"game"`
	Score float64       `json:"score"`
}

// Recommender holds the loaded catalog and features.
type Recommender struct {
	games    []database.Game
	reduced  *mat.Dense
	pca      *features.PCA
	embedder embed.Embedder
}

// New assembles a recommender from in-memory parts. reduced must have one
// row per game, in the same order.
func New(games []database.Game, reduced *mat.Dense, pca *features.PCA, emb embed.Embedder) (*Recommender, error) {
	rows, cols := reduced.Dims()
	if rows != len(games) {
		return nil, fmt.Errorf("feature matrix has %d rows for %d games", rows, len(games))
	}
	if pca != nil {
		if _, out := pca.Dims(); out != cols {
			return nil, fmt.Errorf("pca produces %d components but matrix has %d columns", out, cols)
		}
	}
	return &Recommender{games: games, reduced: reduced, pca: pca, embedder: emb}, nil
}

// Load reads the prepared files.
func Load(paths Paths, emb embed.Embedder) (*Recommender, error) {
	games, err := prepare.ReadGames(paths.FilteredGames)
	if err != nil {
		return nil, err
	}
	reduced, err := features.LoadMatrix(paths.Reduced)
	if err != nil {
		return nil, err
	}
	pca, err := features.LoadPCA(paths.PCAMean, paths.PCAComponents)
	if err != nil {
		return nil, err
	}
	return New(games, reduced, pca, emb)
}

// Len returns the number of catalog entries.
func (r *Recommender) Len() int {
	return len(r.games)
}

// Game returns the entry with appID, if loaded.
func (r *Recommender) Game(appID int64) (database.Game, bool) {
	for _, g := range r.games {
		if g.AppID == appID {
			return g, true
		}
	}
	return database.Game{}, false
}

// Recommend embeds query, projects it into the reduced space and returns
// the k most similar entries.
func (r *Recommender) Recommend(ctx context.Context, query string, k int) ([]Recommendation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		metrics.RecommendRequests.WithLabelValues("empty_query").Inc()
		return nil, ErrEmptyQuery
	}
	start := time.Now()

	vec, err := embed.One(ctx, r.embedder, query)
	if err != nil {
		metrics.RecommendRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if r.pca != nil {
		if vec, err = r.pca.Project(vec); err != nil {
			metrics.RecommendRequests.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("projecting query: %w", err)
		}
	}

	matches := TopK(r.reduced, vec, k)
	if matches == nil && r.Len() > 0 {
		metrics.RecommendRequests.WithLabelValues("error").Inc()
		_, cols := r.reduced.Dims()
		return nil, fmt.Errorf("query vector has %d dimensions, features have %d", len(vec), cols)
	}

	out := make([]Recommendation, len(matches))
	for i, m := range matches {
		out[i] = Recommendation{Game: r.games[m.Row], Score: m.Score}
	}
	metrics.RecommendRequests.WithLabelValues("ok").Inc()
	metrics.RecommendDuration.Observe(time.Since(start).Seconds())
	return out, nil
}
