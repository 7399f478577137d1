// Package prepare turns the stored catalog into the files the recommender
// serves from: a filtered entry table, the raw embedding matrix, its PCA
// reduction and the fitted PCA model.
package prepare

import (
	"context"
	"fmt"
	"strings"

	"github.com/TobiSchelling/gamerec/internal/database"
	"github.com/TobiSchelling/gamerec/internal/embed"
	"github.com/TobiSchelling/gamerec/internal/features"
	"github.com/TobiSchelling/gamerec/internal/logging"
	"github.com/TobiSchelling/gamerec/internal/textutil"
)

// Source supplies stored games and reviews. *database.DB satisfies it.
type Source interface {
	GetAllGames() ([]database.Game, error)
	GetAllReviews() ([]database.Review, error)
}

// Config controls preparation.
type Config struct {
	ExcludePatterns []string
	Components      int
	EmbedBatchSize  int
}

// Paths lists the output files.
type Paths struct {
	FilteredGames string
	Features      string
	Reduced       string
	PCAMean       string
	PCAComponents string
}

// Result summarizes a preparation run.
type Result struct {
	Games       int
	Kept        int
	Reviews     int
	KeptReviews int
	Dims        int
	Components  int
}

// Run executes the preparation stage end to end.
func Run(ctx context.Context, src Source, emb embed.Embedder, cfg Config, paths Paths) (*Result, error) {
	games, err := src.GetAllGames()
	if err != nil {
		return nil, fmt.Errorf("loading games: %w", err)
	}
	reviews, err := src.GetAllReviews()
	if err != nil {
		return nil, fmt.Errorf("loading reviews: %w", err)
	}

	kept := NewFilter(cfg.ExcludePatterns).Games(games)
	keptReviews := ReviewsFor(reviews, kept)
	res := &Result{Games: len(games), Kept: len(kept), Reviews: len(reviews), KeptReviews: len(keptReviews)}
	logging.Info().Int("games", res.Games).Int("kept", res.Kept).
		Int("reviews", res.Reviews).Int("kept_reviews", res.KeptReviews).Msg("filtered catalog")

	if len(kept) < 2 {
		return res, fmt.Errorf("need at least 2 games after filtering, have %d", len(kept))
	}

	texts := make([]string, len(kept))
	for i := range kept {
		kept[i].Description = textutil.StripHTML(kept[i].Description)
		texts[i] = embeddingText(kept[i])
	}

	logged := 0
	vectors, err := embed.All(ctx, emb, texts, cfg.EmbedBatchSize, func(done int) {
		if done/100 > logged/100 || done == len(texts) {
			logging.Info().Int("done", done).Int("total", len(texts)).Msg("embedding descriptions")
		}
		logged = done
	})
	if err != nil {
		return res, err
	}

	raw, err := features.FromRows(vectors)
	if err != nil {
		return res, fmt.Errorf("building feature matrix: %w", err)
	}
	_, res.Dims = raw.Dims()

	model, reduced, err := features.FitPCA(raw, cfg.Components)
	if err != nil {
		return res, fmt.Errorf("reducing features: %w", err)
	}
	_, res.Components = reduced.Dims()
	logging.Info().Int("rows", len(kept)).Int("dims", res.Dims).Int("components", res.Components).Msg("fitted PCA")

	if err := WriteGames(paths.FilteredGames, kept); err != nil {
		return res, err
	}
	if err := features.SaveMatrix(paths.Features, raw); err != nil {
		return res, err
	}
	if err := features.SaveMatrix(paths.Reduced, reduced); err != nil {
		return res, err
	}
	if err := model.Save(paths.PCAMean, paths.PCAComponents); err != nil {
		return res, err
	}

	logging.Info().Str("table", paths.FilteredGames).Str("reduced", paths.Reduced).Msg("wrote prepared data")
	return res, nil
}

// embeddingText is the description, or the name when the store has none.
func embeddingText(g database.Game) string {
	if strings.TrimSpace(g.Description) != "" {
		return g.Description
	}
	return g.Name
}
