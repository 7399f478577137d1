package prepare

import (
	"regexp"
	"strings"

	"github.com/TobiSchelling/gamerec/internal/database"
)

// Filter excludes non-game catalog entries by name.
type Filter struct {
	re *regexp.Regexp
}

// NewFilter matches any of patterns as a case-insensitive substring.
// With no patterns nothing is excluded.
func NewFilter(patterns []string) *Filter {
	var quoted []string
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			quoted = append(quoted, regexp.QuoteMeta(p))
		}
	}
	if len(quoted) == 0 {
		return &Filter{}
	}
	return &Filter{re: regexp.MustCompile("(?i)" + strings.Join(quoted, "|"))}
}

// Excluded reports whether name matches an exclusion pattern.
func (f *Filter) Excluded(name string) bool {
	return f.re != nil && f.re.MatchString(name)
}

// Games returns the games whose names pass the filter, in input order.
func (f *Filter) Games(games []database.Game) []database.Game {
	kept := make([]database.Game, 0, len(games))
	for _, g := range games {
		if !f.Excluded(g.Name) {
			kept = append(kept, g)
		}
	}
	return kept
}

// ReviewsFor keeps reviews whose appid is among games.
func ReviewsFor(reviews []database.Review, games []database.Game) []database.Review {
	ids := make(map[int64]struct{}, len(games))
	for _, g := range games {
		ids[g.AppID] = struct{}{}
	}
	kept := make([]database.Review, 0, len(reviews))
	for _, r := range reviews {
		if _, ok := ids[r.AppID]; ok {
			kept = append(kept, r)
		}
	}
	return kept
}
