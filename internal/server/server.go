package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/gamerec/internal/database"
	"github.com/TobiSchelling/gamerec/internal/logging"
	"github.com/TobiSchelling/gamerec/internal/recommend"
	"github.com/TobiSchelling/gamerec/internal/steam"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

const (
	newsLimit    = 5
	reviewsLimit = 5
	maxTopK      = 50
)

// Recommender answers queries. *recommend.Recommender satisfies it.
type Recommender interface {
	Recommend(ctx context.Context, query string, k int) ([]recommend.Recommendation, error)
	Game(appID int64) (database.Game, bool)
}

// NewsSource fetches per-app news. *steam.Client satisfies it.
type NewsSource interface {
	FetchNews(ctx context.Context, appID int64, limit int) ([]steam.NewsItem, error)
}

// Options configures optional collaborators.
type Options struct {
	TopK int
	// DB, when set, supplies recent reviews on game pages.
	DB *database.DB
	// News, when set, supplies the news list on game pages.
	News NewsSource
	// RequestsPerMinute caps recommendation requests per client IP.
	RequestsPerMinute int
}

// Server is the HTTP front end for recommendations.
type Server struct {
	rec    Recommender
	opts   Options
	pages  map[string]*template.Template
	router chi.Router
}

// New creates a new Server.
func New(rec Recommender, opts Options) (*Server, error) {
	if opts.TopK <= 0 {
		opts.TopK = recommend.DefaultTopK
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 60
	}

	funcMap := template.FuncMap{
		"markdown":  renderMarkdown,
		"headerURL": recommend.HeaderImageURL,
		"short":     recommend.ShortDescription,
		"add":       func(a, b int) int { return a + b },
		"percent":   func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base with its own "title" and "content".
	pageNames := []string{"index.html", "results.html", "game.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{rec: rec, opts: opts, pages: pages}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", s.handleIndex)
	r.Get("/game/{appid}", s.handleGame)
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.opts.RequestsPerMinute, time.Minute))
		r.Get("/recommend", s.handleRecommend)
		r.Get("/api/recommend", s.handleAPIRecommend)
	})

	s.router = r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index.html", map[string]any{})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	recs, err := s.rec.Recommend(r.Context(), query, s.opts.TopK)
	if errors.Is(err, recommend.ErrEmptyQuery) {
		s.render(w, http.StatusBadRequest, "index.html", map[string]any{
			"Warning": "Please enter a description of the game you are looking for.",
		})
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("query", query).Msg("recommendation failed")
		s.render(w, http.StatusInternalServerError, "index.html", map[string]any{
			"Query":   query,
			"Warning": "Recommendations are unavailable right now.",
		})
		return
	}

	s.render(w, http.StatusOK, "results.html", map[string]any{
		"Query":           query,
		"Recommendations": recs,
		"Markdown":        recommend.RenderMarkdown(recs),
	})
}

type apiRecommendation struct {
	AppID       int64   `json:"appid"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       string  `json:"price"`
	ReleaseDate string  `json:"release_date"`
	Tags        string  `json:"tags"`
	HeaderImage string  `json:"header_image"`
	Score       float64 `json:"score"`
}

func (s *Server) handleAPIRecommend(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	k := s.opts.TopK
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTopK {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("k must be between 1 and %d", maxTopK)})
			return
		}
		k = n
	}

	recs, err := s.rec.Recommend(r.Context(), query, k)
	if errors.Is(err, recommend.ErrEmptyQuery) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("api recommendation failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "recommendation failed"})
		return
	}

	out := make([]apiRecommendation, len(recs))
	for i, rec := range recs {
		out[i] = apiRecommendation{
			AppID:       rec.Game.AppID,
			Name:        rec.Game.Name,
			Description: rec.Game.Description,
			Price:       rec.Game.Price,
			ReleaseDate: rec.Game.ReleaseDate,
			Tags:        rec.Game.Tags,
			HeaderImage: recommend.HeaderImageURL(rec.Game.AppID),
			Score:       rec.Score,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": strings.TrimSpace(query), "results": out})
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	appID, err := strconv.ParseInt(chi.URLParam(r, "appid"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	game, ok := s.rec.Game(appID)
	if !ok {
		http.NotFound(w, r)
		return
	}

	data := map[string]any{"Game": game}

	if s.opts.DB != nil {
		reviews, err := s.opts.DB.GetReviewsForGame(appID, reviewsLimit)
		if err != nil {
			logging.Warn().Err(err).Int64("appid", appID).Msg("loading reviews")
		}
		data["Reviews"] = reviews
	}
	if s.opts.News != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		news, err := s.opts.News.FetchNews(ctx, appID, newsLimit)
		cancel()
		if err != nil {
			logging.Warn().Err(err).Int64("appid", appID).Msg("loading news")
		}
		data["News"] = news
	}

	s.render(w, http.StatusOK, "game.html", data)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data map[string]any) {
	// base.html reads these on every page.
	for _, key := range []string{"Query", "Warning"} {
		if _, ok := data[key]; !ok {
			data[key] = ""
		}
	}

	tmpl, ok := s.pages[name]
	if !ok {
		logging.Error().Str("template", name).Msg("template not found")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		logging.Error().Err(err).Str("template", name).Msg("rendering template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("encoding json response")
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", ww.Status()).Dur("duration", time.Since(start)).Msg("request")
	})
}

// Serve listens on 127.0.0.1:port until ctx is cancelled.
func Serve(ctx context.Context, s *Server, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Msgf("Server listening on http://%s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
