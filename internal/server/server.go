// Package server publishes a library over HTTP in the same JSON protocol the
// remote provider consumes, so one lectern can serve as another's backend.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pders01/lectern/internal/debuglog"
	"github.com/pders01/lectern/internal/library"
	"github.com/pders01/lectern/internal/providers/remote"
	"github.com/pders01/lectern/internal/search"
)

const (
	requestIDHeader        = "X-Request-ID"
	defaultShutdownTimeout = 5 * time.Second
)

// Server serves one library.
type Server struct {
	lib    *library.Library
	router *gin.Engine
}

func New(lib *library.Library) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{lib: lib, router: gin.New()}
	s.router.Use(gin.Recovery(), requestLogger())

	s.router.GET("/health", s.health)
	s.router.GET("/manifest", s.manifest)
	s.router.GET("/texts/:id", s.info)
	s.router.GET("/texts/:id/sections/:section", s.section)
	s.router.GET("/search", s.search)
	return s
}

// Handler exposes the routes, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx ends, then shuts down, waiting at most
// shutdownTimeout for open requests.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		debuglog.Infof("serving on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()

		debuglog.WithFields(map[string]any{
			"request_id": id,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
		}).Debugf("request served")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": len(s.lib.Providers()),
	})
}

func (s *Server) manifest(c *gin.Context) {
	entries, err := s.lib.Catalog(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	resp := remote.ManifestResponse{Texts: make([]remote.TextDoc, len(entries))}
	for i, e := range entries {
		hasText := e.HasText
		resp.Texts[i] = remote.TextDoc{
			ID:           e.ID,
			Abbreviation: e.Abbreviation,
			Name:         e.Name,
			LocalName:    e.LocalName,
			ShortName:    e.ShortName,
			LanguageCode: e.LanguageCode,
			LanguageName: e.LanguageName,
			HasText:      &hasText,
			HasAudio:     e.HasAudio,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) info(c *gin.Context) {
	ctx := c.Request.Context()
	entry, err := s.lib.Lookup(ctx, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown text"})
		return
	}

	infos, err := s.lib.LoadManifests(ctx, entry.ID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	info := infos[entry.ID]
	if info == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "section list unavailable"})
		return
	}
	c.JSON(http.StatusOK, remote.InfoResponse{
		ID:            entry.ID,
		Divisions:     info.Divisions,
		DivisionNames: info.DivisionNames,
		SectionIDs:    info.SectionIDs,
	})
}

func (s *Server) section(c *gin.Context) {
	sec := s.lib.LoadSection(c.Request.Context(), c.Param("id"), c.Param("section"))
	if sec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "section not found"})
		return
	}
	c.JSON(http.StatusOK, remote.SectionResponse{
		ID:       sec.SectionID,
		Title:    sec.Title,
		Content:  sec.Content,
		Format:   sec.Format,
		AudioURL: sec.AudioURL,
	})
}

type matchDoc struct {
	TextID    string  `json:"text_id"`
	SectionID string  `json:"section_id"`
	Position  int     `json:"position"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
}

type skippedDoc struct {
	TextID string `json:"text_id"`
	Error  string `json:"error"`
}

type searchResponse struct {
	Query   string       `json:"query"`
	Terms   []string     `json:"terms"`
	Matches []matchDoc   `json:"matches"`
	Skipped []skippedDoc `json:"skipped,omitempty"`
}

// search answers GET /search?q=...&text=KJV&text=WEB&limit=10&ranked=true.
// Texts may also be given comma separated.
func (s *Server) search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}

	var texts []string
	for _, t := range c.QueryArray("text") {
		texts = append(texts, strings.Split(t, ",")...)
	}

	opts := s.lib.SearchOptions()
	opts.Limit = parseInt(c.Query("limit"), opts.Limit)
	opts.ContextTokens = parseInt(c.Query("context"), opts.ContextTokens)
	if ranked, err := strconv.ParseBool(c.Query("ranked")); err == nil {
		opts.Ranked = ranked
	}

	res, err := s.lib.Search(c.Request.Context(), query, texts, opts)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toSearchResponse(res))
}

func toSearchResponse(res *search.Results) searchResponse {
	out := searchResponse{Query: res.Query, Terms: res.Terms, Matches: make([]matchDoc, len(res.Matches))}
	for i, m := range res.Matches {
		out.Matches[i] = matchDoc(m)
	}
	for _, sk := range res.Skipped {
		out.Skipped = append(out.Skipped, skippedDoc{TextID: sk.TextID, Error: sk.Err.Error()})
	}
	return out
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
