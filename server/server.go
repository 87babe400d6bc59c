// Package server exposes the blackboard processing pipeline over HTTP:
// synchronous and streaming text processing plus the observability surface
// (health, system status, agent status, metrics).
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/strongafter/assistant/blackboard"
	"github.com/strongafter/assistant/catalog"
	"github.com/strongafter/assistant/internal/profile"
	"github.com/strongafter/assistant/metrics"
)

// Server hosts the HTTP API in front of one processing engine.
type Server struct {
	echo     *echo.Echo
	profile  *profile.Profile
	engine   *blackboard.Engine
	catalog  *catalog.Catalog
	exporter *metrics.Exporter

	active int64
}

// NewServer wires routes and middleware around the engine.
func NewServer(p *profile.Profile, engine *blackboard.Engine, cat *catalog.Catalog, exporter *metrics.Exporter) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("http: request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"http://localhost:4200", "http://localhost:4201", "http://localhost:4202"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))

	s := &Server{
		echo:     e,
		profile:  p,
		engine:   engine,
		catalog:  cat,
		exporter: exporter,
	}

	api := e.Group("/api")
	api.GET("/health", s.health)
	api.POST("/process-text", s.processText)
	api.POST("/process-text-stream", s.processTextStream)
	api.GET("/system-status", s.systemStatus)
	api.GET("/agents/status", s.agentsStatus)
	api.GET("/metrics", s.metricsJSON)
	api.GET("/parsed-book", s.parsedBook)

	e.GET("/metrics", echo.WrapHandler(exporter.Handler()))

	return s
}

// Start blocks serving HTTP until Shutdown or failure.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	slog.Info("server: listening", "addr", addr, "version", s.profile.Version)
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		slog.Error("server: shutdown failed", "error", err)
	}
	slog.Info("server: stopped")
}

type processRequest struct {
	Text     string `json:"text"`
	Strategy string `json:"strategy,omitempty"`
}

// formattedTheme augments a scored theme with the fields the frontend
// expects on every returned theme.
type formattedTheme struct {
	catalog.ScoredTheme
	IsRelevant bool    `json:"is_relevant"`
	Score      float64 `json:"score"`
}

type processResponse struct {
	Original          string                       `json:"original"`
	SessionID         string                       `json:"session_id"`
	Themes            []formattedTheme             `json:"themes"`
	Summary           string                       `json:"summary"`
	ProcessingTime    float64                      `json:"processing_time"`
	QualityScore      float64                      `json:"quality_score"`
	BlackboardMetrics blackboard.BoardMetrics      `json:"blackboard_metrics"`
	BookMetadata      map[string]catalog.BookMeta  `json:"book_metadata"`
	StreamingUpdates  []blackboard.StreamingUpdate `json:"streaming_updates,omitempty"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"overall":    "healthy",
		"version":    s.profile.Version,
		"ai_enabled": s.profile.IsAIEnabled(),
		"themes":     len(s.catalog.Themes),
		"timestamp":  time.Now().Unix(),
	})
}

func (s *Server) processText(c echo.Context) error {
	var req processRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Text) == "" {
		slog.Warn("server: empty text in process request")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No text provided"})
	}

	result := s.run(c.Request().Context(), req)
	if !result.Success {
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"error":           "Error processing text with AI",
			"details":         result.Error,
			"processing_time": result.ProcessingTime.Seconds(),
		})
	}

	return c.JSON(http.StatusOK, s.formatResult(req.Text, result))
}

// processTextStream reports coarse progress as server-sent events while the
// session runs, ending with the complete result payload.
func (s *Server) processTextStream(c echo.Context) error {
	var req processRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	if strings.TrimSpace(req.Text) == "" {
		writeEvent(resp, map[string]any{"type": "error", "message": "No text provided"})
		return nil
	}

	writeEvent(resp, map[string]any{"type": "status", "message": "Starting analysis...", "progress": 10})
	writeEvent(resp, map[string]any{"type": "status", "message": "Processing with AI agents...", "progress": 50})

	result := s.run(c.Request().Context(), req)

	if !result.Success {
		writeEvent(resp, map[string]any{"type": "error", "message": result.Error})
		return nil
	}

	writeEvent(resp, map[string]any{"type": "status", "message": "Generating summary...", "progress": 80})
	writeEvent(resp, map[string]any{
		"type":     "complete",
		"progress": 100,
		"data":     s.formatResult(req.Text, result),
	})
	return nil
}

func writeEvent(resp *echo.Response, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("server: marshal stream event", "error", err)
		return
	}
	fmt.Fprintf(resp, "data: %s\n\n", data)
	resp.Flush()
}

func (s *Server) run(ctx context.Context, req processRequest) blackboard.SessionResult {
	strategy := blackboard.Strategy(req.Strategy)
	if strategy == "" {
		strategy = blackboard.Strategy(s.profile.Strategy)
	}

	s.exporter.SetActiveSessions(int(atomic.AddInt64(&s.active, 1)))
	defer func() {
		s.exporter.SetActiveSessions(int(atomic.AddInt64(&s.active, -1)))
	}()

	result := s.engine.Run(ctx, req.Text, strategy)
	s.exporter.ObserveSession(string(strategy), result)
	return result
}

func (s *Server) formatResult(original string, result blackboard.SessionResult) processResponse {
	themes := make([]formattedTheme, len(result.Themes))
	for i, theme := range result.Themes {
		themes[i] = formattedTheme{
			ScoredTheme: theme,
			IsRelevant:  true,
			Score:       theme.RelevanceScore,
		}
	}

	return processResponse{
		Original:          original,
		SessionID:         result.SessionID,
		Themes:            themes,
		Summary:           result.Summary,
		ProcessingTime:    result.ProcessingTime.Seconds(),
		QualityScore:      result.QualityScore,
		BlackboardMetrics: result.BoardMetrics,
		BookMetadata:      s.catalog.Books,
		StreamingUpdates:  result.StreamingUpdates,
	}
}

func (s *Server) systemStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"blackboard": s.engine.Board().StateSummary(),
		"engine":     s.engine.Metrics(),
		"version":    s.profile.Version,
		"timestamp":  time.Now().Unix(),
	})
}

func (s *Server) agentsStatus(c echo.Context) error {
	statuses := s.engine.AgentStatuses()
	return c.JSON(http.StatusOK, map[string]any{
		"agents":       statuses,
		"total_agents": len(statuses),
		"timestamp":    time.Now().Unix(),
	})
}

func (s *Server) metricsJSON(c echo.Context) error {
	agents := map[string]blackboard.Stats{}
	for name, status := range s.engine.AgentStatuses() {
		agents[name] = status.Stats
	}
	return c.JSON(http.StatusOK, map[string]any{
		"blackboard": s.engine.Board().Metrics(),
		"engine":     s.engine.Metrics(),
		"agents":     agents,
	})
}

// parsedBook serves the first catalog book split into sections, kept for
// frontend compatibility.
func (s *Server) parsedBook(c echo.Context) error {
	booksDir := filepath.Join(s.profile.Data, "books")
	entries, err := os.ReadDir(booksDir)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(booksDir, entry.Name()))
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		sections := catalog.ParseSections(content)
		for i := range sections {
			sections[i].Filename = entry.Name()
		}
		return c.JSON(http.StatusOK, sections)
	}

	return c.JSON(http.StatusNotFound, map[string]string{"error": "No markdown files found"})
}
