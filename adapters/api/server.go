// Package api serves the run ledger over HTTP and, when enabled, launches runs and streams their stage events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"eegprep/domain/core"
	"eegprep/domain/run"
	apperrors "eegprep/internal/errors"
	"eegprep/ports"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// defaultDuration is the synthetic recording length when a launch request gives none.
const defaultDuration = 180

// Server represents the ledger API server
type Server struct {
	router *gin.Engine
	reader ports.LedgerReaderPort
	launch Launcher
}

// LaunchRequest asks for a pipeline run over a synthetic recording. Params
// is a JSON parameter object overlaid on the defaults by the launcher.
type LaunchRequest struct {
	Duration float64         `json:"duration"`
	Seed     int64           `json:"seed"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// RunJob executes an accepted launch. It is called on its own goroutine.
type RunJob func(ctx context.Context) error

// Launcher checks req and returns the job that runs it. An error rejects
// the request with 400 before anything is started.
type Launcher func(req LaunchRequest) (RunJob, error)

// NewServer creates a server over reader. mode is a gin mode ("debug",
// "release" or "test"); empty keeps gin's default.
func NewServer(reader ports.LedgerReaderPort, mode string) *Server {
	if mode != "" {
		gin.SetMode(mode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if gin.Mode() != gin.TestMode {
		router.Use(gin.Logger())
	}
	s := &Server{router: router, reader: reader}
	s.setupRoutes()
	return s
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/runs", s.handleListRuns)
	s.router.GET("/runs/:id", s.handleGetRun)
	s.router.GET("/runs/:id/artifacts", s.handleRunArtifacts)
	s.router.GET("/artifacts/:id", s.handleGetArtifact)
}

// EnableRuns adds GET /events, streaming stage events from hub, and
// POST /runs, which hands requests to launch. Either may be nil.
func (s *Server) EnableRuns(hub *EventHub, launch Launcher) {
	if hub != nil {
		s.router.GET("/events", hub.handleEvents)
	}
	if launch != nil {
		s.launch = launch
		s.router.POST("/runs", s.handleLaunch)
	}
}

// Handler exposes the router for tests and custom servers.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the web server
func (s *Server) Start(addr string) error {
	log.Printf("[API] Serving ledger on http://%s", addr)
	return s.router.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	runs, err := s.reader.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if runs == nil {
		runs = []run.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(c *gin.Context) {
	runID, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	summary, err := s.reader.GetRun(ctx, runID)
	if err != nil {
		s.fail(c, err)
		return
	}
	manifest, err := s.reader.GetRunManifest(ctx, runID)
	if err != nil && !core.IsNotFoundError(err) {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": summary, "manifest": manifest})
}

func (s *Server) handleRunArtifacts(c *gin.Context) {
	runID, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if offset, err = cast.ToIntE(raw); err != nil || offset < 0 {
			badRequest(c, core.NewParameterError("offset", raw, "must be a non-negative integer"))
			return
		}
	}
	ctx := c.Request.Context()
	if _, err := s.reader.GetRun(ctx, runID); err != nil {
		s.fail(c, err)
		return
	}

	filters := ports.ArtifactFilters{RunID: &runID, Limit: limit, Offset: offset}
	if kind := strings.TrimSpace(c.Query("kind")); kind != "" {
		k := core.ArtifactKind(kind)
		filters.Kind = &k
	}
	artifacts, err := s.reader.ListArtifacts(ctx, filters)
	if err != nil {
		s.fail(c, err)
		return
	}
	if artifacts == nil {
		artifacts = []core.Artifact{}
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": artifacts, "count": len(artifacts)})
}

func (s *Server) handleLaunch(c *gin.Context) {
	var req LaunchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, apperrors.InvalidInput(err.Error()))
			return
		}
	}
	if req.Duration < 0 {
		badRequest(c, core.NewParameterError("duration", req.Duration, "must be positive"))
		return
	}
	if req.Duration == 0 {
		req.Duration = defaultDuration
	}
	job, err := s.launch(req)
	if err != nil {
		badRequest(c, err)
		return
	}
	go func() {
		if err := job(context.Background()); err != nil {
			log.Printf("[API] Launched run failed: %v", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "duration": req.Duration, "seed": req.Seed})
}

func (s *Server) handleGetArtifact(c *gin.Context) {
	id, err := core.ParseArtifactID(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	artifact, err := s.reader.GetArtifact(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifact": artifact})
}

func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := cast.ToIntE(raw)
	if err != nil || limit <= 0 {
		return 0, core.NewParameterError("limit", raw, "must be a positive integer")
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperrors.GetCode(err)})
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": apperrors.CodeNotFound})
	case core.IsInputError(err):
		badRequest(c, err)
	default:
		log.Printf("[API] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
