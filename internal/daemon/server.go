// Package daemon serves the tab event feed, badge and export over HTTP.
package daemon

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/runnerr0/tabtally/internal/export"
	"github.com/runnerr0/tabtally/internal/platform"
	"github.com/runnerr0/tabtally/internal/storage"
	"github.com/runnerr0/tabtally/internal/tracker"
)

const healthPath = "/health"

// Tracker is the part of the reconciler the daemon drives.
type Tracker interface {
	Submit(ctx context.Context, ev tracker.Event, hooks tracker.Hooks) error
	Current() (storage.DayAggregate, bool)
	KnownTabs() int
	Attached() bool
}

type Options struct {
	Addr           string
	AuthToken      string
	MaxRequestSize int64

	Tracker  Tracker
	Registry *platform.Registry
	Board    *platform.Board
	Exporter *export.Exporter

	// Gatherer backs the metrics endpoint; nil disables it.
	Gatherer    prometheus.Gatherer
	MetricsPath string
}

type Server struct {
	opts   Options
	router *gin.Engine
	server *http.Server
}

func NewServer(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	if err := router.SetTrustedProxies(nil); err != nil {
		log.Err(err).Msg("failed to set trusted proxies")
	}
	router.Use(
		gin.Recovery(),
		gin.LoggerWithWriter(log.Logger, healthPath),
		limitBody(opts.MaxRequestSize),
		requireToken(opts.AuthToken),
	)

	s := &Server{opts: opts, router: router}
	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	s.router.GET(healthPath, func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := s.router.Group("/v1")
	v1.POST("/events", s.handleEvent)
	v1.PUT("/tabs", s.handleTabs)
	v1.GET("/badge", s.handleBadge)
	v1.GET("/summary", s.handleSummary)
	v1.GET("/export.csv", s.handleExport)

	if s.opts.Gatherer != nil {
		path := s.opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	s.server = &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Msg("http server stopped unexpectedly")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
	return nil
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	log.Info().Msg("http server stopped")
	return nil
}

type eventRequest struct {
	Type     string  `json:"type" binding:"required"`
	TabID    *int64  `json:"tab_id" binding:"required"`
	OpenTabs []int64 `json:"open_tabs"`
}

type tabsRequest struct {
	OpenTabs []int64 `json:"open_tabs" binding:"required"`
}

func (s *Server) handleEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	kind, err := tracker.ParseEventKind(req.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ev := tracker.Event{Kind: kind, TabID: tracker.TabID(*req.TabID)}

	// Registry changes run on the event loop so overlapping requests see
	// snapshots in event order.
	var hooks tracker.Hooks
	hooks.Before = func() {
		if req.OpenTabs != nil {
			s.opts.Registry.Replace(toTabIDs(req.OpenTabs))
		}
		if kind == tracker.EventCreated {
			s.opts.Registry.Track(ev.TabID)
		}
	}
	if kind == tracker.EventRemoved {
		hooks.After = func() { s.opts.Registry.Forget(ev.TabID) }
	}

	err = s.opts.Tracker.Submit(c.Request.Context(), ev, hooks)
	switch {
	case errors.Is(err, tracker.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconcile failed", "detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"badge":    s.opts.Board.Badge(),
		"attached": s.opts.Tracker.Attached(),
	})
}

func (s *Server) handleTabs(c *gin.Context) {
	var req tabsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.opts.Registry.Replace(toTabIDs(req.OpenTabs))
	c.JSON(http.StatusOK, gin.H{"open_tabs": s.opts.Registry.Len()})
}

func (s *Server) handleBadge(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"text":    s.opts.Board.Badge(),
		"tooltip": s.opts.Board.Tooltip(),
	})
}

func (s *Server) handleSummary(c *gin.Context) {
	day, ok := s.opts.Tracker.Current()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tracker not started"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"day":        day,
		"badge":      s.opts.Board.Badge(),
		"tooltip":    s.opts.Board.Tooltip(),
		"known_tabs": s.opts.Tracker.KnownTabs(),
		"attached":   s.opts.Tracker.Attached(),
	})
}

func (s *Server) handleExport(c *gin.Context) {
	var buf strings.Builder
	_, err := s.opts.Exporter.WriteCSV(c.Request.Context(), &buf)
	switch {
	case errors.Is(err, export.ErrNothingToExport):
		c.Status(http.StatusNoContent)
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed", "detail": err.Error()})
		return
	}
	c.Header("Content-Disposition", "attachment; filename=tabtally.csv")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(buf.String()))
}

func badRequest(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
}

func limitBody(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}

// requireToken checks the bearer token on every route except the health check.
func requireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || c.Request.URL.Path == healthPath {
			c.Next()
			return
		}
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func toTabIDs(ids []int64) []tracker.TabID {
	out := make([]tracker.TabID, len(ids))
	for i, id := range ids {
		out[i] = tracker.TabID(id)
	}
	return out
}
