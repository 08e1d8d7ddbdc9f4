// Package web provides the HTTP API for the visit ledger.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jizpi/arm-ledger/internal/feed"
	"github.com/jizpi/arm-ledger/internal/ledger"
	"github.com/jizpi/arm-ledger/internal/logging"
	"github.com/jizpi/arm-ledger/internal/visit"
)

// Ledger is the write side used by the handlers.
type Ledger interface {
	Create(ctx context.Context, req ledger.CreateRequest) (*visit.Record, error)
	Get(ctx context.Context, id string) (*visit.Record, error)
	Update(ctx context.Context, id string, req ledger.UpdateRequest) (*visit.Record, error)
	Delete(ctx context.Context, id string) error
	Lookup(ctx context.Context, firstName, lastName string) ([]visit.Record, error)
	Today() string
}

// Snapshots is the read side: the latest record set and statistics.
type Snapshots interface {
	Current() *feed.State
	Subscribe() (<-chan *feed.State, func())
}

// Options configures a Server.
type Options struct {
	Ledger      Ledger
	Snapshots   Snapshots
	Catalog     []string
	Location    *time.Location
	CORSOrigins []string
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Ready is checked by /health when set.
	Ready  func(ctx context.Context) error
	Logger *zap.Logger
	Now    func() time.Time
}

// Server is the API HTTP server.
type Server struct {
	ledger    Ledger
	snapshots Snapshots
	catalog   []string
	loc       *time.Location
	ready     func(ctx context.Context) error
	logger    *zap.Logger
	now       func() time.Time
	engine    *gin.Engine
}

// NewServer creates the server and registers its routes.
func NewServer(opts Options) *Server {
	s := &Server{
		ledger:    opts.Ledger,
		snapshots: opts.Snapshots,
		catalog:   opts.Catalog,
		loc:       opts.Location,
		ready:     opts.Ready,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.catalog == nil {
		s.catalog = visit.DefaultResources
	}

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(s.logger))
	_ = r.SetTrustedProxies(nil)

	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  opts.CORSOrigins,
			AllowHeaders:  []string{"Origin", "Content-Type", logging.RequestIDHeader},
			ExposeHeaders: []string{"Content-Length", "Content-Disposition", logging.RequestIDHeader},
			AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.GET("/health", s.health)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	api := r.Group("/api")
	api.GET("/visits", s.listVisits)
	api.POST("/visits", s.createVisit)
	api.GET("/visits/:id", s.getVisit)
	api.PATCH("/visits/:id", s.updateVisit)
	api.DELETE("/visits/:id", s.deleteVisit)
	api.GET("/today", s.today)
	api.GET("/stats", s.stats)
	api.GET("/catalog", s.catalogResources)
	api.GET("/lookup", s.lookup)
	api.GET("/export", s.exportXLSX)
	api.GET("/events", s.events)

	r.NoRoute(func(c *gin.Context) {
		apiError(c, http.StatusNotFound, "not found")
	})

	s.engine = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	if s.ready != nil {
		if err := s.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
