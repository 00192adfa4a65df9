// Package statusapi exposes dispatch counters, Prometheus metrics and the
// dispatch journal over HTTP. It also serves the static directory used by
// the http-server command.
package statusapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ZentaChain/chuck/pkg/meshstorage"
	"github.com/ZentaChain/chuck/pkg/network"
	"github.com/ZentaChain/chuck/pkg/storage"
)

// StatsSource reports control-plane server counters
type StatsSource interface {
	Stats() network.ServerStats
}

// RouterSource reports consumer counters
type RouterSource interface {
	Stats() network.RouterStats
}

// JournalReader reads the dispatch journal
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]storage.Entry, error)
	Counts(ctx context.Context) (map[network.Outcome]int64, error)
}

// ContentSource reports content node storage
type ContentSource interface {
	Storage() *meshstorage.LocalStorage
}

// Sources are the components the status server reports on. Nil fields
// are left out of the responses.
type Sources struct {
	Server  StatsSource
	Router  RouterSource
	Journal JournalReader
	Content ContentSource
}

// Server is an HTTP server backed by a gin engine
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	sources    Sources
	metrics    *metrics
	startedAt  time.Time
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(log.Logger))
	return engine
}

// New creates the status server listening on addr
func New(addr string, sources Sources) *Server {
	s := &Server{
		engine:    newEngine(),
		sources:   sources,
		metrics:   newMetrics(sources),
		startedAt: time.Now(),
	}
	s.engine.Use(s.metrics.RequestMetrics())
	s.setupRoutes()
	s.httpServer = newHTTPServer(addr, s.engine)
	return s
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	v1 := s.engine.Group("/api/v1")
	{
		dispatch := v1.Group("/dispatch")
		{
			dispatch.GET("/stats", s.handleDispatchStats)
			dispatch.GET("/journal", s.handleJournal)
		}

		content := v1.Group("/content")
		{
			content.GET("/stats", s.handleContentStats)
			content.DELETE("/:cid", s.handleDeleteContent)
			content.DELETE("/:cid/shards/:index", s.handleDeleteShard)
		}
	}

	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", s.metrics.handler())
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	return serve(ctx, s.httpServer, func(ln net.Listener) error {
		return s.httpServer.Serve(ln)
	})
}

// serve listens on srv.Addr and runs fn until ctx is done
func serve(ctx context.Context, srv *http.Server, fn func(net.Listener) error) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}

	log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- fn(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
