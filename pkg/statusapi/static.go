package statusapi

import (
	"context"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

// StaticConfig configures the static file server
type StaticConfig struct {
	Addr     string
	Dir      string
	CertFile string // TLS is enabled when both files are set
	KeyFile  string
}

// StaticServer serves a directory plus a fixed /foo greeting
type StaticServer struct {
	cfg        StaticConfig
	engine     *gin.Engine
	httpServer *http.Server
}

// NewStatic creates a static file server
func NewStatic(cfg StaticConfig) *StaticServer {
	engine := newEngine()

	engine.GET("/foo", func(c *gin.Context) {
		c.String(http.StatusOK, "Hi from /foo")
	})
	engine.Static("/assets", cfg.Dir)

	files := http.FileServer(gin.Dir(cfg.Dir, false))
	engine.NoRoute(gin.WrapH(files))

	return &StaticServer{
		cfg:        cfg,
		engine:     engine,
		httpServer: newHTTPServer(cfg.Addr, engine),
	}
}

// Handler returns the HTTP handler
func (s *StaticServer) Handler() http.Handler {
	return s.engine
}

// TLS reports whether the server terminates TLS
func (s *StaticServer) TLS() bool {
	return s.cfg.CertFile != "" && s.cfg.KeyFile != ""
}

// Start serves until ctx is cancelled
func (s *StaticServer) Start(ctx context.Context) error {
	return serve(ctx, s.httpServer, func(ln net.Listener) error {
		if s.TLS() {
			return s.httpServer.ServeTLS(ln, s.cfg.CertFile, s.cfg.KeyFile)
		}
		return s.httpServer.Serve(ln)
	})
}
