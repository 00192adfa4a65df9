package statusapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ZentaChain/chuck/pkg/meshstorage"
	"github.com/ZentaChain/chuck/pkg/network"
	"github.com/ZentaChain/chuck/pkg/storage"
)

// MaxJournalLimit caps the limit query parameter
const MaxJournalLimit = 1000

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by /health
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// DispatchStatsResponse is returned by /api/v1/dispatch/stats
type DispatchStatsResponse struct {
	Server  *network.ServerStats      `json:"server,omitempty"`
	Router  *network.RouterStats      `json:"router,omitempty"`
	Journal map[network.Outcome]int64 `json:"journal,omitempty"`
}

// JournalResponse is returned by /api/v1/dispatch/journal
type JournalResponse struct {
	Count   int             `json:"count"`
	Entries []storage.Entry `json:"entries"`
}

// ContentStatsResponse is returned by /api/v1/content/stats
type ContentStatsResponse struct {
	Storage *meshstorage.StorageStats `json:"storage"`
	Version meshstorage.VersionInfo   `json:"version"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleDispatchStats handles GET /api/v1/dispatch/stats
func (s *Server) handleDispatchStats(c *gin.Context) {
	var resp DispatchStatsResponse

	if s.sources.Server != nil {
		stats := s.sources.Server.Stats()
		resp.Server = &stats
	}
	if s.sources.Router != nil {
		stats := s.sources.Router.Stats()
		resp.Router = &stats
	}
	if s.sources.Journal != nil {
		counts, err := s.sources.Journal.Counts(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "Journal unavailable",
				Message: err.Error(),
			})
			return
		}
		resp.Journal = counts
	}

	c.JSON(http.StatusOK, resp)
}

// handleJournal handles GET /api/v1/dispatch/journal?limit=N
func (s *Server) handleJournal(c *gin.Context) {
	if s.sources.Journal == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Journal disabled"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid limit",
				Message: "limit must be a positive integer",
			})
			return
		}
		limit = min(n, MaxJournalLimit)
	}

	entries, err := s.sources.Journal.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Journal unavailable",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, JournalResponse{Count: len(entries), Entries: entries})
}

// handleContentStats handles GET /api/v1/content/stats
func (s *Server) handleContentStats(c *gin.Context) {
	if s.sources.Content == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "No content node"})
		return
	}

	stats, err := s.sources.Content.Storage().GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Storage unavailable",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, ContentStatsResponse{Storage: stats, Version: meshstorage.GetVersionInfo()})
}

// handleDeleteContent handles DELETE /api/v1/content/:cid
func (s *Server) handleDeleteContent(c *gin.Context) {
	if s.sources.Content == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "No content node"})
		return
	}

	key := c.Param("cid")
	if err := s.sources.Content.Storage().Delete(key); err != nil {
		s.storageError(c, err)
		return
	}

	log.Info().Str("cid", key).Msg("content deleted")
	c.Status(http.StatusNoContent)
}

// handleDeleteShard handles DELETE /api/v1/content/:cid/shards/:index.
// Dropping single shards lets operators rehearse degraded fetches.
func (s *Server) handleDeleteShard(c *gin.Context) {
	if s.sources.Content == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "No content node"})
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 || index >= meshstorage.TotalShards {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid shard index",
			Message: fmt.Sprintf("index must be in [0, %d)", meshstorage.TotalShards),
		})
		return
	}

	key := c.Param("cid")
	if err := s.sources.Content.Storage().DeleteShard(key, index); err != nil {
		s.storageError(c, err)
		return
	}

	log.Info().Str("cid", key).Int("shard", index).Msg("shard deleted")
	c.Status(http.StatusNoContent)
}

func (s *Server) storageError(c *gin.Context, err error) {
	if errors.Is(err, meshstorage.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found", Message: err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Storage unavailable", Message: err.Error()})
}
