// Package api is a thin, optional HTTP/JSON façade over internal/cube.Engine,
// grounded on arx-backend/handlers/pipeline.go's RegisterRoutes(group) shape
// and arx-backend/main.go's gin.Default()/middleware/health-endpoint
// bootstrap. It is not part of the core query path -- cubectl and any
// embedding program drive internal/cube.Engine directly -- and exists only
// to give network clients a demo entry point without hand-rolling net/http
// routing.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arx-os/datakernel-cube/internal/chunkindex"
	"github.com/arx-os/datakernel-cube/internal/cube"
	"github.com/arx-os/datakernel-cube/internal/logging"
)

// Handler adapts one cube.Engine to gin routes.
type Handler struct {
	engine *cube.Engine
}

// NewHandler wraps engine for HTTP serving.
func NewHandler(engine *cube.Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes registers this façade's routes under group, mirroring
// PipelineHandler.RegisterRoutes's group-of-routes convention.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	// Query runs against whichever registered aggregation covers the
	// request (internal/cube.Planner picks it), not a caller-named one, so
	// it is not nested under an aggregation ID the way chunk inspection and
	// consolidation are.
	r.POST("/query", h.query)

	aggGroup := r.Group("/aggregations/:id")
	{
		aggGroup.GET("/chunks", h.listChunks)
		aggGroup.POST("/consolidate", h.consolidate)
	}
}

// NewRouter builds a standalone gin.Engine exposing h under /api, the same
// gin.Default/Logger/Recovery/health-endpoint shape as arx-backend/main.go.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "cubectl-api"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	h.RegisterRoutes(api)
	return r
}

type queryRequest struct {
	cube.CubeQuery
}

func (h *Handler) query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.Query(c.Request.Context(), req.CubeQuery)
	if err != nil {
		logging.Logger.Warn("api query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) listChunks(c *gin.Context) {
	aggregationID := c.Param("id")
	chunks, err := h.engine.ListChunks(aggregationID, nil, nil)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, chunks)
}

type consolidateRequest struct {
	Strategy   string `json:"strategy"`
	SchemaHash uint64 `json:"schema_hash"`
}

func (h *Handler) consolidate(c *gin.Context) {
	aggregationID := c.Param("id")
	var req consolidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	strategy := chunkindex.StrategyMinKey
	if req.Strategy == "hot-segment" {
		strategy = chunkindex.StrategyHotSegment
	}

	out, err := h.engine.Consolidate(c.Request.Context(), aggregationID, strategy, req.SchemaHash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}
