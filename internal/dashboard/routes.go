package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zulandar/buildyard/internal/buildqueue"
	"gorm.io/gorm"
)

const (
	defaultQueueLimit = 100
	maxQueueLimit     = 1000
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB, gatherer prometheus.Gatherer) {
	router.GET("/healthz", handleHealth(db))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	api.GET("/builders", handleBuilders(db))
	api.GET("/queue", handleQueue(db))
	api.GET("/queue/:id/estimate", handleEstimate(db))
	api.GET("/builds/:id", handleBuild(db))
	api.POST("/builds/:id/status", handleBuildStatus(db))
}

func handleHealth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleBuilders(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := BuilderSummary(db)
		if err != nil {
			internalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"builders": rows})
	}
}

func handleQueue(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultQueueLimit
		if s := c.Query("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxQueueLimit)
		}

		filter := QueueFilter{
			Status:    c.Query("status"),
			Processor: c.Query("processor"),
			Limit:     limit,
		}
		rows, err := QueueRows(db, filter)
		if err != nil {
			internalError(c, err)
			return
		}
		depth, err := QueueDepth(db)
		if err != nil {
			internalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": rows, "waiting": depth})
	}
}

func handleEstimate(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		at, err := buildqueue.EstimatedStartTime(db, id, time.Now())
		switch {
		case errors.Is(err, buildqueue.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, buildqueue.ErrNotWaiting):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err != nil:
			internalError(c, err)
		case at == nil:
			c.JSON(http.StatusOK, gin.H{"queue_id": id, "estimated_start": nil})
		default:
			c.JSON(http.StatusOK, gin.H{"queue_id": id, "estimated_start": at.UTC()})
		}
	}
}

func handleBuild(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		detail, err := GetBuildDetail(db, id)
		if err != nil {
			internalError(c, err)
			return
		}
		if detail == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "build not found"})
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

// statusRequest is the body builders post to report progress. Cookie is
// the dispatch cookie the build was handed out with.
type statusRequest struct {
	Cookie  string `json:"cookie" binding:"required"`
	Status  string `json:"status" binding:"required"`
	Logtail string `json:"logtail"`
}

func handleBuildStatus(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var req statusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		err := buildqueue.UpdateStatus(db, id, req.Cookie, req.Status, req.Logtail)
		switch {
		case errors.Is(err, buildqueue.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, buildqueue.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, buildqueue.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err != nil:
			internalError(c, err)
		default:
			c.Status(http.StatusNoContent)
		}
	}
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func internalError(c *gin.Context, err error) {
	c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
