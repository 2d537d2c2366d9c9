package admin

import (
	"errors"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/luma/parcel/storage"
)

// NewRouter builds the admin HTTP API: liveness, prometheus metrics and a
// read-only view of the journal.
func NewRouter(debugHTTP bool, log *zap.Logger, journal storage.Journal) *gin.Engine {
	r := setupRouter(debugHTTP, log)

	// Ping test
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/journal", func(c *gin.Context) {
		backup, err := journal.Backup()
		if err != nil {
			c.AbortWithStatusJSON(journalStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.Data(http.StatusOK, "application/json", backup)
	})

	r.GET("/journal/:conn", func(c *gin.Context) {
		entries, err := journal.Get(c.Request.Context(), c.Param("conn"))
		if err != nil {
			c.AbortWithStatusJSON(journalStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.Data(http.StatusOK, "application/json", entries)
	})

	return r
}

func journalStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrUnknownConn):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Access log for every request except the health checks, RFC3339 in UTC
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}
