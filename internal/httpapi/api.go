// Package httpapi exposes the relay's HTTP surface: the signaling WebSocket
// endpoint, a health check on the root path, a stats path, and a structured
// not-found body for everything else.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quackvoice/quack/internal/relay"
)

// New builds the gin engine for the relay.
func New(supervisor *relay.Supervisor, environment string) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":   "Quack signaling relay is running!",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"status":    "healthy",
			"stats":     supervisor.Stats(),
		})
	})

	router.GET("/stats", func(c *gin.Context) {
		stats := supervisor.Stats()
		c.JSON(http.StatusOK, gin.H{
			"timestamp":    time.Now().UTC().Format(time.RFC3339),
			"connections":  stats.Connections,
			"rooms":        stats.Rooms,
			"totalClients": stats.TotalClients,
		})
	})

	router.GET("/ws", func(c *gin.Context) {
		supervisor.HandleWS(c.Writer, c.Request)
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Not Found",
			"message":   "Route " + c.Request.URL.Path + " not found",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
