package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/synapsetrade/core/logger"
	"github.com/synapsetrade/core/store"
	"github.com/synapsetrade/core/trading"
)

// NewRouter builds the gin.Engine exposing the webhook, SSE, and admin
// routes (spec.md §6): a gin.New() engine with gin.Recovery() and
// requestLogger() middleware plus flat route-group setup.
func NewRouter(core *trading.Core, entities *store.EntityStore, bus *Broadcaster) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	wh := NewWebhookHandler(core, entities)
	r.POST("/webhook", wh.Handle)

	r.GET("/stream/:user_id", streamHandler(bus))

	admin := r.Group("/admin")
	{
		admin.POST("/accounts/:id/active", setAccountActiveHandler(entities))
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("api: %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// streamHandler implements the per-user SSE egress route: events published
// to the Broadcaster for this user id are written out as they arrive,
// never polled.
func streamHandler(bus *Broadcaster) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := parseInt64(c.Param("user_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}

		ch, unsubscribe := bus.Subscribe(userID)
		defer unsubscribe()

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		c.Stream(func(w io.Writer) bool {
			select {
			case event, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent("message", event)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}

func setAccountActiveHandler(entities *store.EntityStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseInt64(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
			return
		}
		var body struct {
			Active bool `json:"active"`
		}
		if err := c.BindJSON(&body); err != nil {
			return
		}
		if err := entities.UpdateAccountActive(c.Request.Context(), id, body.Active); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
