package handler

import (
	"io"

	"github.com/gin-gonic/gin"
)

// streamUpdates writes each value from the binding's updates channel as
// an SSE event until the client disconnects or the binding closes.
func streamUpdates[T any](c *gin.Context, updates <-chan T, closeBinding func()) {
	defer closeBinding()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case v, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("update", v)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
