package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
)

// ResponseStore persists responses for replay.
type ResponseStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// cachedResponse stores the response for idempotent requests.
type cachedResponse struct {
	StatusCode  int             `json:"status_code"`
	Body        json.RawMessage `json:"body"`
	ContentType string          `json:"content_type"`
}

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response of a retried mutating request that
// carries an Idempotency-Key header, so a driver app retrying a location
// upload over a flaky network does not append the sample twice. Keys are
// scoped to the authenticated user. Store failures fall through to normal
// handling.
func Idempotency(store ResponseStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut && c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" || store == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := GetUserID(c) + ":" + c.FullPath() + ":" + key

		data, ok, err := store.Get(ctx, cacheKey)
		if err != nil {
			logrus.WithError(err).Warn("idempotency lookup failed")
			c.Next()
			return
		}
		if ok {
			var cached cachedResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				c.Header("Idempotent-Replayed", "true")
				c.Data(cached.StatusCode, cached.ContentType, cached.Body)
				c.Abort()
				return
			}
		}

		w := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		c.Next()

		// Server errors are not cached so the client can retry them.
		if status := c.Writer.Status(); status >= 200 && status < 500 {
			response := cachedResponse{
				StatusCode:  status,
				Body:        w.body.Bytes(),
				ContentType: c.Writer.Header().Get("Content-Type"),
			}
			if data, err := json.Marshal(response); err == nil {
				_ = store.Set(ctx, cacheKey, data, idempotencyTTL)
			}
		}
	}
}
