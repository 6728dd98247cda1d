package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/handbook-rag/pkg/utils/errors"
	"github.com/kart-io/handbook-rag/pkg/utils/response"
)

// BodyLimit rejects requests whose declared Content-Length exceeds maxBytes
// and caps the bytes handlers can read from the body. maxBytes <= 0 disables
// the limit.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}

		// 先按 Content-Length 拒绝，再限制实际读取字节数
		if c.Request.ContentLength > maxBytes {
			logger.Warnw("request body too large",
				"path", c.Request.URL.Path,
				"content_length", c.Request.ContentLength,
				"max_bytes", maxBytes,
			)
			response.Fail(c, errors.ErrRequestTooLarge)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
