package response

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/handbook-rag/pkg/utils/errors"
)

// RequestIDKey is the gin context key under which the request ID middleware stores the ID.
const RequestIDKey = "request_id"

// OK writes a successful envelope with data.
func OK(c *gin.Context, data interface{}) {
	resp := Success(data).WithRequestID(c.GetString(RequestIDKey))
	c.JSON(resp.HTTPStatus(), resp)
}

// Fail writes an error envelope localized from the Accept-Language header.
func Fail(c *gin.Context, err error) {
	FailWithLang(c, err, Lang(c))
}

// FailWithLang writes an error envelope with a language-specific message.
func FailWithLang(c *gin.Context, err error, lang string) {
	e := errors.FromError(err)
	resp := ErrWithLang(e, lang).WithRequestID(c.GetString(RequestIDKey))
	c.AbortWithStatusJSON(e.HTTPStatus(), resp)
}

// Lang returns the primary language tag of the Accept-Language header, "en" when absent.
func Lang(c *gin.Context) string {
	h := c.GetHeader("Accept-Language")
	if h == "" {
		return "en"
	}
	for i, r := range h {
		if r == ',' || r == ';' {
			return h[:i]
		}
	}
	return h
}

// FailWithDetails writes a localized error envelope carrying details in data.
func FailWithDetails(c *gin.Context, err error, details interface{}) {
	e := errors.FromError(err)
	resp := ErrWithLang(e, Lang(c)).WithRequestID(c.GetString(RequestIDKey))
	resp.Data = details
	c.AbortWithStatusJSON(e.HTTPStatus(), resp)
}
