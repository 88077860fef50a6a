package apperr

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/romana/rlog"
)

// RequestIDKey is the gin context key holding the request correlation id.
const RequestIDKey = "request_id"

// Respond writes err as a structured JSON error and aborts the chain.
// Unclassified errors are logged in full and reported as a generic internal
// error carrying the correlation id.
func Respond(c *gin.Context, err error) {
	rid := c.GetString(RequestIDKey)

	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		rlog.Errorf("[api] internal error request_id=%s path=%s: %v", rid, c.FullPath(), err)
		c.AbortWithStatusJSON(HTTPStatus(KindInternal), gin.H{
			"error":          "internal",
			"kind":           KindInternal,
			"message":        "internal server error",
			"correlation_id": rid,
		})
		return
	}

	if e.Kind == KindStorageUnavailable || e.Kind == KindStorageTimeout {
		rlog.Errorf("[api] storage failure request_id=%s path=%s: %v", rid, c.FullPath(), err)
	}

	body := gin.H{
		"error":          e.Code,
		"kind":           e.Kind,
		"message":        e.Message,
		"correlation_id": rid,
	}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	c.AbortWithStatusJSON(HTTPStatus(e.Kind), body)
}
