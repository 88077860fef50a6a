package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIs_MatchesByKindAndCode(t *testing.T) {
	err := fmt.Errorf("create user: %w", New(KindConflict, "duplicate_email", "other wording"))
	assert.True(t, errors.Is(err, ErrDuplicateEmail))
	assert.False(t, errors.Is(err, ErrDuplicateID))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindUnauthenticated:    http.StatusUnauthorized,
		KindForbidden:          http.StatusForbidden,
		KindNotFound:           http.StatusNotFound,
		KindConflict:           http.StatusConflict,
		KindInsufficientStock:  http.StatusConflict,
		KindValidation:         http.StatusBadRequest,
		KindStorageUnavailable: http.StatusServiceUnavailable,
		KindStorageTimeout:     http.StatusGatewayTimeout,
		KindInternal:           http.StatusInternalServerError,
	}
	for k, want := range cases {
		assert.Equal(t, want, HTTPStatus(k), string(k))
	}
}

func respond(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set(RequestIDKey, "rid-1")
	Respond(c, err)
	return w
}

func TestRespond_ClassifiedError(t *testing.T) {
	w := respond(Validation("invalid request", map[string]string{"quantity": "must be > 0"}))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validation_failed", body["error"])
	assert.Equal(t, "rid-1", body["correlation_id"])
	assert.NotNil(t, body["fields"])
}

func TestRespond_InternalErrorHidesCause(t *testing.T) {
	w := respond(errors.New("dial tcp 10.0.0.1: secret detail"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret detail")
	assert.Contains(t, w.Body.String(), "rid-1")
}
