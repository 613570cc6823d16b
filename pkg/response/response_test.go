package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "solace-voice/internal/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSuccessResponses(t *testing.T) {
	tests := []struct {
		name           string
		write          func(*gin.Context, interface{})
		expectedStatus int
	}{
		{"success", Success, http.StatusOK},
		{"created", Created, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := setupTestContext()

			tt.write(c, map[string]string{"state": "idle"})

			assert.Equal(t, tt.expectedStatus, w.Code)
			resp := decode(t, w)
			assert.True(t, resp.Success)
			assert.Equal(t, map[string]interface{}{"state": "idle"}, resp.Data)
			assert.Empty(t, resp.Error)
			assert.Empty(t, resp.Kind)
		})
	}
}

func TestNoContent(t *testing.T) {
	c, w := setupTestContext()

	NoContent(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name           string
		write          func(*gin.Context)
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "error with custom status",
			write:          func(c *gin.Context) { Error(c, http.StatusServiceUnavailable, "session history is not configured") },
			expectedStatus: http.StatusServiceUnavailable,
			expectedError:  "session history is not configured",
		},
		{
			name:           "bad request",
			write:          func(c *gin.Context) { BadRequest(c, "audio file is required") },
			expectedStatus: http.StatusBadRequest,
			expectedError:  "audio file is required",
		},
		{
			name:           "unauthorized",
			write:          func(c *gin.Context) { Unauthorized(c, "missing authorization header") },
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "missing authorization header",
		},
		{
			name:           "not found",
			write:          func(c *gin.Context) { NotFound(c, "no recorder is open for this user") },
			expectedStatus: http.StatusNotFound,
			expectedError:  "no recorder is open for this user",
		},
		{
			name:           "conflict",
			write:          func(c *gin.Context) { Conflict(c, "a recording is already in progress") },
			expectedStatus: http.StatusConflict,
			expectedError:  "a recording is already in progress",
		},
		{
			name:           "internal error hides details",
			write:          InternalError,
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := setupTestContext()

			tt.write(c)

			assert.Equal(t, tt.expectedStatus, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.expectedError, resp.Error)
			assert.Nil(t, resp.Data)
			assert.Empty(t, resp.Kind)
		})
	}
}

func TestFailure(t *testing.T) {
	c, w := setupTestContext()

	Failure(c, apperrors.KindDeviceBusy, "the microphone is already in use by another recording")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"the microphone is already in use by another recording","kind":"DeviceBusy"}`, w.Body.String())
}
