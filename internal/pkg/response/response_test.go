package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/llm-field-extractor/internal/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/extract", nil)
	c.Set("request_id", "req-42")
	return c, w
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantDetail string
	}{
		{
			name:       "invalid input",
			err:        apperrors.NewInvalidInputError("fields cannot be empty"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
			wantDetail: "fields cannot be empty",
		},
		{
			name:       "llm error",
			err:        apperrors.NewLLMError(errors.New("all chunks failed")),
			wantStatus: http.StatusBadGateway,
			wantCode:   "LLM_ERROR",
			wantDetail: "all chunks failed",
		},
		{
			name:       "plain error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
			wantDetail: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newContext()
			HandleError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, StatusError, body.Status)
			assert.Equal(t, "req-42", body.RequestID)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.Equal(t, tt.wantDetail, body.Error.Details)
		})
	}
}

func TestAbortWithCode(t *testing.T) {
	c, w := newContext()
	AbortWithCode(c, apperrors.ErrUnauthorized, "Missing API key")

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"UNAUTHORIZED"`)
}
