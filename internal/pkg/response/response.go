package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/llm-field-extractor/internal/pkg/errors"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrorBody is the error object of a failed response.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse is the envelope of every failed request.
type ErrorResponse struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Error     ErrorBody `json:"error"`
}

// RequestID returns the id assigned by the logger middleware.
func RequestID(c *gin.Context) string {
	return c.GetString("request_id")
}

// Success writes data with status 200. data is expected to embed its own status and request id.
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{"status": StatusSuccess, "request_id": RequestID(c)}
	}
	c.JSON(http.StatusOK, data)
}

// Error writes an error envelope with an explicit HTTP status.
func Error(c *gin.Context, httpStatus int, code, message string, details interface{}) {
	c.JSON(httpStatus, ErrorResponse{
		Status:    StatusError,
		RequestID: RequestID(c),
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// AbortWithCode writes the error envelope for a business code and aborts the chain.
func AbortWithCode(c *gin.Context, code int, details ...string) {
	var detail interface{}
	if len(details) > 0 && details[0] != "" {
		detail = details[0]
	}
	Error(c, apperrors.GetHTTPStatus(code), apperrors.GetName(code), apperrors.GetMessage(code), detail)
	c.Abort()
}

// HandleError renders err, mapping AppError codes to HTTP statuses.
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	code := apperrors.ExtractCode(err)
	var detail interface{}
	if d := apperrors.GetDetails(err); d != "" {
		detail = d
	}
	Error(c, apperrors.GetHTTPStatus(code), apperrors.GetName(code), apperrors.GetMessage(code), detail)
}

// HandleErrorWithDetails renders err with structured details such as failed chunk lists.
func HandleErrorWithDetails(c *gin.Context, err error, details interface{}) {
	_ = c.Error(err)
	code := apperrors.ExtractCode(err)
	Error(c, apperrors.GetHTTPStatus(code), apperrors.GetName(code), apperrors.GetMessage(code), details)
}
