package errors

import (
	"fmt"
	"net/http"
)

// Code describes one business error: its number, wire name and HTTP status.
type Code struct {
	Code    int    // Business error code
	Name    string // Wire name, e.g. INVALID_INPUT
	Status  int    // HTTP status code
	Message string // Default message
}

const (
	Success = 0

	// Request errors (1000-1999)
	ErrInvalidInput   = 1000
	ErrUnauthorized   = 1001
	ErrForbidden      = 1002
	ErrNotFound       = 1003
	ErrFileTooLarge   = 1004
	ErrUnsupportedFmt = 1005
	ErrRateLimited    = 1006

	// Extraction errors (2000-2999)
	ErrProcessing     = 2000
	ErrLLM            = 2001
	ErrRequestTimeout = 2002

	// Infrastructure errors (3000-3999)
	ErrInternalServer = 3000
	ErrServiceUnavail = 3001
	ErrStorage        = 3002
)

var codeMap = map[int]Code{
	Success: {Success, "SUCCESS", http.StatusOK, "Success"},

	ErrInvalidInput:   {ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest, "Invalid input"},
	ErrUnauthorized:   {ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized, "Missing or malformed API key"},
	ErrForbidden:      {ErrForbidden, "FORBIDDEN", http.StatusForbidden, "Invalid API key"},
	ErrNotFound:       {ErrNotFound, "NOT_FOUND", http.StatusNotFound, "Resource not found"},
	ErrFileTooLarge:   {ErrFileTooLarge, "FILE_TOO_LARGE", http.StatusRequestEntityTooLarge, "Uploaded file exceeds the size limit"},
	ErrUnsupportedFmt: {ErrUnsupportedFmt, "UNSUPPORTED_FORMAT", http.StatusBadRequest, "Unsupported format"},
	ErrRateLimited:    {ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests, "Too many requests"},

	ErrProcessing:     {ErrProcessing, "PROCESSING_ERROR", http.StatusInternalServerError, "Error processing request"},
	ErrLLM:            {ErrLLM, "LLM_ERROR", http.StatusBadGateway, "LLM service error"},
	ErrRequestTimeout: {ErrRequestTimeout, "REQUEST_TIMEOUT", http.StatusGatewayTimeout, "Extraction cancelled before completion"},

	ErrInternalServer: {ErrInternalServer, "INTERNAL_ERROR", http.StatusInternalServerError, "Internal server error"},
	ErrServiceUnavail: {ErrServiceUnavail, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "Service unavailable"},
	ErrStorage:        {ErrStorage, "STORAGE_ERROR", http.StatusInternalServerError, "Storage operation failed"},
}

// GetCode returns the Code for code, defaulting to ErrInternalServer.
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

func GetMessage(code int) string {
	return GetCode(code).Message
}

func GetName(code int) string {
	return GetCode(code).Name
}

// IsClientError reports whether code maps to a 4xx status.
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// FormatError formats the default message of code with optional details.
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
