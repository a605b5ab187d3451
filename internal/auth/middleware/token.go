package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/llm-field-extractor/internal/pkg/errors"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/response"
	"go.uber.org/zap"
)

const bearerPrefix = "Bearer "

// ctxTokenKey holds the authenticated token in the gin context.
const ctxTokenKey = "api_token"

var (
	ErrMissingAuthorization   = errors.New("missing authorization header")
	ErrMalformedAuthorization = errors.New("authorization header must be \"Bearer <token>\"")
)

// ExtractTokenFromHeader returns the token of a "Bearer <token>" header.
func ExtractTokenFromHeader(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuthorization
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrMalformedAuthorization
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrMalformedAuthorization
	}
	return token, nil
}

// BearerAuth rejects requests without the configured API token: 401 when the
// header is missing or malformed, 403 when the token is wrong. An empty token
// disables the check.
func BearerAuth(token string, log *logger.Logger) gin.HandlerFunc {
	if token == "" {
		return func(c *gin.Context) { c.Next() }
	}
	if log == nil {
		log = logger.L()
	}
	want := []byte(token)

	return func(c *gin.Context) {
		got, err := ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			response.AbortWithCode(c, apperrors.ErrUnauthorized, err.Error())
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			log.Warn("invalid api token",
				zap.String("request_id", response.RequestID(c)),
				zap.String("ip", c.ClientIP()))
			response.AbortWithCode(c, apperrors.ErrForbidden)
			return
		}
		c.Set(ctxTokenKey, got)
		c.Next()
	}
}

// Authenticated reports whether BearerAuth accepted the request.
func Authenticated(c *gin.Context) bool {
	_, ok := c.Get(ctxTokenKey)
	return ok
}

// CORS answers preflight requests and echoes the request origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.Request.Header.Get("Origin"); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Disposition, X-Request-ID, X-Run-ID")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
