package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"reporting-service/internal/logging"
	"reporting-service/internal/models"
)

const (
	requestIDKey    = "request_id"
	identityKey     = "identity"
	requestIDHeader = "X-Request-ID"
	roleHeader      = "X-User-Role"
)

// RequestIDMiddleware propagates X-Request-ID or generates one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		entry := logger.ForRequest(c.GetString(requestIDKey)).WithFields(logrus.Fields{
			"method":  method,
			"path":    path,
			"status":  status,
			"latency": latency.String(),
		})
		if id, ok := identityFrom(c); ok {
			entry = entry.WithField("user_id", id.UserID)
		}
		switch {
		case status >= 500:
			entry.Error("Request failed")
		case status >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request handled")
		}
	}
}

// AuthConfig controls how callers are identified.
type AuthConfig struct {
	Verifier *JWTVerifier
	// DevHeader, when non-empty, accepts a plain user id header instead of a
	// token. Only enabled outside production.
	DevHeader string
}

// AuthMiddleware resolves the caller from a Bearer token, a "token" query
// parameter (WebSocket clients) or the development header.
func AuthMiddleware(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			token = c.Query("token")
		}

		if token != "" {
			id, err := cfg.Verifier.Verify(token)
			if err != nil {
				Unauthorized(c, "Invalid or expired token", "AUTH_INVALID_TOKEN")
				return
			}
			c.Set(identityKey, id)
			c.Next()
			return
		}

		if cfg.DevHeader != "" {
			if raw := c.GetHeader(cfg.DevHeader); raw != "" {
				userID, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || userID <= 0 {
					Unauthorized(c, "Invalid "+cfg.DevHeader+" header", "AUTH_INVALID_HEADER")
					return
				}
				role := models.RoleDriver
				if r, ok := models.ParseRole(c.GetHeader(roleHeader)); ok {
					role = r
				}
				c.Set(identityKey, Identity{UserID: userID, Role: role})
				c.Next()
				return
			}
		}

		Unauthorized(c, "Authorization header is required", "AUTH_MISSING")
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identityFrom(c)
		if !ok {
			Unauthorized(c, "Authentication required", "AUTH_MISSING")
			return
		}
		for _, r := range roles {
			if id.Role == r {
				c.Next()
				return
			}
		}
		Forbidden(c, "Insufficient permissions", "FORBIDDEN")
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func identityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
