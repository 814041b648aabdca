package server

import (
	"crypto/subtle"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	actiondomain "github.com/pantheonhq/pantheon/internal/action/domain"
	obscontext "github.com/pantheonhq/pantheon/internal/observability/context"
	"github.com/pantheonhq/pantheon/internal/observability/logger"
	"github.com/pantheonhq/pantheon/internal/ownerctx"
)

const (
	HeaderServiceToken = "X-Service-Token"

	contextUserKey = "user"
)

// AuthRequired authenticates the bearer token and loads the caller's
// ownership scope into the request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		user, err := s.authSvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		scope, err := s.identitySvc.Resolve(c.Request.Context(), user)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := ownerctx.WithOwnership(c.Request.Context(), scope)
		ctx = obscontext.WithUserID(ctx, user.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserKey, user)
		c.Next()
	}
}

// ServiceTokenRequired gates service-to-service endpoints on the shared
// secret. An unset secret disables the surface entirely.
func (s *Server) ServiceTokenRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		configured := strings.TrimSpace(s.cfg.ServiceToken)
		provided := strings.TrimSpace(c.GetHeader(HeaderServiceToken))
		if configured == "" || provided == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(configured), []byte(provided)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, ok := ownerctx.FromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		actor := fmt.Sprintf("user:%s", scope.UserID)
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, scope.Role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// ActionIngestRateLimit throttles ledger writes per authenticated user.
func (s *Server) ActionIngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.actionLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		scope, ok := ownerctx.FromContext(ctx)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		result, err := s.actionLimiter.AllowUser(ctx, scope.UserID)
		if err != nil {
			logger.FromContext(ctx).Warn("action ingest rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		endpoint := c.FullPath()
		if !result.Allowed {
			logger.FromContext(ctx).Warn("action ingest rate limit exceeded",
				zap.String("endpoint", endpoint),
			)
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, "user-rate")
			}
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, actiondomain.ErrRateLimited)
			return
		}

		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
