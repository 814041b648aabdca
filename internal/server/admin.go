package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	authdomain "github.com/pantheonhq/pantheon/internal/auth/domain"
	bundledomain "github.com/pantheonhq/pantheon/internal/bundle/domain"
	"github.com/pantheonhq/pantheon/pkg/repository"
)

type purgeUserRequest struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	DeleteUser bool   `json:"delete_user"`
}

// PurgeUserBundle deletes a user's actions, oracle profiles and player
// account, and optionally the user row. The target is named by id or email.
func (s *Server) PurgeUserBundle(c *gin.Context) {
	var req purgeUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID, err := s.resolvePurgeTarget(c, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.bundleSvc.PurgeOwner(c.Request.Context(), bundledomain.PurgeRequest{
		UserID:     userID,
		DeleteUser: req.DeleteUser,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.identitySvc.InvalidateUser(userID.String())

	c.JSON(http.StatusOK, gin.H{"purged": result})
}

func (s *Server) resolvePurgeTarget(c *gin.Context, req purgeUserRequest) (snowflake.ID, error) {
	if raw := strings.TrimSpace(req.UserID); raw != "" {
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID == 0 {
			return 0, newValidationError("user_id", "invalid_user_id", "must be a valid id")
		}
		return userID, nil
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return 0, newValidationError("user_id", "missing_target", "user_id or email is required")
	}

	users := repository.ProvideStore[authdomain.User](s.db)
	user, err := users.FindOne(c.Request.Context(), &authdomain.User{Email: email})
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, bundledomain.ErrPurgeTargetMissing
	}
	return user.ID, nil
}
