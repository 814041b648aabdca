package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	playerdomain "github.com/pantheonhq/pantheon/internal/player/domain"
)

type upsertPlayerAccountRequest struct {
	PlayerID string         `json:"player_id"`
	Username string         `json:"username" binding:"required"`
	Email    string         `json:"email"`
	Profile  map[string]any `json:"profile"`
}

func (s *Server) UpsertPlayerAccount(c *gin.Context) {
	var req upsertPlayerAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.playerSvc.Upsert(c.Request.Context(), playerdomain.UpsertRequest{
		PlayerID: req.PlayerID,
		Username: req.Username,
		Email:    req.Email,
		Profile:  req.Profile,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"player_account": account})
}

func (s *Server) GetPlayerAccount(c *gin.Context) {
	account, err := s.playerSvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"player_account": account})
}
