package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	oracledomain "github.com/pantheonhq/pantheon/internal/oracle/domain"
)

type upsertOracleRequest struct {
	OracleID  string         `json:"oracle_id"`
	Name      string         `json:"name" binding:"required"`
	Archetype string         `json:"archetype"`
	Profile   map[string]any `json:"profile"`
}

func (s *Server) UpsertOracle(c *gin.Context) {
	var req upsertOracleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	profile, err := s.oracleSvc.Upsert(c.Request.Context(), oracledomain.UpsertRequest{
		OracleID:  req.OracleID,
		Name:      req.Name,
		Archetype: req.Archetype,
		Profile:   req.Profile,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"oracle": profile})
}

func (s *Server) ListMyOracles(c *gin.Context) {
	profiles, err := s.oracleSvc.ListMine(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"oracles": profiles})
}
