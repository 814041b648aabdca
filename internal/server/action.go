package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	actiondomain "github.com/pantheonhq/pantheon/internal/action/domain"
)

type recordActionRequest struct {
	OracleID       string          `json:"oracle_id" binding:"required"`
	PlayerID       string          `json:"player_id" binding:"required"`
	Action         string          `json:"action" binding:"required"`
	ClientActionID *string         `json:"client_action_id"`
	Metadata       json.RawMessage `json:"metadata"`
}

type bulkRecordActionsRequest struct {
	Actions []recordActionRequest `json:"actions" binding:"required"`
}

func toRecordRequest(req recordActionRequest) actiondomain.RecordActionRequest {
	return actiondomain.RecordActionRequest{
		OracleID:       req.OracleID,
		PlayerID:       req.PlayerID,
		Action:         req.Action,
		ClientActionID: req.ClientActionID,
		Metadata:       req.Metadata,
	}
}

func (s *Server) RecordOracleAction(c *gin.Context) {
	var req recordActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.actionSvc.Record(c.Request.Context(), toRecordRequest(req))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Deduplicated {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"record":       result.Record,
		"deduplicated": result.Deduplicated,
	})
}

func (s *Server) RecordOracleActionsBulk(c *gin.Context) {
	var req bulkRecordActionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reqs := make([]actiondomain.RecordActionRequest, 0, len(req.Actions))
	for _, entry := range req.Actions {
		reqs = append(reqs, toRecordRequest(entry))
	}

	result, err := s.actionSvc.RecordBulk(c.Request.Context(), reqs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records":      result.Records,
		"inserted":     result.Inserted,
		"deduplicated": result.Deduplicated,
	})
}

func (s *Server) ListOracleActions(c *gin.Context) {
	req, err := parseActionQuery(c, "")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.actionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": resp.Records,
		"meta":    resp.Meta,
	})
}

func (s *Server) GetOracleActionStats(c *gin.Context) {
	req, err := parseActionQuery(c, "")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.actionSvc.Aggregate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"counts": resp.Counts,
		"meta":   resp.Meta,
	})
}
