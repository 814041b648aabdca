package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	bundledomain "github.com/pantheonhq/pantheon/internal/bundle/domain"
)

// SyncBundle returns the combined owner view. The actions list and the
// action stats carry independent parameter sets under the "actions_" and
// "stats_" query prefixes.
func (s *Server) SyncBundle(c *gin.Context) {
	includeActions, err := parseOptionalBool(c.Query("include_actions"))
	if err != nil {
		AbortWithError(c, newValidationError("include_actions", "invalid_bool", "must be a boolean"))
		return
	}
	includeStats, err := parseOptionalBool(c.Query("include_action_stats"))
	if err != nil {
		AbortWithError(c, newValidationError("include_action_stats", "invalid_bool", "must be a boolean"))
		return
	}

	req := bundledomain.SyncRequest{
		IncludeActions:     includeActions,
		IncludeActionStats: includeStats,
	}

	if includeActions {
		req.Actions, err = parseActionQuery(c, "actions_")
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}
	if includeStats {
		req.ActionStats, err = parseActionQuery(c, "stats_")
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}

	resp, err := s.bundleSvc.Sync(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Requested sub-results are always present; unrequested ones never are.
	payload := gin.H{
		"player_account": resp.PlayerAccount,
		"oracles":        resp.Oracles,
	}
	if includeActions {
		payload["actions"] = resp.Actions
		payload["actions_meta"] = resp.ActionsMeta
	}
	if includeStats {
		payload["action_stats"] = resp.ActionStats
		payload["action_stats_meta"] = resp.ActionStatsMeta
	}

	c.JSON(http.StatusOK, payload)
}
