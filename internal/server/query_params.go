package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	actiondomain "github.com/pantheonhq/pantheon/internal/action/domain"
	"github.com/pantheonhq/pantheon/pkg/db/pagination"
)

const dateOnlyLayout = "2006-01-02"

func parseOptionalBool(value string) (bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false, nil
	}
	return strconv.ParseBool(trimmed)
}

func parseOptionalInt(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

// parseOptionalTime accepts RFC 3339 timestamps and date-only values. A
// date-only upper bound extends to the end of that day so the window stays
// inclusive.
func parseOptionalTime(value string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		if endOfDay {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
		}
		return &parsed, nil
	}
	return nil, errors.New("invalid_time")
}

// parseActionQuery reads one filter and pagination parameter set. The prefix
// keeps the sync endpoint's independent sets apart ("actions_", "stats_").
func parseActionQuery(c *gin.Context, prefix string) (actiondomain.ListActionsRequest, error) {
	var req actiondomain.ListActionsRequest

	req.Filters.OracleID = strings.TrimSpace(c.Query(prefix + "oracle_id"))
	req.Filters.PlayerID = strings.TrimSpace(c.Query(prefix + "player_id"))
	req.Filters.Action = strings.TrimSpace(c.Query(prefix + "action"))

	since, err := parseOptionalTime(c.Query(prefix+"since"), false)
	if err != nil {
		return req, newValidationError(prefix+"since", "invalid_time", "must be RFC 3339 or YYYY-MM-DD")
	}
	req.Filters.Since = since

	until, err := parseOptionalTime(c.Query(prefix+"until"), true)
	if err != nil {
		return req, newValidationError(prefix+"until", "invalid_time", "must be RFC 3339 or YYYY-MM-DD")
	}
	req.Filters.Until = until

	limit, err := parseOptionalInt(c.Query(prefix + "limit"))
	if err != nil {
		return req, newValidationError(prefix+"limit", "invalid_limit", "must be an integer")
	}
	req.Pagination.Limit = limit

	offset, err := parseOptionalInt(c.Query(prefix + "offset"))
	if err != nil {
		return req, newValidationError(prefix+"offset", "invalid_offset", "must be an integer")
	}
	req.Pagination.Offset = offset

	order := c.Query(prefix + "order")
	if _, err := pagination.NormalizeOrder(order, pagination.OrderDesc); err != nil {
		return req, newValidationError(prefix+"order", "invalid_order", "must be asc or desc")
	}
	req.Pagination.Order = order

	return req, nil
}
