// Package pagination implements offset pagination with clamped page sizes.
package pagination

import (
	"errors"
	"strings"
)

const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

var ErrInvalidOrder = errors.New("invalid_order")

// Pagination carries caller-supplied paging parameters before normalization.
type Pagination struct {
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
	Order  string `form:"order"`
}

// PageInfo echoes the effective paging window applied to a query.
type PageInfo struct {
	Limit          int    `json:"limit"`
	Offset         int    `json:"offset"`
	Order          string `json:"order"`
	Returned       int    `json:"returned"`
	TotalAvailable int64  `json:"total_available"`
	HasMore        bool   `json:"has_more"`
}

// ClampLimit applies the default for missing/non-positive values and the
// server-side ceiling for oversized ones. Oversized limits are clamped, not
// rejected.
func ClampLimit(value, def, max int) int {
	if value <= 0 {
		return def
	}
	if value > max {
		return max
	}
	return value
}

// ClampOffset normalizes negative offsets to zero.
func ClampOffset(value int) int {
	if value < 0 {
		return 0
	}
	return value
}

// NormalizeOrder returns "asc" or "desc", defaulting when empty. Any other
// value is rejected rather than guessed.
func NormalizeOrder(value, def string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return def, nil
	}
	if trimmed != OrderAsc && trimmed != OrderDesc {
		return "", ErrInvalidOrder
	}
	return trimmed, nil
}

// BuildOffsetPageInfo derives page metadata from the effective window and the
// total row count of the filtered scope.
func BuildOffsetPageInfo(returned, limit, offset int, order string, total int64) PageInfo {
	return PageInfo{
		Limit:          limit,
		Offset:         offset,
		Order:          order,
		Returned:       returned,
		TotalAvailable: total,
		HasMore:        int64(offset+returned) < total,
	}
}
