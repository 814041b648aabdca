// Package option provides composable query modifiers for the generic repository.
package option

import (
	"fmt"
	"strings"
	"time"

	"github.com/pantheonhq/pantheon/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type optionFunc func(*gorm.DB) *gorm.DB

func (f optionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// ApplyPagination applies the already-clamped limit/offset window.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if p.Limit > 0 {
			db = db.Limit(p.Limit)
		}
		return db.Offset(pagination.ClampOffset(p.Offset))
	})
}

// WithOrder sorts by column in the given direction with id as tie-break so
// offset pagination stays deterministic.
func WithOrder(column, direction string) QueryOption {
	dir := strings.ToUpper(strings.TrimSpace(direction))
	if dir != "ASC" && dir != "DESC" {
		dir = "DESC"
	}
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Order(fmt.Sprintf("%s %s, id %s", column, dir, dir))
	})
}

// WithTimeRange constrains column to the inclusive [since, until] window.
// Nil bounds are skipped.
func WithTimeRange(column string, since, until *time.Time) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if since != nil {
			db = db.Where(column+" >= ?", *since)
		}
		if until != nil {
			db = db.Where(column+" <= ?", *until)
		}
		return db
	})
}

// WithIn constrains column to the given value set. An empty set produces an
// always-false predicate, never an unconstrained query.
func WithIn(column string, values []string) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if len(values) == 0 {
			return db.Where("1 = 0")
		}
		return db.Where(column+" IN ?", values)
	})
}

// Where adds a raw predicate with bound arguments.
func Where(query string, args ...any) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
}

// WithEq constrains column to a single value.
func WithEq(column string, value any) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(column+" = ?", value)
	})
}
