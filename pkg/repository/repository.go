// Package repository provides a small generic data-access layer over gorm.
package repository

import (
	"context"

	"github.com/pantheonhq/pantheon/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is the shared persistence contract for struct-filtered queries.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Save(ctx context.Context, resource *T) error
	Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error)
	Delete(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error)
}
