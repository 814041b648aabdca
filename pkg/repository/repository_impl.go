package repository

import (
	"context"
	"errors"

	"github.com/pantheonhq/pantheon/pkg/db"
	"github.com/pantheonhq/pantheon/pkg/db/option"
	"gorm.io/gorm"
)

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](conn *gorm.DB) Repository[T] {
	return &store[T]{db: conn}
}

func (r *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx}
}

func (r *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var result []*T
	stmt := r.buildQuery(ctx, query, opts...)
	err := stmt.Find(&result).Error
	return result, db.TranslateError(err)
}

func (r *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var result T
	stmt := r.buildQuery(ctx, query, opts...)
	err := stmt.First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, db.TranslateError(err)
	}
	return &result, nil
}

func (r *store[T]) Create(ctx context.Context, resource *T) error {
	return db.TranslateError(r.db.WithContext(ctx).Create(resource).Error)
}

func (r *store[T]) Save(ctx context.Context, resource *T) error {
	return db.TranslateError(r.db.WithContext(ctx).Save(resource).Error)
}

func (r *store[T]) Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error) {
	var count int64
	stmt := r.buildQuery(ctx, query, opts...).Model(new(T))
	err := stmt.Count(&count).Error
	return count, db.TranslateError(err)
}

func (r *store[T]) Delete(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error) {
	var dummy T
	stmt := r.buildQuery(ctx, query, opts...)
	result := stmt.Delete(&dummy)
	return result.RowsAffected, db.TranslateError(result.Error)
}

func (r *store[T]) buildQuery(ctx context.Context, filter *T, opts ...option.QueryOption) *gorm.DB {
	stmt := r.db.WithContext(ctx)
	if filter != nil {
		stmt = stmt.Where(filter)
	}
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}
	return stmt
}
