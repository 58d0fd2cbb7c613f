package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// OwnedRepository stores rows of T that carry an owner column. Every read
// can be narrowed to one owner; every write is always narrowed to one.
type OwnedRepository[T any] struct {
	db          *gorm.DB
	ownerColumn string
	name        string
}

// NewOwnedRepository binds T to the owner column holding the user id. name is
// used in wrapped error messages ("find task: ...").
func NewOwnedRepository[T any](db *gorm.DB, name, ownerColumn string) *OwnedRepository[T] {
	return &OwnedRepository[T]{db: db, name: name, ownerColumn: ownerColumn}
}

// scope narrows tx to owner. A nil owner leaves the query unfiltered.
func (r *OwnedRepository[T]) scope(tx *gorm.DB, owner *uint) *gorm.DB {
	if owner == nil {
		return tx
	}
	return tx.Where(r.ownerColumn+" = ?", *owner)
}

func (r *OwnedRepository[T]) List(ctx context.Context, owner *uint) ([]T, error) {
	var rows []T
	tx := r.scope(r.db.WithContext(ctx).Model(new(T)), owner)
	if err := tx.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", r.name, translate(err))
	}
	return rows, nil
}

func (r *OwnedRepository[T]) Get(ctx context.Context, id uint, owner *uint) (*T, error) {
	var row T
	tx := r.scope(r.db.WithContext(ctx).Where("id = ?", id), owner)
	if err := tx.First(&row).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", r.name, translate(err))
	}
	return &row, nil
}

func (r *OwnedRepository[T]) Create(ctx context.Context, row *T) error {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create %s: %w", r.name, translate(err))
	}
	return nil
}

// Update writes columns of row with a single conditional statement matching
// both the primary key and the owner. A row deleted after it was read yields
// ErrNotFound rather than being written again.
func (r *OwnedRepository[T]) Update(ctx context.Context, row *T, owner uint, columns []string) error {
	if len(columns) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(row).
		Where(r.ownerColumn+" = ?", owner).
		Select(columns).
		Updates(row)
	if res.Error != nil {
		return fmt.Errorf("update %s: %w", r.name, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update %s: %w", r.name, ErrNotFound)
	}
	return nil
}

// Delete removes the row only if owner holds it.
func (r *OwnedRepository[T]) Delete(ctx context.Context, id uint, owner uint) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND "+r.ownerColumn+" = ?", id, owner).
		Delete(new(T))
	if res.Error != nil {
		return fmt.Errorf("delete %s: %w", r.name, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete %s: %w", r.name, ErrNotFound)
	}
	return nil
}
