package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound means no row matched the (possibly owner-scoped) lookup.
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicate means a unique index rejected the write.
	ErrDuplicate = errors.New("repository: duplicate key")
	// ErrForeignKey means a referenced row does not exist.
	ErrForeignKey = errors.New("repository: referenced record does not exist")
)

// translate maps gorm's (translated) driver errors onto the package sentinels
// so services never import gorm.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrForeignKey
	default:
		return err
	}
}
