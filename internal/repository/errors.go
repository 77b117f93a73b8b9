package repository

import (
	"errors"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"gorm.io/gorm"
)

// translateCreateError maps a primary or unique key collision to ErrConflict,
// giving Create put-if-absent semantics.
func translateCreateError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrConflict
	}
	return err
}

func translateFirstError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
