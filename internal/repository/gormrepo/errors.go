package gormrepo

import (
	"errors"

	"github.com/dom/neighbor-group/internal/domain"
	"gorm.io/gorm"
)

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
