// Package repository provides data access layer implementations for the application.
package repository

import (
	"errors"

	"docket/internal/database"
	"docket/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lookupError maps a single-row lookup failure to NOT_FOUND or INTERNAL_ERROR.
func lookupError(err error, resource string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return models.NewInternalError(err)
}

// forUpdate adds a row lock on dialects that support it. SQLite serializes writers itself.
func forUpdate(db *gorm.DB) *gorm.DB {
	if database.IsPostgres(db) {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}
