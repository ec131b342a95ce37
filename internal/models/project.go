package models

import (
	"regexp"
	"time"
)

var codePrefixPattern = regexp.MustCompile(`^[A-Z0-9]+$`)

// ValidCodePrefix reports whether prefix is a non-empty uppercase alphanumeric code.
func ValidCodePrefix(prefix string) bool {
	return codePrefixPattern.MatchString(prefix)
}

// Project owns a tree of items numbered under CodePrefix.
type Project struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CodePrefix  string    `gorm:"size:32;uniqueIndex;not null" json:"code_prefix"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	ItemCount   int64     `gorm:"-" json:"item_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Project) TableName() string {
	return "projects"
}
