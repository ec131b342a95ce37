package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Attachment describes a file stored in the blob store and linked from an item.
type Attachment struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
}

// Attachments is an ordered attachment list persisted as a JSON text column.
type Attachments []Attachment

// Value implements driver.Valuer.
func (a Attachments) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]Attachment(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *Attachments) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Attachments{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("attachments: unsupported source type %T", src)
	}
	if len(raw) == 0 {
		*a = Attachments{}
		return nil
	}
	var out []Attachment
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("attachments: %w", err)
	}
	*a = out
	return nil
}

// Item is a node of a project's document tree. FullID is assigned once at creation.
type Item struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	FullID      string      `gorm:"size:191;uniqueIndex;not null" json:"full_id"`
	Title       string      `gorm:"size:255;not null" json:"title"`
	Content     string      `gorm:"type:text" json:"content"`
	Attachments Attachments `gorm:"type:text" json:"attachments"`
	ProjectID   uint        `gorm:"not null;index:idx_items_project_parent" json:"project_id"`
	Project     *Project    `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	ParentID    *uint       `gorm:"index:idx_items_project_parent" json:"parent_id"`
	IsDeleted   bool        `gorm:"not null;default:false" json:"is_deleted"`
	PublishedAt *time.Time  `json:"published_at"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	Related []Item `gorm:"-" json:"related,omitempty"`
}

// TableName specifies the table name for GORM.
func (Item) TableName() string {
	return "items"
}

// ItemRelation is one direction of a symmetric related-item edge. Both directions are always
// written and removed together.
type ItemRelation struct {
	ItemID    uint      `gorm:"primaryKey;autoIncrement:false" json:"item_id"`
	RelatedID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"related_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (ItemRelation) TableName() string {
	return "item_relations"
}

// ItemHistory is an immutable snapshot of an item written whenever a change request is applied.
// QC approvals and generated documents hang off these versions.
type ItemHistory struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ItemID          uint       `gorm:"not null;uniqueIndex:idx_item_history_version" json:"item_id"`
	ItemFullID      string     `gorm:"size:191;not null" json:"item_full_id"`
	ItemTitle       string     `gorm:"size:255;not null" json:"item_title"`
	ItemContent     string     `gorm:"type:text" json:"item_content"`
	ProjectID       uint       `gorm:"not null;index" json:"project_id"`
	Version         int        `gorm:"not null;uniqueIndex:idx_item_history_version" json:"version"`
	ChangeType      ChangeType `gorm:"type:varchar(10);not null" json:"change_type"`
	ChangeRequestID *uint      `gorm:"index" json:"change_request_id"`
	SubmittedByID   uint       `gorm:"not null" json:"submitted_by_id"`
	SubmittedBy     *User      `gorm:"foreignKey:SubmittedByID" json:"submitted_by,omitempty"`
	ReviewedByID    *uint      `json:"reviewed_by_id"`
	ISODocPath      string     `gorm:"size:512" json:"iso_doc_path"`
	CreatedAt       time.Time  `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (ItemHistory) TableName() string {
	return "item_histories"
}
