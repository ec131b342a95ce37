package models

import "time"

// DataFile is a generic uploaded file kept in the blob store, grouped by data year.
type DataFile struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	FileName     string    `gorm:"size:255;not null" json:"file_name"`
	FilePath     string    `gorm:"size:512;not null" json:"file_path"`
	FileSize     int64     `gorm:"not null" json:"file_size"`
	MimeType     string    `gorm:"size:128" json:"mime_type"`
	DataYear     int       `gorm:"not null;index" json:"data_year"`
	DataCode     string    `gorm:"size:64" json:"data_code"`
	UploadedByID uint      `gorm:"not null" json:"uploaded_by_id"`
	UploadedBy   *User     `gorm:"foreignKey:UploadedByID" json:"uploaded_by,omitempty"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for GORM.
func (DataFile) TableName() string {
	return "data_files"
}
