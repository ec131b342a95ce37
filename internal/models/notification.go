package models

import "time"

// NotificationType classifies a workflow notification.
type NotificationType string

const (
	NotificationCompleted       NotificationType = "COMPLETED"
	NotificationRevisionRequest NotificationType = "REVISION_REQUEST"
	NotificationChangeApproved  NotificationType = "CHANGE_APPROVED"
	NotificationChangeRejected  NotificationType = "CHANGE_REJECTED"
)

// Notification is a persisted message for one user, also pushed over the realtime channel.
type Notification struct {
	ID              uint             `gorm:"primaryKey" json:"id"`
	UserID          uint             `gorm:"not null;index" json:"user_id"`
	Type            NotificationType `gorm:"type:varchar(20);not null" json:"type"`
	Title           string           `gorm:"size:255;not null" json:"title"`
	Message         string           `gorm:"type:text" json:"message"`
	Link            string           `gorm:"size:512" json:"link"`
	IsRead          bool             `gorm:"not null;default:false;index" json:"is_read"`
	ChangeRequestID *uint            `gorm:"index" json:"change_request_id,omitempty"`
	QCApprovalID    *uint            `json:"qc_approval_id,omitempty"`
	ItemHistoryID   *uint            `json:"item_history_id,omitempty"`
	CreatedAt       time.Time        `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for GORM.
func (Notification) TableName() string {
	return "notifications"
}
