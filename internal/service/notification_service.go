package service

import (
	"context"

	"gorm.io/gorm"

	"docket/internal/models"
)

const defaultNotificationLimit = 50

// NotificationService reads and acknowledges the caller's notifications.
type NotificationService struct {
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) List(ctx context.Context, actor models.Actor, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultNotificationLimit
	}
	return newStores(s.db).notifications.ListByUser(ctx, actor.UserID, unreadOnly, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, actor models.Actor) (int64, error) {
	return newStores(s.db).notifications.CountUnread(ctx, actor.UserID)
}

// MarkRead acknowledges one of the caller's notifications.
func (s *NotificationService) MarkRead(ctx context.Context, actor models.Actor, id uint) error {
	return newStores(s.db).notifications.MarkRead(ctx, actor.UserID, id)
}
