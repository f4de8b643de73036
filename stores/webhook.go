package stores

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Blackie360/Persona-Studio/models"
)

type WebhookEventStore struct {
	BaseStore
}

func CreateWebhookEventStore(db *gorm.DB) *WebhookEventStore {
	return &WebhookEventStore{BaseStore: BaseStore{db: db}}
}

func (s *WebhookEventStore) Create(ctx context.Context, event *models.WebhookEvent) error {
	if err := s.GetDB(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to create webhook event: %w", err)
	}
	return nil
}

func (s *WebhookEventStore) MarkCompleted(ctx context.Context, eventID string) error {
	now := time.Now()
	err := s.GetDB(ctx).Model(&models.WebhookEvent{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{
			"status":       models.WebhookEventStatusCompleted,
			"processed_at": &now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark webhook event completed: %w", err)
	}
	return nil
}

func (s *WebhookEventStore) MarkFailed(ctx context.Context, eventID, errorMessage string) error {
	now := time.Now()
	err := s.GetDB(ctx).Model(&models.WebhookEvent{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{
			"status":        models.WebhookEventStatusFailed,
			"error_message": errorMessage,
			"processed_at":  &now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark webhook event failed: %w", err)
	}
	return nil
}
