package stores

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Blackie360/Persona-Studio/models"
)

// UsageStore is the durable record of every generation attempt. Attempt rows
// are written before the external generation call starts so that concurrent
// admission checks from the same requester count each other's reservations.
type UsageStore struct {
	BaseStore
}

func CreateUsageStore(db *gorm.DB) *UsageStore {
	return &UsageStore{BaseStore: BaseStore{db: db}}
}

func (s *UsageStore) RecordAttemptStart(ctx context.Context, attempt *models.GenerationAttempt) error {
	attempt.Status = models.AttemptStatusPending
	if err := s.GetDB(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to record attempt start: %w", err)
	}
	return nil
}

// RecordAttemptEnd moves an attempt to a terminal state. Terminal rows are
// never updated again, so a late or duplicate completion is a no-op.
func (s *UsageStore) RecordAttemptEnd(ctx context.Context, attemptID string, status models.AttemptStatus, imageURL string) error {
	if status != models.AttemptStatusSucceeded && status != models.AttemptStatusFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}

	now := time.Now()
	result := s.GetDB(ctx).Model(&models.GenerationAttempt{}).
		Where("id = ? AND status = ?", attemptID, models.AttemptStatusPending).
		Updates(map[string]interface{}{
			"status":       status,
			"image_url":    imageURL,
			"completed_at": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record attempt end: %w", result.Error)
	}
	return nil
}

// ReserveAnonymousSlot writes the pending attempt row only if the client
// address still has a free anonymous slot, as one conditional INSERT. Two
// concurrent requests from the same address cannot both pass: whichever
// insert runs second counts the first's pending row. Returns false when the
// limit is already consumed.
func (s *UsageStore) ReserveAnonymousSlot(ctx context.Context, attempt *models.GenerationAttempt, limit int) (bool, error) {
	attempt.Status = models.AttemptStatusPending
	now := time.Now()
	attempt.CreatedAt = now

	result := s.GetDB(ctx).Exec(`
		INSERT INTO generation_attempts
			(id, user_id, session_id, ip_address, status, cost_class, prompt, image_url, avatar_style, background, color_mood, user_agent, created_at)
		SELECT ?, NULL, ?, ?, ?, ?, ?, '', ?, ?, ?, ?, ?
		WHERE (
			SELECT COUNT(*) FROM generation_attempts
			WHERE ip_address = ? AND user_id IS NULL AND status IN ?
		) < ?`,
		attempt.ID, attempt.SessionID, attempt.IPAddress, models.AttemptStatusPending,
		attempt.CostClass, attempt.Prompt, attempt.AvatarStyle, attempt.Background,
		attempt.ColorMood, attempt.UserAgent, now,
		attempt.IPAddress,
		[]models.AttemptStatus{models.AttemptStatusPending, models.AttemptStatusSucceeded},
		limit)
	if result.Error != nil {
		return false, fmt.Errorf("failed to reserve anonymous slot: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ReserveUserFreeSlot is the authenticated analogue of ReserveAnonymousSlot:
// the pending row is written only while the account's free-allowance
// consumption inside the current window is below the limit.
func (s *UsageStore) ReserveUserFreeSlot(ctx context.Context, attempt *models.GenerationAttempt, windowStart time.Time, limit int) (bool, error) {
	attempt.Status = models.AttemptStatusPending
	now := time.Now()
	attempt.CreatedAt = now

	result := s.GetDB(ctx).Exec(`
		INSERT INTO generation_attempts
			(id, user_id, session_id, ip_address, status, cost_class, prompt, image_url, avatar_style, background, color_mood, user_agent, created_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?, ?, ?
		WHERE (
			SELECT COUNT(*) FROM generation_attempts
			WHERE user_id = ? AND cost_class = ? AND status IN ? AND created_at >= ?
		) < ?`,
		attempt.ID, attempt.UserID, attempt.SessionID, attempt.IPAddress, models.AttemptStatusPending,
		attempt.CostClass, attempt.Prompt, attempt.AvatarStyle, attempt.Background,
		attempt.ColorMood, attempt.UserAgent, now,
		attempt.UserID, models.CostClassFull,
		[]models.AttemptStatus{models.AttemptStatusPending, models.AttemptStatusSucceeded},
		windowStart, limit)
	if result.Error != nil {
		return false, fmt.Errorf("failed to reserve free slot: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// CountAnonymousConsumption counts attempts from one client address that
// hold or consumed a free anonymous slot. Pending rows count: a concurrent
// request must see another's reservation before its external call finishes.
func (s *UsageStore) CountAnonymousConsumption(ctx context.Context, ipAddress string) (int64, error) {
	var count int64
	err := s.GetDB(ctx).Model(&models.GenerationAttempt{}).
		Where("ip_address = ? AND user_id IS NULL AND status IN ?",
			ipAddress, []models.AttemptStatus{models.AttemptStatusPending, models.AttemptStatusSucceeded}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count anonymous consumption: %w", err)
	}
	return count, nil
}

// CountUserConsumption counts an account's free-allowance consumption since
// the start of its usage window. Only full-cost attempts draw on the free
// allowance; partial regenerations are paid-only.
func (s *UsageStore) CountUserConsumption(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := s.GetDB(ctx).Model(&models.GenerationAttempt{}).
		Where("user_id = ? AND cost_class = ? AND status IN ? AND created_at >= ?",
			userID, models.CostClassFull,
			[]models.AttemptStatus{models.AttemptStatusPending, models.AttemptStatusSucceeded}, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count user consumption: %w", err)
	}
	return count, nil
}

// FirstAttemptAt returns when the account first generated, anchoring the
// free-allowance window. Returns zero time when the account has no attempts.
func (s *UsageStore) FirstAttemptAt(ctx context.Context, userID string) (time.Time, error) {
	var attempt models.GenerationAttempt
	err := s.GetDB(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		First(&attempt).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to find first attempt: %w", err)
	}
	return attempt.CreatedAt, nil
}

func (s *UsageStore) ListRecent(ctx context.Context, limit int) ([]*models.GenerationAttempt, error) {
	var attempts []*models.GenerationAttempt
	err := s.GetDB(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

func (s *UsageStore) CountByStatus(ctx context.Context, status models.AttemptStatus) (int64, error) {
	var count int64
	err := s.GetDB(ctx).Model(&models.GenerationAttempt{}).
		Where("status = ?", status).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

func (s *UsageStore) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := s.GetDB(ctx).Model(&models.GenerationAttempt{}).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

func (s *UsageStore) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.GetDB(ctx).Model(&models.GenerationAttempt{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count user attempts: %w", err)
	}
	return count, nil
}
