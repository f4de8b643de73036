package stores

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Blackie360/Persona-Studio/models"
)

type BlockStore struct {
	BaseStore
}

func CreateBlockStore(db *gorm.DB) *BlockStore {
	return &BlockStore{BaseStore: BaseStore{db: db}}
}

// HasActiveMatch reports whether any active block entry matches any of the
// supplied identifiers. Empty identifiers never match.
func (s *BlockStore) HasActiveMatch(ctx context.Context, userID, email, sessionID string) (bool, error) {
	query := s.GetDB(ctx).Model(&models.BlockEntry{}).Where("active = ?", true)

	conditions := s.GetDB(ctx).Where("1 = 0")
	if userID != "" {
		conditions = conditions.Or("user_id = ?", userID)
	}
	if email != "" {
		conditions = conditions.Or("LOWER(email) = LOWER(?)", email)
	}
	if sessionID != "" {
		conditions = conditions.Or("session_id = ?", sessionID)
	}

	var count int64
	if err := query.Where(conditions).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check block list: %w", err)
	}
	return count > 0, nil
}

func (s *BlockStore) Create(ctx context.Context, entry *models.BlockEntry) error {
	if entry.UserID == nil && entry.Email == nil && entry.SessionID == nil {
		return fmt.Errorf("block entry requires at least one identifier")
	}
	if err := s.GetDB(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create block entry: %w", err)
	}
	return nil
}

// Deactivate soft-deletes all active entries for an account. Rows are kept
// for the audit trail.
func (s *BlockStore) Deactivate(ctx context.Context, userID string) (int64, error) {
	result := s.GetDB(ctx).Model(&models.BlockEntry{}).
		Where("user_id = ? AND active = ?", userID, true).
		Update("active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to deactivate block entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *BlockStore) ListActive(ctx context.Context) ([]*models.BlockEntry, error) {
	var entries []*models.BlockEntry
	err := s.GetDB(ctx).
		Where("active = ?", true).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list block entries: %w", err)
	}
	return entries, nil
}

func (s *BlockStore) IsUserBlocked(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := s.GetDB(ctx).Model(&models.BlockEntry{}).
		Where("user_id = ? AND active = ?", userID, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check user block status: %w", err)
	}
	return count > 0, nil
}
