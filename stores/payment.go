package stores

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Blackie360/Persona-Studio/models"
)

type PaymentStore struct {
	BaseStore
}

func CreatePaymentStore(db *gorm.DB) *PaymentStore {
	return &PaymentStore{BaseStore: BaseStore{db: db}}
}

func (s *PaymentStore) Create(ctx context.Context, payment *models.Payment) error {
	if err := s.GetDB(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (s *PaymentStore) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	err := s.GetDB(ctx).Where("provider_reference = ?", reference).First(&payment).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by reference: %w", err)
	}
	return &payment, nil
}

func (s *PaymentStore) UpdateReference(ctx context.Context, paymentID, reference string) error {
	err := s.GetDB(ctx).Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Update("provider_reference", reference).Error
	if err != nil {
		return fmt.Errorf("failed to update payment reference: %w", err)
	}
	return nil
}

// MarkSuccess performs the pending -> success transition. The conditional
// update makes the transition happen at most once; the return value reports
// whether this caller won it. Processors redeliver webhooks, sometimes
// concurrently, and only the winner may grant credits.
func (s *PaymentStore) MarkSuccess(ctx context.Context, paymentID string) (bool, error) {
	now := time.Now()
	result := s.GetDB(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":       models.PaymentStatusSuccess,
			"completed_at": &now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark payment success: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *PaymentStore) MarkFailed(ctx context.Context, paymentID string) error {
	now := time.Now()
	err := s.GetDB(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":       models.PaymentStatusFailed,
			"completed_at": &now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	return nil
}

// ListUnlinkedSuccessByEmail finds successful payments made before the payer
// had an account, matched by the email captured at checkout. Linked payments
// never match, which is what makes the linking pass idempotent.
func (s *PaymentStore) ListUnlinkedSuccessByEmail(ctx context.Context, email string) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := s.GetDB(ctx).
		Where("status = ? AND user_id IS NULL AND LOWER(payer_email) = LOWER(?)",
			models.PaymentStatusSuccess, email).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unlinked payments: %w", err)
	}
	return payments, nil
}

// Link attaches payments to an account. Only still-unlinked rows are
// touched, so a concurrent linking pass cannot double-assign.
func (s *PaymentStore) Link(ctx context.Context, paymentIDs []string, userID string) (int64, error) {
	if len(paymentIDs) == 0 {
		return 0, nil
	}
	result := s.GetDB(ctx).Model(&models.Payment{}).
		Where("id IN ? AND user_id IS NULL", paymentIDs).
		Update("user_id", userID)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to link payments: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *PaymentStore) List(ctx context.Context, limit int) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := s.GetDB(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

func (s *PaymentStore) CountPayingCustomers(ctx context.Context) (int64, error) {
	var count int64
	err := s.GetDB(ctx).Model(&models.Payment{}).
		Where("status = ? AND user_id IS NOT NULL", models.PaymentStatusSuccess).
		Distinct("user_id").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count paying customers: %w", err)
	}
	return count, nil
}

func (s *PaymentStore) TotalRevenue(ctx context.Context) (int64, error) {
	var total *int64
	err := s.GetDB(ctx).Model(&models.Payment{}).
		Where("status = ?", models.PaymentStatusSuccess).
		Select("SUM(amount)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum revenue: %w", err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
