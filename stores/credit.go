package stores

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Blackie360/Persona-Studio/models"
)

// CreditStore holds purchased half-units per account. All mutations are
// relative so concurrent grants and consumptions compose, and the consume
// path enforces the non-negative invariant inside a single conditional
// UPDATE rather than a read-then-write pair.
type CreditStore struct {
	BaseStore
}

func CreateCreditStore(db *gorm.DB) *CreditStore {
	return &CreditStore{BaseStore: BaseStore{db: db}}
}

// Grant adds halfUnits to the account balance, creating the row lazily on
// first grant. The upsert keeps concurrent webhook deliveries additive.
func (s *CreditStore) Grant(ctx context.Context, userID string, halfUnits int64) error {
	if halfUnits <= 0 {
		return fmt.Errorf("grant requires a positive amount, got %d", halfUnits)
	}

	err := s.GetDB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"half_units": gorm.Expr("credit_balances.half_units + ?", halfUnits),
		}),
	}).Create(&models.CreditBalance{
		UserID:    userID,
		HalfUnits: halfUnits,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to grant credits: %w", err)
	}
	return nil
}

// Consume atomically deducts halfUnits, refusing to drive the balance
// negative. Returns false when the balance is insufficient (or the account
// has no balance row at all). The admission controller should have gated
// already; this guard is independent of it.
func (s *CreditStore) Consume(ctx context.Context, userID string, halfUnits int64) (bool, error) {
	if halfUnits <= 0 {
		return false, fmt.Errorf("consume requires a positive amount, got %d", halfUnits)
	}

	result := s.GetDB(ctx).Model(&models.CreditBalance{}).
		Where("user_id = ? AND half_units >= ?", userID, halfUnits).
		Update("half_units", gorm.Expr("half_units - ?", halfUnits))
	if result.Error != nil {
		return false, fmt.Errorf("failed to consume credits: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Balance returns the paid half-unit balance, zero for accounts that never
// purchased.
func (s *CreditStore) Balance(ctx context.Context, userID string) (int64, error) {
	var balance models.CreditBalance
	err := s.GetDB(ctx).Where("user_id = ?", userID).First(&balance).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read credit balance: %w", err)
	}
	return balance.HalfUnits, nil
}
