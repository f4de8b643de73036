package stores

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Blackie360/Persona-Studio/models"
)

// UserStore is the account directory. The reconciliation service uses it to
// resolve a payer email to an account when a webhook arrives for a payment
// that was initiated before signup.
type UserStore struct {
	BaseStore
}

func CreateUserStore(db *gorm.DB) *UserStore {
	return &UserStore{BaseStore: BaseStore{db: db}}
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	if err := s.GetDB(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.GetDB(ctx).Where("id = ?", id).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.GetDB(ctx).Where("LOWER(email) = LOWER(?)", email).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

func (s *UserStore) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	var users []*models.User
	err := s.GetDB(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *UserStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.GetDB(ctx).Model(&models.User{}).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// GetSessionByToken resolves an opaque session token to its session row, or
// nil when the token is unknown or expired.
func (s *UserStore) GetSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	err := s.GetDB(ctx).
		Where("token = ? AND expires_at > NOW()", token).
		First(&session).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (s *UserStore) GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	var admin models.AdminUser
	err := s.GetDB(ctx).Where("username = ?", username).First(&admin).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin user: %w", err)
	}
	return &admin, nil
}
