package services

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/Blackie360/Persona-Studio/models"
	"github.com/Blackie360/Persona-Studio/stores"
	"github.com/Blackie360/Persona-Studio/utils"
)

// AdminService backs the dashboard: login, aggregate reporting over the
// ledgers, and block-list management.
type AdminService struct {
	users    *stores.UserStore
	usage    *stores.UsageStore
	payments *stores.PaymentStore
	credits  *stores.CreditStore
	blocks   *stores.BlockStore
	logger   *utils.Logger
}

func CreateAdminService(
	users *stores.UserStore,
	usage *stores.UsageStore,
	payments *stores.PaymentStore,
	credits *stores.CreditStore,
	blocks *stores.BlockStore,
) *AdminService {
	return &AdminService{
		users:    users,
		usage:    usage,
		payments: payments,
		credits:  credits,
		blocks:   blocks,
		logger:   utils.NewLogger("admin"),
	}
}

func (s *AdminService) Authenticate(ctx context.Context, username, password string) (*models.AdminUser, error) {
	admin, err := s.users.GetAdminByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, utils.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, utils.ErrUnauthorized
	}
	return admin, nil
}

func (s *AdminService) Stats(ctx context.Context) (*models.AdminStats, error) {
	totalUsers, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	totalGenerations, err := s.usage.CountAll(ctx)
	if err != nil {
		return nil, err
	}
	succeeded, err := s.usage.CountByStatus(ctx, models.AttemptStatusSucceeded)
	if err != nil {
		return nil, err
	}
	failed, err := s.usage.CountByStatus(ctx, models.AttemptStatusFailed)
	if err != nil {
		return nil, err
	}
	payingCustomers, err := s.payments.CountPayingCustomers(ctx)
	if err != nil {
		return nil, err
	}
	revenue, err := s.payments.TotalRevenue(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.AdminStats{
		TotalUsers:           totalUsers,
		TotalGenerations:     totalGenerations,
		SucceededGenerations: succeeded,
		FailedGenerations:    failed,
		PayingCustomers:      payingCustomers,
		TotalRevenue:         revenue,
		RevenueCurrency:      "KES",
	}
	if completed := succeeded + failed; completed > 0 {
		stats.SuccessRate = float64(succeeded) / float64(completed)
	}
	return stats, nil
}

func (s *AdminService) ListUsers(ctx context.Context, limit, offset int) ([]*models.UserWithUsage, error) {
	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	result := make([]*models.UserWithUsage, 0, len(users))
	for _, user := range users {
		entry := &models.UserWithUsage{User: *user}

		if count, err := s.usage.CountByUser(ctx, user.ID); err == nil {
			entry.GenerationCount = count
		}
		if balance, err := s.credits.Balance(ctx, user.ID); err == nil {
			entry.PaidHalfUnits = balance
		}
		if blocked, err := s.blocks.IsUserBlocked(ctx, user.ID); err == nil {
			entry.Blocked = blocked
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *AdminService) RecentGenerations(ctx context.Context, limit int) ([]*models.GenerationAttempt, error) {
	return s.usage.ListRecent(ctx, limit)
}

func (s *AdminService) ListPayments(ctx context.Context, limit int) ([]*models.Payment, error) {
	return s.payments.List(ctx, limit)
}

// BlockUser adds an active block entry for the account, also capturing the
// account email so the block follows the person across sessions.
func (s *AdminService) BlockUser(ctx context.Context, adminID, userID string, req *models.BlockRequest) (*models.BlockEntry, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, utils.ErrNotFound
	}

	entry := &models.BlockEntry{
		UserID:    &user.ID,
		Reason:    req.Reason,
		Active:    true,
		BlockedBy: adminID,
	}
	email := user.Email
	if req.Email != "" {
		email = req.Email
	}
	if email != "" {
		entry.Email = &email
	}
	if req.SessionID != "" {
		sessionID := req.SessionID
		entry.SessionID = &sessionID
	}

	if err := s.blocks.Create(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "user blocked", map[string]interface{}{"user_id": userID, "blocked_by": adminID})
	return entry, nil
}

func (s *AdminService) UnblockUser(ctx context.Context, userID string) (int64, error) {
	deactivated, err := s.blocks.Deactivate(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "user unblocked", map[string]interface{}{"user_id": userID})
	return deactivated, nil
}
