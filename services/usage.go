package services

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Blackie360/Persona-Studio/models"
	"github.com/Blackie360/Persona-Studio/utils"
)

// UsageService answers the entitlement status query. The Redis cache is a
// hint for the hot anonymous path only; the durable ledgers stay
// authoritative and every admission goes to them.
type UsageService struct {
	admission *AdmissionService
	cache     *redis.Client
	cacheTTL  time.Duration
	logger    *utils.Logger
}

func CreateUsageService(admission *AdmissionService, cache *redis.Client, cacheTTL time.Duration) *UsageService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &UsageService{
		admission: admission,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    utils.NewLogger("usage"),
	}
}

// RemainingFor reports the computed remaining entitlement. Authenticated
// accounts get their actual free+paid balance, not a sentinel.
func (s *UsageService) RemainingFor(ctx context.Context, identity Identity) (*models.UsageResponse, error) {
	if identity.Authenticated() {
		remaining, err := s.admission.Remaining(ctx, identity)
		if err != nil {
			return nil, err
		}
		return &models.UsageResponse{Remaining: remaining, IsAuthenticated: true}, nil
	}

	if cached, ok := s.cachedAnonymous(ctx, identity.IPAddress); ok {
		return &models.UsageResponse{Remaining: cached, IsAuthenticated: false}, nil
	}

	remaining, err := s.admission.Remaining(ctx, identity)
	if err != nil {
		return nil, err
	}
	s.storeAnonymous(ctx, identity.IPAddress, remaining)

	return &models.UsageResponse{Remaining: remaining, IsAuthenticated: false}, nil
}

// InvalidateAnonymous drops the cached hint after an admission changes it.
func (s *UsageService) InvalidateAnonymous(ctx context.Context, ipAddress string) {
	if s.cache == nil || ipAddress == "" {
		return
	}
	if err := s.cache.Del(ctx, anonymousUsageKey(ipAddress)).Err(); err != nil {
		s.logger.Warn(ctx, "failed to invalidate usage cache", map[string]interface{}{"error": err.Error()})
	}
}

func (s *UsageService) cachedAnonymous(ctx context.Context, ipAddress string) (float64, bool) {
	if s.cache == nil || ipAddress == "" {
		return 0, false
	}
	val, err := s.cache.Get(ctx, anonymousUsageKey(ipAddress)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn(ctx, "usage cache read failed", map[string]interface{}{"error": err.Error()})
		}
		return 0, false
	}
	remaining, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return remaining, true
}

func (s *UsageService) storeAnonymous(ctx context.Context, ipAddress string, remaining float64) {
	if s.cache == nil || ipAddress == "" {
		return
	}
	err := s.cache.Set(ctx, anonymousUsageKey(ipAddress),
		strconv.FormatFloat(remaining, 'f', -1, 64), s.cacheTTL).Err()
	if err != nil {
		s.logger.Warn(ctx, "usage cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

func anonymousUsageKey(ipAddress string) string {
	return "usage:anon:" + ipAddress
}
