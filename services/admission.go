package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Blackie360/Persona-Studio/config"
	"github.com/Blackie360/Persona-Studio/models"
	"github.com/Blackie360/Persona-Studio/monitoring"
	"github.com/Blackie360/Persona-Studio/utils"
)

type usageLedger interface {
	RecordAttemptStart(ctx context.Context, attempt *models.GenerationAttempt) error
	ReserveAnonymousSlot(ctx context.Context, attempt *models.GenerationAttempt, limit int) (bool, error)
	ReserveUserFreeSlot(ctx context.Context, attempt *models.GenerationAttempt, windowStart time.Time, limit int) (bool, error)
	CountAnonymousConsumption(ctx context.Context, ipAddress string) (int64, error)
	CountUserConsumption(ctx context.Context, userID string, since time.Time) (int64, error)
	FirstAttemptAt(ctx context.Context, userID string) (time.Time, error)
}

type creditLedger interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Consume(ctx context.Context, userID string, halfUnits int64) (bool, error)
	Grant(ctx context.Context, userID string, halfUnits int64) error
}

// Pool names the entitlement pools an operation can draw from.
type Pool string

const (
	PoolFree Pool = "free"
	PoolPaid Pool = "paid"
)

// PoolCharge is one deduction produced by Allocate.
type PoolCharge struct {
	Pool      Pool
	FreeSlots int
	HalfUnits int64
}

// Denial reasons, surfaced in metrics and in the 429 body.
const (
	ReasonRateLimited  = "rate_limited"
	ReasonPaidRequired = "paid_required"
	ReasonLedgerError  = "ledger_error"
)

// Decision is the admission verdict. Remaining is the entitlement left after
// the proposed operation when allowed, or the current entitlement when
// denied; fractional values appear when a paid balance holds an odd number
// of half-units.
type Decision struct {
	Allowed   bool
	Remaining float64
	Reason    string
}

// AdmissionResult carries the reservation made by Admit so the caller can
// complete or unwind it.
type AdmissionResult struct {
	Decision  Decision
	AttemptID string
	Charges   []PoolCharge
}

// Allocate decides which pools an operation draws from, in strict priority
// order: the free allowance first, then paid half-units. Partial
// regenerations (half cost) are a paid-only feature and never touch the free
// allowance, even when free slots remain. Pure; storage-free.
func Allocate(freeSlots int, paidHalfUnits int64, costClass models.CostClass) ([]PoolCharge, bool) {
	switch costClass {
	case models.CostClassFull:
		if freeSlots > 0 {
			return []PoolCharge{{Pool: PoolFree, FreeSlots: 1}}, true
		}
		if paidHalfUnits >= models.HalfUnitsPerGeneration {
			return []PoolCharge{{Pool: PoolPaid, HalfUnits: models.HalfUnitsPerGeneration}}, true
		}
		return nil, false
	case models.CostClassHalf:
		if paidHalfUnits >= 1 {
			return []PoolCharge{{Pool: PoolPaid, HalfUnits: 1}}, true
		}
		return nil, false
	default:
		return nil, false
	}
}

// AdmissionService decides whether a requester may run a generation and
// reserves the entitlement it will consume. All state lives in the usage and
// credit ledgers; the service itself is stateless.
type AdmissionService struct {
	usage   usageLedger
	credits creditLedger
	limits  config.EntitlementConfig
	logger  *utils.Logger
}

func CreateAdmissionService(usage usageLedger, credits creditLedger, limits config.EntitlementConfig) *AdmissionService {
	return &AdmissionService{
		usage:   usage,
		credits: credits,
		limits:  limits,
		logger:  utils.NewLogger("admission"),
	}
}

// CanAdmit reports the verdict without reserving anything. Use Admit for the
// real thing; this exists for the entitlement status query and UI gating.
func (s *AdmissionService) CanAdmit(ctx context.Context, identity Identity, costClass models.CostClass) (Decision, error) {
	if !identity.Authenticated() {
		return s.canAdmitAnonymous(ctx, identity, costClass)
	}
	return s.canAdmitAuthenticated(ctx, identity, costClass)
}

func (s *AdmissionService) canAdmitAnonymous(ctx context.Context, identity Identity, costClass models.CostClass) (Decision, error) {
	if costClass == models.CostClassHalf {
		return Decision{Allowed: false, Reason: ReasonPaidRequired}, nil
	}

	used, err := s.usage.CountAnonymousConsumption(ctx, identity.IPAddress)
	if err != nil {
		// Failing open here would defeat the rate limit entirely.
		s.logger.Error(ctx, "anonymous usage count failed, denying", map[string]interface{}{"error": err.Error()})
		return Decision{Allowed: false, Reason: ReasonLedgerError}, fmt.Errorf("usage ledger unavailable: %w", err)
	}

	remaining := int64(s.limits.AnonymousFreeLimit) - used
	if remaining <= 0 {
		return Decision{Allowed: false, Remaining: 0, Reason: ReasonRateLimited}, nil
	}
	return Decision{Allowed: true, Remaining: float64(remaining - 1)}, nil
}

func (s *AdmissionService) canAdmitAuthenticated(ctx context.Context, identity Identity, costClass models.CostClass) (Decision, error) {
	freeSlots, _, err := s.freeAllowance(ctx, identity.UserID)
	if err != nil {
		s.logger.Error(ctx, "free allowance read failed, denying", map[string]interface{}{"error": err.Error()})
		return Decision{Allowed: false, Reason: ReasonLedgerError}, fmt.Errorf("usage ledger unavailable: %w", err)
	}

	paid := s.paidBalance(ctx, identity.UserID)

	charges, ok := Allocate(freeSlots, paid, costClass)
	if !ok {
		reason := ReasonRateLimited
		if costClass == models.CostClassHalf {
			reason = ReasonPaidRequired
		}
		return Decision{Allowed: false, Remaining: remainingOf(freeSlots, paid), Reason: reason}, nil
	}

	for _, charge := range charges {
		freeSlots -= charge.FreeSlots
		paid -= charge.HalfUnits
	}
	return Decision{Allowed: true, Remaining: remainingOf(freeSlots, paid)}, nil
}

// Remaining reports the requester's current entitlement without reserving
// or charging anything.
func (s *AdmissionService) Remaining(ctx context.Context, identity Identity) (float64, error) {
	if !identity.Authenticated() {
		used, err := s.usage.CountAnonymousConsumption(ctx, identity.IPAddress)
		if err != nil {
			return 0, fmt.Errorf("usage ledger unavailable: %w", err)
		}
		left := int64(s.limits.AnonymousFreeLimit) - used
		if left < 0 {
			left = 0
		}
		return float64(left), nil
	}

	freeSlots, _, err := s.freeAllowance(ctx, identity.UserID)
	if err != nil {
		return 0, fmt.Errorf("usage ledger unavailable: %w", err)
	}
	return remainingOf(freeSlots, s.paidBalance(ctx, identity.UserID)), nil
}

// Admit performs the admission decision and the entitlement reservation as
// one logical step: the pending ledger row (or the paid-balance decrement)
// is durable before the caller starts the external generation call.
func (s *AdmissionService) Admit(ctx context.Context, identity Identity, attempt *models.GenerationAttempt) (*AdmissionResult, error) {
	var result *AdmissionResult
	var err error

	if !identity.Authenticated() {
		result, err = s.admitAnonymous(ctx, identity, attempt)
	} else {
		result, err = s.admitAuthenticated(ctx, identity, attempt)
	}

	if result != nil {
		outcome := "denied"
		if result.Decision.Allowed {
			outcome = "allowed"
		}
		monitoring.AdmissionsTotal.WithLabelValues(outcome, result.Decision.Reason).Inc()
	}
	return result, err
}

func (s *AdmissionService) admitAnonymous(ctx context.Context, identity Identity, attempt *models.GenerationAttempt) (*AdmissionResult, error) {
	if attempt.CostClass == models.CostClassHalf {
		return &AdmissionResult{Decision: Decision{Allowed: false, Reason: ReasonPaidRequired}}, nil
	}

	attempt.IPAddress = &identity.IPAddress
	attempt.UserID = nil

	reserved, err := s.usage.ReserveAnonymousSlot(ctx, attempt, s.limits.AnonymousFreeLimit)
	if err != nil {
		s.logger.Error(ctx, "anonymous reservation failed, denying", map[string]interface{}{"error": err.Error()})
		return &AdmissionResult{Decision: Decision{Allowed: false, Reason: ReasonLedgerError}},
			fmt.Errorf("usage ledger unavailable: %w", err)
	}

	used, countErr := s.usage.CountAnonymousConsumption(ctx, identity.IPAddress)
	remaining := float64(0)
	if countErr == nil {
		if left := int64(s.limits.AnonymousFreeLimit) - used; left > 0 {
			remaining = float64(left)
		}
	}

	if !reserved {
		return &AdmissionResult{Decision: Decision{Allowed: false, Remaining: remaining, Reason: ReasonRateLimited}}, nil
	}

	return &AdmissionResult{
		Decision:  Decision{Allowed: true, Remaining: remaining},
		AttemptID: attempt.ID,
		Charges:   []PoolCharge{{Pool: PoolFree, FreeSlots: 1}},
	}, nil
}

func (s *AdmissionService) admitAuthenticated(ctx context.Context, identity Identity, attempt *models.GenerationAttempt) (*AdmissionResult, error) {
	attempt.UserID = &identity.UserID
	if identity.IPAddress != "" {
		attempt.IPAddress = &identity.IPAddress
	}

	freeSlots, windowStart, err := s.freeAllowance(ctx, identity.UserID)
	if err != nil {
		s.logger.Error(ctx, "free allowance read failed, denying", map[string]interface{}{"error": err.Error()})
		return &AdmissionResult{Decision: Decision{Allowed: false, Reason: ReasonLedgerError}},
			fmt.Errorf("usage ledger unavailable: %w", err)
	}

	paid := s.paidBalance(ctx, identity.UserID)

	charges, ok := Allocate(freeSlots, paid, attempt.CostClass)
	if !ok {
		reason := ReasonRateLimited
		if attempt.CostClass == models.CostClassHalf {
			reason = ReasonPaidRequired
		}
		return &AdmissionResult{Decision: Decision{Allowed: false, Remaining: remainingOf(freeSlots, paid), Reason: reason}}, nil
	}

	charge := charges[0]
	if charge.Pool == PoolFree {
		reserved, err := s.usage.ReserveUserFreeSlot(ctx, attempt, windowStart, s.limits.AuthFreeLimit)
		if err != nil {
			s.logger.Error(ctx, "free slot reservation failed, denying", map[string]interface{}{"error": err.Error()})
			return &AdmissionResult{Decision: Decision{Allowed: false, Reason: ReasonLedgerError}},
				fmt.Errorf("usage ledger unavailable: %w", err)
		}
		if reserved {
			return &AdmissionResult{
				Decision:  Decision{Allowed: true, Remaining: remainingOf(freeSlots-1, paid)},
				AttemptID: attempt.ID,
				Charges:   charges,
			}, nil
		}
		// Lost the race for the last free slot; fall through to paid.
		charges, ok = Allocate(0, paid, attempt.CostClass)
		if !ok {
			return &AdmissionResult{Decision: Decision{Allowed: false, Remaining: remainingOf(0, paid), Reason: ReasonRateLimited}}, nil
		}
		charge = charges[0]
	}

	consumed, err := s.credits.Consume(ctx, identity.UserID, charge.HalfUnits)
	if err != nil {
		// Paid credits fail closed: never grant what the ledger cannot prove.
		s.logger.Error(ctx, "credit consume failed, denying", map[string]interface{}{"error": err.Error()})
		return &AdmissionResult{Decision: Decision{Allowed: false, Reason: ReasonLedgerError}},
			fmt.Errorf("credit ledger unavailable: %w", err)
	}
	if !consumed {
		reason := ReasonRateLimited
		if attempt.CostClass == models.CostClassHalf {
			reason = ReasonPaidRequired
		}
		return &AdmissionResult{Decision: Decision{Allowed: false, Remaining: remainingOf(0, s.paidBalance(ctx, identity.UserID)), Reason: reason}}, nil
	}
	monitoring.CreditsConsumedTotal.Add(float64(charge.HalfUnits))

	if err := s.usage.RecordAttemptStart(ctx, attempt); err != nil {
		// The paid deduction is durable but the attempt row is not; return
		// the units rather than strand them.
		s.logger.Error(ctx, "attempt start failed after paid deduction, refunding", map[string]interface{}{"error": err.Error()})
		if grantErr := s.credits.Grant(ctx, identity.UserID, charge.HalfUnits); grantErr != nil {
			s.logger.Error(ctx, "refund after failed attempt start also failed", map[string]interface{}{
				"error":      grantErr.Error(),
				"half_units": charge.HalfUnits,
				"user_id":    identity.UserID,
			})
		}
		return &AdmissionResult{Decision: Decision{Allowed: false, Reason: ReasonLedgerError}},
			fmt.Errorf("usage ledger unavailable: %w", err)
	}

	return &AdmissionResult{
		Decision:  Decision{Allowed: true, Remaining: remainingOf(freeSlots, paid-charge.HalfUnits)},
		AttemptID: attempt.ID,
		Charges:   charges,
	}, nil
}

// Refund returns paid half-units reserved by Admit for an operation that
// failed or was cancelled before producing anything. Free-slot charges are
// not refunded: the attempt row simply ends up failed, and failed rows do
// not count toward consumption.
func (s *AdmissionService) Refund(ctx context.Context, identity Identity, charges []PoolCharge) {
	for _, charge := range charges {
		if charge.Pool != PoolPaid || charge.HalfUnits <= 0 {
			continue
		}
		if err := s.credits.Grant(ctx, identity.UserID, charge.HalfUnits); err != nil {
			s.logger.Error(ctx, "paid refund failed", map[string]interface{}{
				"error":      err.Error(),
				"half_units": charge.HalfUnits,
				"user_id":    identity.UserID,
			})
		}
	}
}

// freeAllowance computes the remaining free slots and the start of the
// current allowance window. Windows are consecutive fixed periods anchored
// at the account's first generation; when a window elapses the allowance
// resets.
func (s *AdmissionService) freeAllowance(ctx context.Context, userID string) (int, time.Time, error) {
	now := time.Now()

	anchor, err := s.usage.FirstAttemptAt(ctx, userID)
	if err != nil {
		return 0, time.Time{}, err
	}
	if anchor.IsZero() {
		return s.limits.AuthFreeLimit, now, nil
	}

	windowStart := anchor
	for now.Sub(windowStart) >= s.limits.AuthFreeWindow {
		windowStart = windowStart.Add(s.limits.AuthFreeWindow)
	}

	used, err := s.usage.CountUserConsumption(ctx, userID, windowStart)
	if err != nil {
		return 0, time.Time{}, err
	}

	slots := s.limits.AuthFreeLimit - int(used)
	if slots < 0 {
		slots = 0
	}
	return slots, windowStart, nil
}

// paidBalance reads the paid pool, treating a read failure as zero. A
// storage error must not mint credits.
func (s *AdmissionService) paidBalance(ctx context.Context, userID string) int64 {
	paid, err := s.credits.Balance(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, "credit balance read failed, treating as zero", map[string]interface{}{"error": err.Error()})
		return 0
	}
	return paid
}

func remainingOf(freeSlots int, paidHalfUnits int64) float64 {
	if freeSlots < 0 {
		freeSlots = 0
	}
	if paidHalfUnits < 0 {
		paidHalfUnits = 0
	}
	return float64(freeSlots) + float64(paidHalfUnits)/float64(models.HalfUnitsPerGeneration)
}
