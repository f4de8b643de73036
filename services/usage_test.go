package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Blackie360/Persona-Studio/models"
)

func TestRemainingFor_AnonymousWithoutCache(t *testing.T) {
	usage := &fakeUsageLedger{}
	admission := newTestAdmission(usage, newFakeCreditLedger())
	svc := CreateUsageService(admission, nil, time.Second)

	resp, err := svc.RemainingFor(context.Background(), AnonymousIdentity("203.0.113.1"))
	if err != nil {
		t.Fatalf("RemainingFor() error = %v", err)
	}
	if resp.Remaining != 2 {
		t.Errorf("RemainingFor() remaining = %v, want 2", resp.Remaining)
	}
	if resp.IsAuthenticated {
		t.Error("RemainingFor() is_authenticated = true, want false")
	}
}

// Authenticated accounts get their computed free+paid entitlement, never a
// sentinel value.
func TestRemainingFor_AuthenticatedComputedBalance(t *testing.T) {
	usage := &fakeUsageLedger{}
	credits := newFakeCreditLedger()
	credits.balances["user-1"] = 3
	admission := newTestAdmission(usage, credits)
	svc := CreateUsageService(admission, nil, time.Second)

	userID := "user-1"
	usage.add(&models.GenerationAttempt{
		ID:        uuid.NewString(),
		UserID:    &userID,
		CostClass: models.CostClassFull,
		Status:    models.AttemptStatusSucceeded,
	})

	resp, err := svc.RemainingFor(context.Background(), AuthenticatedIdentity("user-1", "", "", ""))
	if err != nil {
		t.Fatalf("RemainingFor() error = %v", err)
	}
	// 2 free slots left plus 3 half-units.
	if resp.Remaining != 3.5 {
		t.Errorf("RemainingFor() remaining = %v, want 3.5", resp.Remaining)
	}
	if !resp.IsAuthenticated {
		t.Error("RemainingFor() is_authenticated = false, want true")
	}
}
