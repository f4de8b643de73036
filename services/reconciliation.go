package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/Blackie360/Persona-Studio/config"
	"github.com/Blackie360/Persona-Studio/models"
	"github.com/Blackie360/Persona-Studio/monitoring"
	"github.com/Blackie360/Persona-Studio/utils"
)

type paymentLedger interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByReference(ctx context.Context, reference string) (*models.Payment, error)
	UpdateReference(ctx context.Context, paymentID, reference string) error
	MarkSuccess(ctx context.Context, paymentID string) (bool, error)
	MarkFailed(ctx context.Context, paymentID string) error
	ListUnlinkedSuccessByEmail(ctx context.Context, email string) ([]*models.Payment, error)
	Link(ctx context.Context, paymentIDs []string, userID string) (int64, error)
	WithTransaction(ctx context.Context, fn func(context.Context) error) error
}

type accountDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type webhookAudit interface {
	Create(ctx context.Context, event *models.WebhookEvent) error
	MarkCompleted(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID, errorMessage string) error
}

type chargeProvider interface {
	Charge(ctx context.Context, req *models.ChargeRequest) (*models.ChargeResponse, error)
	Verify(ctx context.Context, reference string) (*models.VerifyResponse, error)
	ValidateWebhookSignature(payload []byte, signature string) error
}

var phoneNumberPattern = regexp.MustCompile(`^254\d{9}$`)

// ReconciliationService turns processor payment confirmations into credited
// balances, exactly once per charge, and links payments made before signup
// to the account that later claims them.
type ReconciliationService struct {
	payments paymentLedger
	credits  creditLedger
	users    accountDirectory
	events   webhookAudit
	provider chargeProvider
	plan     config.EntitlementConfig
	logger   *utils.Logger
}

func CreateReconciliationService(
	payments paymentLedger,
	credits creditLedger,
	users accountDirectory,
	events webhookAudit,
	provider chargeProvider,
	plan config.EntitlementConfig,
) *ReconciliationService {
	return &ReconciliationService{
		payments: payments,
		credits:  credits,
		users:    users,
		events:   events,
		provider: provider,
		plan:     plan,
		logger:   utils.NewLogger("reconciliation"),
	}
}

// InitiateCheckout creates the pending payment row and asks the processor to
// start an M-Pesa STK push. The payer email is captured from the session
// when authenticated, else from the submitted form, so an account-less
// payment can be linked later.
func (s *ReconciliationService) InitiateCheckout(ctx context.Context, identity Identity, req *models.InitiatePaymentRequest) (*models.InitiatePaymentResponse, error) {
	if !phoneNumberPattern.MatchString(req.PhoneNumber) {
		return nil, utils.ErrInvalidPhoneNumber
	}

	email := identity.Email
	if email == "" {
		email = req.Email
	}
	if email == "" {
		// Without an account or an email there is nothing to link a
		// successful payment to; the credits would be unclaimable.
		return nil, utils.NewAPIError(400, "Email is required to receive your credits")
	}

	paymentID := uuid.NewString()
	reference := fmt.Sprintf("ref_%d_%s", time.Now().UnixMilli(), paymentID)
	halfUnits := s.plan.PlanGenerations * models.HalfUnitsPerGeneration

	payment := &models.Payment{
		ID:                paymentID,
		ProviderReference: reference,
		PayerEmail:        email,
		PhoneNumber:       req.PhoneNumber,
		Amount:            s.plan.PlanAmount,
		Currency:          s.plan.PlanCurrency,
		Status:            models.PaymentStatusPending,
		HalfUnitsGranted:  halfUnits,
		Metadata:          models.JSON{"user_email": email},
	}
	if identity.Authenticated() {
		payment.UserID = &identity.UserID
	}
	if identity.SessionID != "" {
		payment.SessionID = &identity.SessionID
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	chargeResp, err := s.provider.Charge(ctx, &models.ChargeRequest{
		PhoneNumber: req.PhoneNumber,
		Amount:      s.plan.PlanAmount,
		Currency:    s.plan.PlanCurrency,
		Email:       email,
		Metadata: map[string]interface{}{
			"payment_id":         paymentID,
			"half_units_granted": halfUnits,
		},
	})
	if err != nil {
		if markErr := s.payments.MarkFailed(ctx, paymentID); markErr != nil {
			s.logger.Error(ctx, "failed to mark payment failed after charge error", map[string]interface{}{"error": markErr.Error()})
		}
		s.logger.Error(ctx, "charge initiation failed", map[string]interface{}{"error": err.Error(), "payment_id": paymentID})
		return nil, utils.ErrProviderUnavailable
	}
	if !chargeResp.Status {
		if markErr := s.payments.MarkFailed(ctx, paymentID); markErr != nil {
			s.logger.Error(ctx, "failed to mark payment failed after charge rejection", map[string]interface{}{"error": markErr.Error()})
		}
		return nil, utils.NewAPIErrorWithDetails(400, "Payment initiation failed", chargeResp.Message)
	}

	if chargeResp.Data.Reference != "" && chargeResp.Data.Reference != reference {
		reference = chargeResp.Data.Reference
		if err := s.payments.UpdateReference(ctx, paymentID, reference); err != nil {
			return nil, err
		}
	}

	return &models.InitiatePaymentResponse{
		PaymentID:        paymentID,
		Reference:        reference,
		AuthorizationURL: chargeResp.Data.AuthorizationURL,
		Message:          "Payment initiated. Please check your phone for the M-Pesa prompt.",
	}, nil
}

// HandleWebhook is the reconciliation entry point. Order matters: signature
// first (reject with no state change), then reference lookup, then the
// idempotency check, then the atomic transition + grant.
func (s *ReconciliationService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if err := s.provider.ValidateWebhookSignature(payload, signature); err != nil {
		monitoring.WebhookEventsTotal.WithLabelValues("unknown", "bad_signature").Inc()
		return utils.ErrInvalidSignature
	}

	var event models.PaystackEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return utils.ErrInvalidRequest
	}

	var payloadJSON models.JSON
	_ = json.Unmarshal(payload, &payloadJSON)
	audit := &models.WebhookEvent{
		ID:        uuid.NewString(),
		Provider:  "paystack",
		EventType: event.Event,
		Reference: event.Data.Reference,
		Payload:   payloadJSON,
		Status:    models.WebhookEventStatusPending,
	}
	if err := s.events.Create(ctx, audit); err != nil {
		// Audit trail only; the reconciliation itself must still run.
		s.logger.Error(ctx, "failed to persist webhook event", map[string]interface{}{"error": err.Error()})
		audit = nil
	}

	var err error
	switch event.Event {
	case "charge.success":
		err = s.handleChargeSuccess(ctx, event.Data.Reference)
	case "charge.failed":
		err = s.handleChargeFailed(ctx, event.Data.Reference)
	default:
		s.logger.Info(ctx, "ignoring webhook event", map[string]interface{}{"event_type": event.Event})
	}

	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	monitoring.WebhookEventsTotal.WithLabelValues(event.Event, outcome).Inc()

	if audit != nil {
		if err != nil {
			if auditErr := s.events.MarkFailed(ctx, audit.ID, err.Error()); auditErr != nil {
				s.logger.Error(ctx, "failed to mark webhook event failed", map[string]interface{}{"error": auditErr.Error()})
			}
		} else if auditErr := s.events.MarkCompleted(ctx, audit.ID); auditErr != nil {
			s.logger.Error(ctx, "failed to mark webhook event completed", map[string]interface{}{"error": auditErr.Error()})
		}
	}
	return err
}

func (s *ReconciliationService) handleChargeSuccess(ctx context.Context, reference string) error {
	payment, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if payment == nil {
		// Foreign or stale event; not ours to process.
		return utils.ErrPaymentNotFound
	}
	if payment.Status == models.PaymentStatusSuccess {
		// Duplicate delivery. Processors are documented to redeliver.
		return nil
	}

	return s.resolveSuccess(ctx, payment)
}

// resolveSuccess runs the pending -> success transition and the credit grant
// in one transaction. The conditional MarkSuccess decides a single winner
// under concurrent duplicate deliveries; only the winner grants.
func (s *ReconciliationService) resolveSuccess(ctx context.Context, payment *models.Payment) error {
	return s.payments.WithTransaction(ctx, func(txCtx context.Context) error {
		won, err := s.payments.MarkSuccess(txCtx, payment.ID)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		ownerID := ""
		if payment.UserID != nil {
			ownerID = *payment.UserID
		} else if payment.PayerEmail != "" {
			user, err := s.users.GetByEmail(txCtx, payment.PayerEmail)
			if err != nil {
				return err
			}
			if user != nil {
				if _, err := s.payments.Link(txCtx, []string{payment.ID}, user.ID); err != nil {
					return err
				}
				ownerID = user.ID
			}
		}

		if ownerID == "" {
			// No account yet. The payment stays success + unlinked until the
			// payer signs up and the linking pass claims it.
			s.logger.Info(txCtx, "payment succeeded without an account, leaving unlinked", map[string]interface{}{
				"payment_id": payment.ID,
				"email":      payment.PayerEmail,
			})
			return nil
		}

		if err := s.credits.Grant(txCtx, ownerID, payment.HalfUnitsGranted); err != nil {
			return err
		}
		monitoring.CreditsGrantedTotal.Add(float64(payment.HalfUnitsGranted))
		return nil
	})
}

func (s *ReconciliationService) handleChargeFailed(ctx context.Context, reference string) error {
	payment, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if payment == nil {
		return utils.ErrPaymentNotFound
	}
	return s.payments.MarkFailed(ctx, payment.ID)
}

// LinkCredits is the deferred-linking pass: it claims all successful,
// still-unlinked payments whose captured email matches the account and
// grants their aggregate half-units in one step. Re-running is a no-op
// because linked payments no longer match the unlinked filter.
func (s *ReconciliationService) LinkCredits(ctx context.Context, userID, email string) (*models.LinkCreditsResponse, error) {
	if userID == "" || email == "" {
		return nil, utils.ErrUnauthorized
	}

	var totalHalfUnits int64
	var linked int

	err := s.payments.WithTransaction(ctx, func(txCtx context.Context) error {
		payments, err := s.payments.ListUnlinkedSuccessByEmail(txCtx, email)
		if err != nil {
			return err
		}

		for _, payment := range payments {
			n, err := s.payments.Link(txCtx, []string{payment.ID}, userID)
			if err != nil {
				return err
			}
			if n > 0 {
				totalHalfUnits += payment.HalfUnitsGranted
				linked++
			}
		}

		if totalHalfUnits > 0 {
			if err := s.credits.Grant(txCtx, userID, totalHalfUnits); err != nil {
				return err
			}
			monitoring.CreditsGrantedTotal.Add(float64(totalHalfUnits))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	message := "No unlinked payments found"
	if linked > 0 {
		message = fmt.Sprintf("Linked %d generation(s) from %d payment(s)",
			totalHalfUnits/models.HalfUnitsPerGeneration, linked)
	}
	return &models.LinkCreditsResponse{
		CreditsLinked:  totalHalfUnits,
		PaymentsLinked: linked,
		Message:        message,
	}, nil
}

// VerifyCallback handles the processor redirect after hosted checkout: it
// confirms the charge with the verify API and reports whether the payer
// still needs an account for the credits to land.
func (s *ReconciliationService) VerifyCallback(ctx context.Context, reference string) (status string, signupRequired bool, err error) {
	payment, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return "", false, err
	}
	if payment == nil {
		return "", false, utils.ErrPaymentNotFound
	}

	verifyResp, err := s.provider.Verify(ctx, reference)
	if err != nil {
		s.logger.Error(ctx, "payment verification failed", map[string]interface{}{"error": err.Error(), "reference": reference})
		return "", false, utils.ErrProviderUnavailable
	}

	switch verifyResp.Data.Status {
	case "success":
		if payment.Status != models.PaymentStatusSuccess {
			if err := s.resolveSuccess(ctx, payment); err != nil {
				return "", false, err
			}
		}
		signupRequired = payment.UserID == nil
		if signupRequired && payment.PayerEmail != "" {
			user, lookupErr := s.users.GetByEmail(ctx, payment.PayerEmail)
			if lookupErr == nil && user != nil {
				signupRequired = false
			}
		}
		return "success", signupRequired, nil
	case "failed", "reversed":
		if markErr := s.payments.MarkFailed(ctx, payment.ID); markErr != nil {
			s.logger.Error(ctx, "failed to mark payment failed after verify", map[string]interface{}{"error": markErr.Error()})
		}
		return "failed", false, nil
	default:
		return verifyResp.Data.Status, false, nil
	}
}
