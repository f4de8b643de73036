package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Blackie360/Persona-Studio/config"
	"github.com/Blackie360/Persona-Studio/models"
	"github.com/Blackie360/Persona-Studio/utils"
)

type fakePaymentLedger struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func newFakePaymentLedger() *fakePaymentLedger {
	return &fakePaymentLedger{payments: make(map[string]*models.Payment)}
}

func (f *fakePaymentLedger) Create(ctx context.Context, payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[payment.ID] = payment
	return nil
}

func (f *fakePaymentLedger) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.ProviderReference == reference {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakePaymentLedger) UpdateReference(ctx context.Context, paymentID, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[paymentID]; ok {
		p.ProviderReference = reference
	}
	return nil
}

func (f *fakePaymentLedger) MarkSuccess(ctx context.Context, paymentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = models.PaymentStatusSuccess
	now := time.Now()
	p.CompletedAt = &now
	return true, nil
}

func (f *fakePaymentLedger) MarkFailed(ctx context.Context, paymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[paymentID]; ok && p.Status == models.PaymentStatusPending {
		p.Status = models.PaymentStatusFailed
	}
	return nil
}

func (f *fakePaymentLedger) ListUnlinkedSuccessByEmail(ctx context.Context, email string) ([]*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.Payment
	for _, p := range f.payments {
		if p.Status == models.PaymentStatusSuccess && p.UserID == nil &&
			strings.EqualFold(p.PayerEmail, email) {
			copied := *p
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (f *fakePaymentLedger) Link(ctx context.Context, paymentIDs []string, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range paymentIDs {
		if p, ok := f.payments[id]; ok && p.UserID == nil {
			uid := userID
			p.UserID = &uid
			n++
		}
	}
	return n, nil
}

func (f *fakePaymentLedger) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type fakeAccountDirectory struct {
	users map[string]*models.User
}

func (f *fakeAccountDirectory) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := f.users[strings.ToLower(email)]; ok {
		return u, nil
	}
	return nil, nil
}

type fakeWebhookAudit struct {
	mu        sync.Mutex
	created   []*models.WebhookEvent
	completed []string
	failed    []string
}

func (f *fakeWebhookAudit) Create(ctx context.Context, event *models.WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, event)
	return nil
}

func (f *fakeWebhookAudit) MarkCompleted(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, eventID)
	return nil
}

func (f *fakeWebhookAudit) MarkFailed(ctx context.Context, eventID, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, eventID)
	return nil
}

type fakeChargeProvider struct {
	webhookSecret string
	chargeErr     error
	chargeRef     string
	verifyStatus  string
}

func (f *fakeChargeProvider) Charge(ctx context.Context, req *models.ChargeRequest) (*models.ChargeResponse, error) {
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	resp := &models.ChargeResponse{Status: true, Message: "Charge attempted"}
	resp.Data.Reference = f.chargeRef
	return resp, nil
}

func (f *fakeChargeProvider) Verify(ctx context.Context, reference string) (*models.VerifyResponse, error) {
	resp := &models.VerifyResponse{Status: true}
	resp.Data.Reference = reference
	resp.Data.Status = f.verifyStatus
	return resp, nil
}

func (f *fakeChargeProvider) ValidateWebhookSignature(payload []byte, signature string) error {
	mac := hmac.New(sha512.New, []byte(f.webhookSecret))
	mac.Write(payload)
	if !hmac.Equal([]byte(signature), []byte(hex.EncodeToString(mac.Sum(nil)))) {
		return errors.New("webhook signature verification failed")
	}
	return nil
}

func testPlan() config.EntitlementConfig {
	return config.EntitlementConfig{
		PlanAmount:      500,
		PlanCurrency:    "KES",
		PlanGenerations: 5,
	}
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestReconciliation(payments *fakePaymentLedger, credits *fakeCreditLedger, users *fakeAccountDirectory, audit *fakeWebhookAudit, provider *fakeChargeProvider) *ReconciliationService {
	if users == nil {
		users = &fakeAccountDirectory{users: map[string]*models.User{}}
	}
	return CreateReconciliationService(payments, credits, users, audit, provider, testPlan())
}

func TestInitiateCheckout_InvalidPhone(t *testing.T) {
	svc := newTestReconciliation(newFakePaymentLedger(), newFakeCreditLedger(), nil, &fakeWebhookAudit{}, &fakeChargeProvider{})

	for _, phone := range []string{"", "0712345678", "254712", "+254712345678", "254712345678x"} {
		_, err := svc.InitiateCheckout(context.Background(), AnonymousIdentity("203.0.113.1"), &models.InitiatePaymentRequest{PhoneNumber: phone})
		if err != utils.ErrInvalidPhoneNumber {
			t.Errorf("InitiateCheckout(%q) error = %v, want %v", phone, err, utils.ErrInvalidPhoneNumber)
		}
	}
}

// An account-less payment with no email could never be linked; it is
// rejected before any row is created.
func TestInitiateCheckout_AnonymousRequiresEmail(t *testing.T) {
	payments := newFakePaymentLedger()
	svc := newTestReconciliation(payments, newFakeCreditLedger(), nil, &fakeWebhookAudit{}, &fakeChargeProvider{})

	_, err := svc.InitiateCheckout(context.Background(),
		AnonymousIdentity("203.0.113.1"),
		&models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
	if err == nil {
		t.Fatal("InitiateCheckout() error = nil, want email requirement error")
	}
	if apiErr, ok := err.(*utils.APIError); !ok || apiErr.Code != 400 {
		t.Errorf("InitiateCheckout() error = %v, want 400 APIError", err)
	}
	if len(payments.payments) != 0 {
		t.Errorf("payments created = %d, want 0", len(payments.payments))
	}
}

func TestInitiateCheckout_CreatesPendingPayment(t *testing.T) {
	payments := newFakePaymentLedger()
	svc := newTestReconciliation(payments, newFakeCreditLedger(), nil, &fakeWebhookAudit{}, &fakeChargeProvider{})

	resp, err := svc.InitiateCheckout(context.Background(),
		AnonymousIdentity("203.0.113.1"),
		&models.InitiatePaymentRequest{PhoneNumber: "254712345678", Email: "payer@example.com"})
	if err != nil {
		t.Fatalf("InitiateCheckout() error = %v", err)
	}

	if !strings.HasPrefix(resp.Reference, "ref_") {
		t.Errorf("InitiateCheckout() reference = %q, want ref_ prefix", resp.Reference)
	}

	payment := payments.payments[resp.PaymentID]
	if payment == nil {
		t.Fatal("InitiateCheckout() did not persist a payment row")
	}
	if payment.Status != models.PaymentStatusPending {
		t.Errorf("payment status = %q, want pending", payment.Status)
	}
	if payment.HalfUnitsGranted != 10 {
		t.Errorf("payment half-units = %d, want 10", payment.HalfUnitsGranted)
	}
	if payment.Amount != 500 || payment.Currency != "KES" {
		t.Errorf("payment amount = %d %s, want 500 KES", payment.Amount, payment.Currency)
	}
	if payment.UserID != nil {
		t.Error("anonymous payment should have no user id")
	}
	if payment.PayerEmail != "payer@example.com" {
		t.Errorf("payment email = %q, want payer@example.com", payment.PayerEmail)
	}
}

func TestInitiateCheckout_ChargeFailureMarksFailed(t *testing.T) {
	payments := newFakePaymentLedger()
	provider := &fakeChargeProvider{chargeErr: errors.New("processor down")}
	svc := newTestReconciliation(payments, newFakeCreditLedger(), nil, &fakeWebhookAudit{}, provider)

	_, err := svc.InitiateCheckout(context.Background(),
		AnonymousIdentity("203.0.113.1"),
		&models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
	if err != utils.ErrProviderUnavailable {
		t.Fatalf("InitiateCheckout() error = %v, want %v", err, utils.ErrProviderUnavailable)
	}

	for _, p := range payments.payments {
		if p.Status != models.PaymentStatusFailed {
			t.Errorf("payment status = %q, want failed", p.Status)
		}
	}
}

func TestInitiateCheckout_AdoptsProcessorReference(t *testing.T) {
	payments := newFakePaymentLedger()
	provider := &fakeChargeProvider{chargeRef: "psk_abc123"}
	svc := newTestReconciliation(payments, newFakeCreditLedger(), nil, &fakeWebhookAudit{}, provider)

	resp, err := svc.InitiateCheckout(context.Background(),
		AnonymousIdentity("203.0.113.1"),
		&models.InitiatePaymentRequest{PhoneNumber: "254712345678"})
	if err != nil {
		t.Fatalf("InitiateCheckout() error = %v", err)
	}
	if resp.Reference != "psk_abc123" {
		t.Errorf("InitiateCheckout() reference = %q, want psk_abc123", resp.Reference)
	}
	if payments.payments[resp.PaymentID].ProviderReference != "psk_abc123" {
		t.Error("payment row should carry the processor reference")
	}
}

func seedPendingPayment(payments *fakePaymentLedger, reference, email string, userID *string) *models.Payment {
	payment := &models.Payment{
		ID:                "pay-" + reference,
		UserID:            userID,
		ProviderReference: reference,
		PayerEmail:        email,
		PhoneNumber:       "254712345678",
		Amount:            500,
		Currency:          "KES",
		Status:            models.PaymentStatusPending,
		HalfUnitsGranted:  10,
	}
	payments.payments[payment.ID] = payment
	return payment
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	payments := newFakePaymentLedger()
	credits := newFakeCreditLedger()
	audit := &fakeWebhookAudit{}
	userID := "user-1"
	seedPendingPayment(payments, "ref_1", "payer@example.com", &userID)
	svc := newTestReconciliation(payments, credits, nil, audit, &fakeChargeProvider{webhookSecret: "whsec"})

	payload := []byte(`{"event":"charge.success","data":{"reference":"ref_1"}}`)

	err := svc.HandleWebhook(context.Background(), payload, "forged")
	if err != utils.ErrInvalidSignature {
		t.Fatalf("HandleWebhook() error = %v, want %v", err, utils.ErrInvalidSignature)
	}
	if payments.payments["pay-ref_1"].Status != models.PaymentStatusPending {
		t.Error("rejected webhook must not change payment state")
	}
	if credits.balances[userID] != 0 {
		t.Error("rejected webhook must not grant credits")
	}
	if len(audit.created) != 0 {
		t.Error("rejected webhook must not leave an audit row")
	}
}

func TestHandleWebhook_ChargeSuccessGrantsExactlyOnce(t *testing.T) {
	payments := newFakePaymentLedger()
	credits := newFakeCreditLedger()
	audit := &fakeWebhookAudit{}
	userID := "user-1"
	seedPendingPayment(payments, "ref_1", "payer@example.com", &userID)
	svc := newTestReconciliation(payments, credits, nil, audit, &fakeChargeProvider{webhookSecret: "whsec"})

	payload := []byte(`{"event":"charge.success","data":{"reference":"ref_1","status":"success"}}`)
	signature := signPayload("whsec", payload)

	// Processors redeliver; every delivery after the first is a no-op.
	for i := 0; i < 3; i++ {
		if err := svc.HandleWebhook(context.Background(), payload, signature); err != nil {
			t.Fatalf("HandleWebhook() delivery #%d error = %v", i+1, err)
		}
	}

	if credits.balances[userID] != 10 {
		t.Errorf("granted half-units = %d, want 10", credits.balances[userID])
	}
	if payments.payments["pay-ref_1"].Status != models.PaymentStatusSuccess {
		t.Errorf("payment status = %q, want success", payments.payments["pay-ref_1"].Status)
	}
	if len(audit.created) != 3 {
		t.Errorf("audit rows = %d, want 3", len(audit.created))
	}
}

func TestHandleWebhook_UnknownReference(t *testing.T) {
	svc := newTestReconciliation(newFakePaymentLedger(), newFakeCreditLedger(), nil, &fakeWebhookAudit{}, &fakeChargeProvider{webhookSecret: "whsec"})

	payload := []byte(`{"event":"charge.success","data":{"reference":"ref_missing"}}`)

	err := svc.HandleWebhook(context.Background(), payload, signPayload("whsec", payload))
	if err != utils.ErrPaymentNotFound {
		t.Fatalf("HandleWebhook() error = %v, want %v", err, utils.ErrPaymentNotFound)
	}
}

func TestHandleWebhook_ChargeFailed(t *testing.T) {
	payments := newFakePaymentLedger()
	credits := newFakeCreditLedger()
	userID := "user-1"
	seedPendingPayment(payments, "ref_1", "payer@example.com", &userID)
	svc := newTestReconciliation(payments, credits, nil, &fakeWebhookAudit{}, &fakeChargeProvider{webhookSecret: "whsec"})

	payload := []byte(`{"event":"charge.failed","data":{"reference":"ref_1","status":"failed"}}`)

	if err := svc.HandleWebhook(context.Background(), payload, signPayload("whsec", payload)); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if payments.payments["pay-ref_1"].Status != models.PaymentStatusFailed {
		t.Errorf("payment status = %q, want failed", payments.payments["pay-ref_1"].Status)
	}
	if credits.balances[userID] != 0 {
		t.Error("failed charge must not grant credits")
	}
}

func TestHandleWebhook_UnknownEventIgnored(t *testing.T) {
	audit := &fakeWebhookAudit{}
	svc := newTestReconciliation(newFakePaymentLedger(), newFakeCreditLedger(), nil, audit, &fakeChargeProvider{webhookSecret: "whsec"})

	payload := []byte(`{"event":"transfer.success","data":{"reference":"ref_x"}}`)

	if err := svc.HandleWebhook(context.Background(), payload, signPayload("whsec", payload)); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if len(audit.completed) != 1 {
		t.Errorf("audit completions = %d, want 1", len(audit.completed))
	}
}

func TestHandleWebhook_SuccessBeforeSignupStaysUnlinked(t *testing.T) {
	payments := newFakePaymentLedger()
	credits := newFakeCreditLedger()
	seedPendingPayment(payments, "ref_1", "payer@example.com", nil)
	svc := newTestReconciliation(payments, credits, nil, &fakeWebhookAudit{}, &fakeChargeProvider{webhookSecret: "whsec"})

	payload := []byte(`{"event":"charge.success","data":{"reference":"ref_1"}}`)

	if err := svc.HandleWebhook(context.Background(), payload, signPayload("whsec", payload)); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}

	payment := payments.payments["pay-ref_1"]
	if payment.Status != models.PaymentStatusSuccess {
		t.Errorf("payment status = %q, want success", payment.Status)
	}
	if payment.UserID != nil {
		t.Error("payment without an account must stay unlinked")
	}
	if len(credits.balances) != 0 {
		t.Error("unlinked payment must not grant credits to anyone")
	}
}

func TestHandleWebhook_SuccessLinksExistingAccount(t *testing.T) {
	payments := newFakePaymentLedger()
	credits := newFakeCreditLedger()
	users := &fakeAccountDirectory{users: map[string]*models.User{
		"payer@example.com": {ID: "user-9", Email: "payer@example.com"},
	}}
	seedPendingPayment(payments, "ref_1", "payer@example.com", nil)
	svc := newTestReconciliation(payments, credits, users, &fakeWebhookAudit{}, &fakeChargeProvider{webhookSecret: "whsec"})

	payload := []byte(`{"event":"charge.success","data":{"reference":"ref_1"}}`)

	if err := svc.HandleWebhook(context.Background(), payload, signPayload("whsec", payload)); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}

	payment := payments.payments["pay-ref_1"]
	if payment.UserID == nil || *payment.UserID != "user-9" {
		t.Errorf("payment owner = %v, want user-9", payment.UserID)
	}
	if credits.balances["user-9"] != 10 {
		t.Errorf("granted half-units = %d, want 10", credits.balances["user-9"])
	}
}

func TestLinkCredits_ClaimsAndIsIdempotent(t *testing.T) {
	payments := newFakePaymentLedger()
	credits := newFakeCreditLedger()
	svc := newTestReconciliation(payments, credits, nil, &fakeWebhookAudit{}, &fakeChargeProvider{webhookSecret: "whsec"})

	// Two successful payments made before signup, one foreign email.
	for _, ref := range []string{"ref_1", "ref_2"} {
		p := seedPendingPayment(payments, ref, "Payer@Example.com", nil)
		p.Status = models.PaymentStatusSuccess
	}
	other := seedPendingPayment(payments, "ref_3", "other@example.com", nil)
	other.Status = models.PaymentStatusSuccess

	resp, err := svc.LinkCredits(context.Background(), "user-9", "payer@example.com")
	if err != nil {
		t.Fatalf("LinkCredits() error = %v", err)
	}
	if resp.PaymentsLinked != 2 {
		t.Errorf("LinkCredits() payments linked = %d, want 2", resp.PaymentsLinked)
	}
	if resp.CreditsLinked != 20 {
		t.Errorf("LinkCredits() credits linked = %d, want 20", resp.CreditsLinked)
	}
	if credits.balances["user-9"] != 20 {
		t.Errorf("balance = %d, want 20", credits.balances["user-9"])
	}

	// Second pass finds nothing left to claim.
	resp, err = svc.LinkCredits(context.Background(), "user-9", "payer@example.com")
	if err != nil {
		t.Fatalf("LinkCredits() second pass error = %v", err)
	}
	if resp.PaymentsLinked != 0 || resp.CreditsLinked != 0 {
		t.Errorf("LinkCredits() second pass = %+v, want nothing linked", resp)
	}
	if credits.balances["user-9"] != 20 {
		t.Errorf("balance after second pass = %d, want 20", credits.balances["user-9"])
	}
	if other.UserID != nil {
		t.Error("foreign payment must not be linked")
	}
}

func TestVerifyCallback_SignupRequired(t *testing.T) {
	payments := newFakePaymentLedger()
	credits := newFakeCreditLedger()
	seedPendingPayment(payments, "ref_1", "payer@example.com", nil)
	provider := &fakeChargeProvider{webhookSecret: "whsec", verifyStatus: "success"}
	svc := newTestReconciliation(payments, credits, nil, &fakeWebhookAudit{}, provider)

	status, signupRequired, err := svc.VerifyCallback(context.Background(), "ref_1")
	if err != nil {
		t.Fatalf("VerifyCallback() error = %v", err)
	}
	if status != "success" {
		t.Errorf("VerifyCallback() status = %q, want success", status)
	}
	if !signupRequired {
		t.Error("VerifyCallback() signupRequired = false, want true")
	}
	if payments.payments["pay-ref_1"].Status != models.PaymentStatusSuccess {
		t.Error("verified payment should be marked success")
	}
}

func TestVerifyCallback_UnknownReference(t *testing.T) {
	svc := newTestReconciliation(newFakePaymentLedger(), newFakeCreditLedger(), nil, &fakeWebhookAudit{}, &fakeChargeProvider{})

	_, _, err := svc.VerifyCallback(context.Background(), "ref_missing")
	if err != utils.ErrPaymentNotFound {
		t.Fatalf("VerifyCallback() error = %v, want %v", err, utils.ErrPaymentNotFound)
	}
}
