package providers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Blackie360/Persona-Studio/models"
	"github.com/Blackie360/Persona-Studio/utils"
)

const paystackProdURL = "https://api.paystack.co"

// PaystackProvider talks to the Paystack API for M-Pesa STK push charges.
type PaystackProvider struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	allowUnsigned bool
	httpClient    *http.Client
}

func CreatePaystackProvider(secretKey, webhookSecret string) *PaystackProvider {
	return &PaystackProvider{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       paystackProdURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithBaseURL overrides the API endpoint, for tests and sandboxes.
func (p *PaystackProvider) WithBaseURL(baseURL string) *PaystackProvider {
	if baseURL != "" {
		p.baseURL = baseURL
	}
	return p
}

// AllowUnsignedWebhooks disables signature verification. Only the
// development environment gate in config may enable this; production
// startup fails before reaching here without a webhook secret.
func (p *PaystackProvider) AllowUnsignedWebhooks() *PaystackProvider {
	p.allowUnsigned = true
	return p
}

// Charge initiates an M-Pesa STK push. Amount is in the smallest currency
// unit. This call is non-idempotent and is never retried.
func (p *PaystackProvider) Charge(ctx context.Context, req *models.ChargeRequest) (*models.ChargeResponse, error) {
	if p.secretKey == "" {
		return nil, fmt.Errorf("paystack secret key not configured")
	}

	email := req.Email
	if email == "" {
		email = "user@example.com"
	}

	body := map[string]interface{}{
		"email":    email,
		"amount":   req.Amount,
		"currency": req.Currency,
		"mobile_money": map[string]string{
			"phone":    req.PhoneNumber,
			"provider": "mpesa",
		},
	}
	if req.Metadata != nil {
		body["metadata"] = req.Metadata
	}

	var resp models.ChargeResponse
	if err := p.post(ctx, "/charge", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify fetches the authoritative status of a charge by reference. It is a
// read and is retried on transient failure.
func (p *PaystackProvider) Verify(ctx context.Context, reference string) (*models.VerifyResponse, error) {
	if p.secretKey == "" {
		return nil, fmt.Errorf("paystack secret key not configured")
	}

	var resp models.VerifyResponse
	err := utils.Retry(ctx, utils.DefaultRetryConfig(), func() error {
		return p.get(ctx, "/transaction/verify/"+reference, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ValidateWebhookSignature checks the HMAC-SHA512 hex signature Paystack
// sends in the x-paystack-signature header, computed over the raw body.
func (p *PaystackProvider) ValidateWebhookSignature(payload []byte, signature string) error {
	if p.webhookSecret == "" {
		if p.allowUnsigned {
			return nil
		}
		return fmt.Errorf("webhook secret not configured")
	}

	mac := hmac.New(sha512.New, []byte(p.webhookSecret))
	mac.Write(payload)
	expectedSignature := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expectedSignature)) {
		return fmt.Errorf("webhook signature verification failed")
	}

	return nil
}

func (p *PaystackProvider) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(req)

	return p.do(req, out)
}

func (p *PaystackProvider) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(req)

	return p.do(req, out)
}

func (p *PaystackProvider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *PaystackProvider) do(req *http.Request, out interface{}) error {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paystack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
			return fmt.Errorf("paystack API error: %s", resp.Status)
		}
		return fmt.Errorf("paystack API error: %s", apiErr.Message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode paystack response: %w", err)
	}
	return nil
}
