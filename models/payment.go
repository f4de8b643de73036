package models

import (
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Payment is a pending-payment row created when checkout is initiated and
// resolved by the processor webhook. ProviderReference is globally unique;
// the pending -> success transition happens at most once regardless of how
// many times the processor delivers the confirmation.
//
// UserID may be nil: payments can be initiated before the payer has an
// account. PayerEmail is captured so the payment can be linked later.
type Payment struct {
	ID                string        `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID            *string       `json:"user_id" gorm:"index"`
	SessionID         *string       `json:"session_id"`
	ProviderReference string        `json:"provider_reference" gorm:"not null;uniqueIndex"`
	PayerEmail        string        `json:"payer_email" gorm:"index"`
	PhoneNumber       string        `json:"phone_number" gorm:"not null"`
	Amount            int64         `json:"amount" gorm:"not null"`
	Currency          string        `json:"currency" gorm:"not null;default:'KES'"`
	Status            PaymentStatus `json:"status" gorm:"not null;default:'pending';index"`
	HalfUnitsGranted  int64         `json:"half_units_granted" gorm:"not null"`
	Metadata          JSON          `json:"metadata" gorm:"type:jsonb"`
	CreatedAt         time.Time     `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt         time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt       *time.Time    `json:"completed_at"`
}

type InitiatePaymentRequest struct {
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email,omitempty"`
}

type InitiatePaymentResponse struct {
	PaymentID        string `json:"payment_id"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
	Message          string `json:"message"`
}

type LinkCreditsResponse struct {
	CreditsLinked  int64  `json:"credits_linked"`
	PaymentsLinked int    `json:"payments_linked"`
	Message        string `json:"message"`
}
