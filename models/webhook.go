package models

import (
	"time"
)

type WebhookEventStatus string

const (
	WebhookEventStatusPending   WebhookEventStatus = "pending"
	WebhookEventStatusCompleted WebhookEventStatus = "completed"
	WebhookEventStatusFailed    WebhookEventStatus = "failed"
)

// WebhookEvent is the audit record for every inbound processor event that
// passed signature verification, whatever its eventual outcome.
type WebhookEvent struct {
	ID           string             `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Provider     string             `json:"provider" gorm:"not null"`
	EventType    string             `json:"event_type" gorm:"not null"`
	Reference    string             `json:"reference" gorm:"index"`
	Payload      JSON               `json:"payload" gorm:"type:jsonb"`
	Status       WebhookEventStatus `json:"status" gorm:"not null;default:'pending'"`
	ErrorMessage string             `json:"error_message"`
	CreatedAt    time.Time          `json:"created_at" gorm:"autoCreateTime"`
	ProcessedAt  *time.Time         `json:"processed_at"`
}

// PaystackEvent is the wire shape of a Paystack webhook payload.
type PaystackEvent struct {
	Event string            `json:"event"`
	Data  PaystackEventData `json:"data"`
}

type PaystackEventData struct {
	Reference string                 `json:"reference"`
	Status    string                 `json:"status"`
	Amount    int64                  `json:"amount"`
	Currency  string                 `json:"currency"`
	PaidAt    string                 `json:"paid_at"`
	Customer  PaystackCustomer       `json:"customer"`
	Metadata  map[string]interface{} `json:"metadata"`
}

type PaystackCustomer struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}
