package models

import (
	"time"
)

type AttemptStatus string
type CostClass string

const (
	AttemptStatusPending   AttemptStatus = "pending"
	AttemptStatusSucceeded AttemptStatus = "succeeded"
	AttemptStatusFailed    AttemptStatus = "failed"

	// CostClassFull is a complete image transformation: one free slot or two
	// half-units. CostClassHalf is a partial regeneration (background and
	// lighting only): one half-unit, drawn from paid balance only.
	CostClassFull CostClass = "full"
	CostClassHalf CostClass = "half"
)

// GenerationAttempt is the usage ledger row. It is created at admission time,
// before the external generation call starts, so that concurrent admission
// checks from the same requester see it. Pending rows therefore count toward
// free-tier consumption.
type GenerationAttempt struct {
	ID          string        `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID      *string       `json:"user_id" gorm:"index"`
	SessionID   *string       `json:"session_id"`
	IPAddress   *string       `json:"ip_address" gorm:"index"`
	Status      AttemptStatus `json:"status" gorm:"not null;default:'pending';index"`
	CostClass   CostClass     `json:"cost_class" gorm:"not null;default:'full'"`
	Prompt      string        `json:"prompt" gorm:"not null"`
	ImageURL    string        `json:"image_url"`
	AvatarStyle string        `json:"avatar_style"`
	Background  string        `json:"background"`
	ColorMood   string        `json:"color_mood"`
	UserAgent   string        `json:"user_agent"`
	CreatedAt   time.Time     `json:"created_at" gorm:"autoCreateTime;index"`
	CompletedAt *time.Time    `json:"completed_at"`
}

type GenerateRequest struct {
	Prompt      string    `json:"prompt"`
	CostClass   CostClass `json:"regeneration_type,omitempty"`
	AvatarStyle string    `json:"avatar_style,omitempty"`
	Background  string    `json:"background,omitempty"`
	ColorMood   string    `json:"color_mood,omitempty"`
}

// GeneratedImage is what the external generation call hands back.
type GeneratedImage struct {
	URL         string
	Description string
}

type GenerateResponse struct {
	URL         string  `json:"url"`
	Prompt      string  `json:"prompt"`
	Description string  `json:"description,omitempty"`
	Remaining   float64 `json:"remaining"`
}

type UsageResponse struct {
	Remaining       float64 `json:"remaining"`
	IsAuthenticated bool    `json:"is_authenticated"`
}
