package models

import (
	"time"
)

// BlockEntry is the deny-list row. A requester is blocked if any entry
// matching any of their known identifiers is active. Entries are deactivated
// rather than deleted so the audit trail survives.
type BlockEntry struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID    *string   `json:"user_id" gorm:"index"`
	Email     *string   `json:"email" gorm:"index"`
	SessionID *string   `json:"session_id" gorm:"index"`
	Reason    string    `json:"reason"`
	Active    bool      `json:"active" gorm:"not null;default:true;index"`
	BlockedBy string    `json:"blocked_by" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

type BlockRequest struct {
	Email     string `json:"email,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
