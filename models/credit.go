package models

import (
	"time"
)

// CreditBalance holds purchased generation credits for one account,
// denominated in half-units so that partial regenerations can cost 0.5 of a
// generation. The balance is only ever mutated relatively (+= delta) and is
// never allowed to go negative.
type CreditBalance struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID    string    `json:"user_id" gorm:"not null;uniqueIndex"`
	HalfUnits int64     `json:"half_units" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// HalfUnitsPerGeneration converts between whole generations and the stored
// half-unit denomination.
const HalfUnitsPerGeneration int64 = 2
