package models

import (
	"time"
)

type AdminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AdminLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AdminStats struct {
	TotalUsers           int64   `json:"total_users"`
	TotalGenerations     int64   `json:"total_generations"`
	SucceededGenerations int64   `json:"succeeded_generations"`
	FailedGenerations    int64   `json:"failed_generations"`
	SuccessRate          float64 `json:"success_rate"`
	PayingCustomers      int64   `json:"paying_customers"`
	TotalRevenue         int64   `json:"total_revenue"`
	RevenueCurrency      string  `json:"revenue_currency"`
}

type UserWithUsage struct {
	User
	GenerationCount int64 `json:"generation_count"`
	PaidHalfUnits   int64 `json:"paid_half_units"`
	Blocked         bool  `json:"blocked"`
}
