package utils

import (
	"net/http"
)

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

func NewAPIErrorWithDetails(code int, message, details string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	ErrInvalidRequest     = NewAPIError(http.StatusBadRequest, "Invalid request")
	ErrUnauthorized       = NewAPIError(http.StatusUnauthorized, "Unauthorized")
	ErrForbidden          = NewAPIError(http.StatusForbidden, "Forbidden")
	ErrNotFound           = NewAPIError(http.StatusNotFound, "Resource not found")
	ErrTooManyRequests    = NewAPIError(http.StatusTooManyRequests, "Too many requests")
	ErrInternalServer     = NewAPIError(http.StatusInternalServerError, "Internal server error")
	ErrServiceUnavailable = NewAPIError(http.StatusServiceUnavailable, "Service unavailable")
)

var (
	ErrRateLimited        = NewAPIError(http.StatusTooManyRequests, "Generation limit reached")
	ErrPartialRegenPaid   = NewAPIError(http.StatusPaymentRequired, "Partial regeneration requires paid credits")
	ErrInsufficientCredit = NewAPIError(http.StatusPaymentRequired, "Insufficient paid credits")
	ErrPaymentNotFound    = NewAPIError(http.StatusNotFound, "Payment not found")
	ErrInvalidSignature   = NewAPIError(http.StatusUnauthorized, "Invalid signature")
	ErrInvalidPhoneNumber = NewAPIError(http.StatusBadRequest, "Phone number must be in format 254712345678")
)

var (
	ErrDatabaseQuery       = NewAPIError(http.StatusInternalServerError, "Database query failed")
	ErrDatabaseTransaction = NewAPIError(http.StatusInternalServerError, "Database transaction failed")
	ErrProviderUnavailable = NewAPIError(http.StatusServiceUnavailable, "Payment provider unavailable")
	ErrGenerationFailed    = NewAPIError(http.StatusBadGateway, "Image generation failed")
)
