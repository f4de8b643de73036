package models

// Processor wire shapes for the charge and verify calls.

type ChargeRequest struct {
	PhoneNumber string                 `json:"phone_number"`
	Amount      int64                  `json:"amount"`
	Currency    string                 `json:"currency"`
	Email       string                 `json:"email"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type ChargeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type VerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		PaidAt    string `json:"paid_at"`
		Customer  struct {
			Email string `json:"email"`
			Phone string `json:"phone"`
		} `json:"customer"`
	} `json:"data"`
}
