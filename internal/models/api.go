package models

// MessageRequest is one user turn of free text
type MessageRequest struct {
	UserId         string `json:"userId"`
	Text           string `json:"text"`
	IdempotencyKey string `json:"-"`
}

// ConfirmRequest answers a previously issued challenge
type ConfirmRequest struct {
	UserId         string `json:"userId"`
	ChallengeId    string `json:"challengeId"`
	Answer         string `json:"answer"`
	IdempotencyKey string `json:"-"`
}

// Reply is what a turn returns to the chat transport
type Reply struct {
	Reply       string `json:"reply"`
	Data        any    `json:"data,omitempty"`
	ChallengeId string `json:"challengeId,omitempty"`
	Action      string `json:"action,omitempty"`

	// RateLimit is the caller's quota after this turn; transports expose it as headers.
	RateLimit *RateLimit `json:"-"`
}

// RateLimit is the per-user turn quota for the current window
type RateLimit struct {
	Limit     int
	Remaining int
}

// Readiness is the provider health summary served to operators
type Readiness struct {
	Ready      bool            `json:"ready"`
	WalletMode string          `json:"walletMode"`
	Backends   []BackendHealth `json:"backends"`
}
