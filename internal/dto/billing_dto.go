package dto

// StripeWebhookResponse acknowledges a billing event.
type StripeWebhookResponse struct {
	Received bool   `json:"received"`
	Handled  bool   `json:"handled"`
	Plan     string `json:"plan,omitempty"`
}
