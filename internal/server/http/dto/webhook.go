package dto

// WebhookRequest is the gateway's payment event payload.
type WebhookRequest struct {
	ProviderReference string  `json:"provider_reference"`
	Status            string  `json:"status"`
	Amount            float64 `json:"amount"`
	OrderID           *int64  `json:"order_id,omitempty"`
	OrderNumber       string  `json:"order_number,omitempty"`
}
