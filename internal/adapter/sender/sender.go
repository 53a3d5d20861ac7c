package sender

import "context"

// Result is the outcome contract shared by all channel senders.
type Result struct {
	Success           bool
	ProviderMessageID string
	Reason            string
}

// Sender hands a notification to an external delivery channel. The outbox
// never sees the channel's wire protocol, only this contract.
type Sender interface {
	Send(ctx context.Context, recipient, templateKey string, variables map[string]string) (*Result, error)
}
