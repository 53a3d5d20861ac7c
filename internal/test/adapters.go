package test

import (
	"context"
	"sync"

	"github.com/avoray/ordersync/internal/adapter/sender"
)

// ConsentStub answers suppression checks from a fixed set.
type ConsentStub struct {
	Suppressed map[string]bool
	Err        error
}

// IsSuppressed reports membership in the configured set.
func (s ConsentStub) IsSuppressed(ctx context.Context, recipient string) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	return s.Suppressed[recipient], nil
}

// SendCall records one delivery attempt handed to SenderStub.
type SendCall struct {
	Recipient   string
	TemplateKey string
	Variables   map[string]string
}

// SenderStub records sends and returns configured results.
type SenderStub struct {
	mu     sync.Mutex
	SendFn func(ctx context.Context, recipient, templateKey string, variables map[string]string) (*sender.Result, error)
	Calls  []SendCall
}

// Send tracks the invocation and delegates to the override when set.
func (s *SenderStub) Send(ctx context.Context, recipient, templateKey string, variables map[string]string) (*sender.Result, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, SendCall{Recipient: recipient, TemplateKey: templateKey, Variables: variables})
	s.mu.Unlock()
	if s.SendFn != nil {
		return s.SendFn(ctx, recipient, templateKey, variables)
	}
	return &sender.Result{Success: true, ProviderMessageID: "msg-1"}, nil
}

// CallCount returns the number of recorded sends.
func (s *SenderStub) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}
