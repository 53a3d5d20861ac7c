package test

import (
	"go.uber.org/fx"
)

// LifecycleRecorder collects hooks so tests can run OnStart and OnStop
// without a full fx app.
type LifecycleRecorder struct {
	Hooks []fx.Hook
}

// Append stores the hook for later invocation.
func (l *LifecycleRecorder) Append(h fx.Hook) {
	l.Hooks = append(l.Hooks, h)
}

// ShutdownerStub signals on Called when Shutdown fires.
type ShutdownerStub struct {
	Called chan struct{}
}

// Shutdown records the request without stopping anything.
func (s *ShutdownerStub) Shutdown(...fx.ShutdownOption) error {
	if s.Called != nil {
		select {
		case s.Called <- struct{}{}:
		default:
		}
	}
	return nil
}
