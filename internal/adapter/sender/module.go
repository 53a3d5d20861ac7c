package sender

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/avoray/ordersync/internal/config"
)

// Module wires the notification channel sender.
var Module = fx.Options(
	fx.Provide(newSender),
	fx.Invoke(registerLifecycle),
)

type senderParams struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
}

func newSender(p senderParams) (Sender, error) {
	if p.Config.AMQPAddress == "" {
		return NewLogSender(p.Logger), nil
	}
	return NewAMQPSender(p.Config.AMQPAddress, p.Logger)
}

func registerLifecycle(lc fx.Lifecycle, s Sender) {
	amqpSender, ok := s.(*AMQPSender)
	if !ok {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			amqpSender.Close()
			return nil
		},
	})
}
