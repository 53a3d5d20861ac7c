package consent

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/avoray/ordersync/internal/config"
)

// Module wires the consent/suppression store client.
var Module = fx.Provide(newChecker)

type checkerParams struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
}

func newChecker(p checkerParams) (Checker, error) {
	if p.Config.ConsentServiceAddress == "" {
		return AllowAll{}, nil
	}
	return NewHTTPClient(p.Config.ConsentServiceAddress, p.Logger)
}
