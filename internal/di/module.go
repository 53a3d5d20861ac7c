package di

import (
	"go.uber.org/fx"

	"github.com/avoray/ordersync/internal/adapter/consent"
	"github.com/avoray/ordersync/internal/adapter/sender"
	"github.com/avoray/ordersync/internal/app"
	"github.com/avoray/ordersync/internal/config"
	"github.com/avoray/ordersync/internal/logger"
	"github.com/avoray/ordersync/internal/pkg/auth"
	"github.com/avoray/ordersync/internal/server/http/handlers"
	"github.com/avoray/ordersync/internal/server/http/router"
	"github.com/avoray/ordersync/internal/storage/postgres"
	"github.com/avoray/ordersync/internal/usecase"
)

func Module(opts ...fx.Option) fx.Option {
	modules := []fx.Option{
		config.Module,
		logger.Module,
		auth.Module,
		postgres.Module,
		sender.Module,
		consent.Module,
		usecase.Module,
		fx.Provide(func(s *postgres.Storage) app.Pinger { return s }),
		fx.Provide(func(f *app.Facade) handlers.OrderSyncFacade { return f }),
		router.Module,
		app.Module,
	}
	modules = append(modules, opts...)
	return fx.Options(modules...)
}
