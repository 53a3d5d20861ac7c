package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/avoray/ordersync/internal/adapter/consent"
	"github.com/avoray/ordersync/internal/adapter/sender"
	"github.com/avoray/ordersync/internal/config"
	"github.com/avoray/ordersync/internal/domain/repository"
	"github.com/avoray/ordersync/internal/pkg/ratelimit"
	"github.com/avoray/ordersync/internal/usecase"
	"github.com/avoray/ordersync/internal/worker"
)

// Module wires application services, runtime components, and lifecycle hooks.
var Module = fx.Options(
	fx.Provide(
		newFacade,
		newLimiter,
		newHTTPServer,
		newOutboxWorker,
		newReconciler,
	),
	fx.Invoke(registerObservers),
	fx.Invoke(registerLifecycle),
)

type facadeParams struct {
	fx.In

	Machine *usecase.StateMachine
	Engine  *usecase.ReconciliationEngine
	Planner *usecase.NotificationPlanner
	Locks   *usecase.LockManager
	Idem    *usecase.IdempotencyCache
	Orders  repository.OrderRepository
	Outbox  repository.OutboxRepository
	Consent consent.Checker
	Sender  sender.Sender
	Pinger  Pinger
	Logger  *slog.Logger
}

func newFacade(p facadeParams) *Facade {
	return NewFacade(p.Machine, p.Engine, p.Planner, p.Locks, p.Idem,
		p.Orders, p.Outbox, p.Consent, p.Sender, p.Pinger, p.Logger)
}

func newLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.NotifyHourlyLimit, cfg.NotifyDailyLimit)
}

type serverParams struct {
	fx.In

	Config *config.Config
	Router *gin.Engine
}

func newHTTPServer(p serverParams) *http.Server {
	return &http.Server{
		Addr:    p.Config.RunAddress,
		Handler: p.Router,
	}
}

type outboxWorkerParams struct {
	fx.In

	Facade  *Facade
	Limiter *ratelimit.Limiter
	Config  *config.Config
	Logger  *slog.Logger
}

func newOutboxWorker(p outboxWorkerParams) *worker.OutboxWorker {
	return worker.NewOutboxWorker(p.Facade, p.Limiter, worker.OutboxConfig{
		PollInterval: p.Config.OutboxPollInterval,
		BatchSize:    p.Config.OutboxBatchSize,
		Workers:      p.Config.OutboxWorkers,
		MaxRetries:   p.Config.OutboxMaxRetries,
		BackoffBase:  p.Config.OutboxBackoffBase,
		BackoffCap:   p.Config.OutboxBackoffCap,
		SendTimeout:  p.Config.SendTimeout,
	}, p.Logger)
}

type reconcilerParams struct {
	fx.In

	Facade *Facade
	Config *config.Config
	Logger *slog.Logger
}

func newReconciler(p reconcilerParams) *worker.Reconciler {
	return worker.NewReconciler(p.Facade, worker.ReconcilerConfig{
		Interval:  p.Config.ReconcileInterval,
		BatchSize: p.Config.ReconcileBatchSize,
		// A claim older than a full send plus two polls is abandoned.
		StuckAfter: p.Config.SendTimeout + 2*p.Config.OutboxPollInterval,
	}, p.Logger)
}

type observerParams struct {
	fx.In

	Machine *usecase.StateMachine
	Planner *usecase.NotificationPlanner
}

// registerObservers hooks notification planning into the state machine before
// traffic starts.
func registerObservers(p observerParams) {
	p.Machine.RegisterObserver(p.Planner.Observer())
}

type lifecycleParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     *slog.Logger
	Server     *http.Server
	Outbox     *worker.OutboxWorker
	Reconciler *worker.Reconciler
	Config     *config.Config
}

func registerLifecycle(p lifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Info("starting ordersync", slog.String("addr", p.Server.Addr))
			p.Outbox.Start(ctx)
			p.Reconciler.Start(ctx)
			go func() {
				if err := p.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error("http server terminated", slog.String("error", err.Error()))
					_ = p.Shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Reconciler.Stop()
			p.Outbox.Stop()

			shutdownCtx := ctx
			cancel := func() {}
			if _, ok := ctx.Deadline(); !ok {
				shutdownCtx, cancel = context.WithTimeout(ctx, p.Config.ShutdownTimeout)
			}
			defer cancel()

			if err := p.Server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			p.Logger.Info("ordersync stopped")
			return nil
		},
	})
}
