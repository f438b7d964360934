// Package app wires the moderation bot together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/gatekeeper/app/dailygate"
	"github.com/m3rciful/gatekeeper/app/handlers"
	"github.com/m3rciful/gatekeeper/app/platform"
	"github.com/m3rciful/gatekeeper/app/router"
	"github.com/m3rciful/gatekeeper/app/store"
	"github.com/m3rciful/gatekeeper/app/store/postgres"
	"github.com/m3rciful/gatekeeper/app/store/redisstore"
	"github.com/m3rciful/gatekeeper/app/transport"
	"github.com/m3rciful/gatekeeper/app/verification"
	"github.com/m3rciful/gatekeeper/core/bootstrap"
	corecmd "github.com/m3rciful/gatekeeper/core/cmd"
	coreconfig "github.com/m3rciful/gatekeeper/core/config"
	"github.com/m3rciful/gatekeeper/core/logger"
	coretelegram "github.com/m3rciful/gatekeeper/core/telegram"
	tgsender "github.com/m3rciful/gatekeeper/core/telegram/sender"
)

// App owns the bot state and its collaborators.
type App struct {
	cfg   *coreconfig.Config
	infra *bootstrap.Result

	platform   *platform.Telebot
	dispatcher *tgsender.Dispatcher
	registry   *coretelegram.Registry
	router     *router.Router
	transport  *transport.Handler
	verifier   *verification.Service
	gate       *dailygate.Gate
}

// LoadConfig satisfies corecmd.Options.LoadConfig.
func LoadConfig(path string) (corecmd.ConfigCarrier, error) {
	return coreconfig.Load(path)
}

// Bootstrap initializes logging and storage, then builds the App.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg := carrier.CoreConfig()
	infra, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	a, err := New(cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	return a, nil
}

// New builds the App from a normalized configuration.
func New(cfg *coreconfig.Config, infra *bootstrap.Result) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if infra == nil {
		infra = &bootstrap.Result{}
	}
	pending, usage, err := openStores(cfg.Storage, infra)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		infra:      infra,
		platform:   platform.NewTelebot(nil),
		dispatcher: tgsender.NewDispatcher(tgsender.Options{MaxRetries: 2}),
	}
	replies := platform.Queued{Port: a.platform, Sender: a.dispatcher}

	a.verifier, err = verification.New(verification.Options{
		Platform: a.platform,
		Pending:  pending,
		Challenge: verification.Challenge{
			Question: cfg.Verification.Question,
			Correct:  cfg.Verification.CorrectAnswer,
			Decoys:   cfg.Verification.Decoys,
		},
		Messages: verification.Messages{
			Welcome:         cfg.Messages.Welcome,
			Verified:        cfg.Messages.Verified,
			AlreadyVerified: cfg.Messages.AlreadyVerified,
			WrongAnswer:     cfg.Messages.WrongAnswer,
		},
	})
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Bot.Location()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	window := dailygate.Window{Hour: *cfg.Bot.FeatureHour, Minute: *cfg.Bot.FeatureMinute, Location: loc}
	source := dailygate.NewHTTPSource(cfg.Bot.MediaIndexURL, cfg.Bot.MediaTimeout())
	a.gate, err = dailygate.New(window, usage, source, nil)
	if err != nil {
		return nil, err
	}

	set := &handlers.Set{
		Platform:  replies,
		Gate:      a.gate,
		Pending:   a.verifier,
		Rules:     handlers.NewRulesFile(cfg.Bot.RulesFile),
		ChatID:    cfg.Bot.ChatID,
		GroupLink: cfg.Bot.GroupLink,
		Messages:  cfg.Messages,
		Now:       time.Now,
	}
	a.registry, err = coretelegram.NewRegistry(set.Commands()...)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	set.Help = a.registry

	a.router, err = router.New(router.Options{
		Commands:    a.registry,
		Verifier:    a.verifier,
		Platform:    replies,
		AdminChatID: cfg.Bot.ChatID,
		Forbidden:   cfg.Messages.Forbidden,
	})
	if err != nil {
		return nil, err
	}
	set.Counters = a.router
	a.transport = transport.New(a.router)
	return a, nil
}

func openStores(cfg coreconfig.StorageConfig, infra *bootstrap.Result) (store.PendingStore, store.UsageStore, error) {
	switch cfg.Driver {
	case coreconfig.StoragePostgres:
		if infra.DB == nil {
			return nil, nil, errors.New("app: postgres storage selected but no database connection")
		}
		return postgres.NewPending(infra.DB), postgres.NewUsage(infra.DB), nil
	case coreconfig.StorageRedis:
		if infra.Redis == nil {
			return nil, nil, errors.New("app: redis storage selected but no redis client")
		}
		return redisstore.NewPending(infra.Redis, cfg.Redis.Prefix), redisstore.NewUsage(infra.Redis, cfg.Redis.Prefix), nil
	}
	return store.NewSet(), store.NewSet(), nil
}

// CoreConfig returns the configuration the App was built with.
func (a *App) CoreConfig() *coreconfig.Config { return a.cfg }

// Router exposes the event router.
func (a *App) Router() *router.Router { return a.router }

// Registry exposes the command registry.
func (a *App) Registry() *coretelegram.Registry { return a.registry }

// TelegramRunOptions satisfies corecmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		Config:      a.cfg,
		Registry:    a.registry,
		Dispatcher:  a.dispatcher,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg, nil),
		Routes:      a.transport.Routes(),
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.platform.Attach(rt.Bot)
			a.transport.Bind(ctx)
			logger.Info(ctx, logger.CompApp, "app.start",
				slog.Int("commands", a.registry.Len()),
				slog.String("storage", a.cfg.Storage.Driver),
				slog.Int64("chat_id", a.cfg.Bot.ChatID),
			)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			logger.Info(ctx, logger.CompApp, "app.stop",
				slog.Uint64("dropped", a.router.Dropped()),
				slog.Uint64("faults", a.router.Faults()),
			)
			return a.infra.Close()
		},
	}, nil
}
