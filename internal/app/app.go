// Package app wires configuration, storage and services into a running platform.
package app

import (
	"context"
	"fmt"

	"github.com/Spok95/learning-platform/internal/api"
	"github.com/Spok95/learning-platform/internal/auth"
	"github.com/Spok95/learning-platform/internal/classes"
	"github.com/Spok95/learning-platform/internal/config"
	"github.com/Spok95/learning-platform/internal/db"
	"github.com/Spok95/learning-platform/internal/entitlement"
	"github.com/Spok95/learning-platform/internal/jobs"
	"github.com/Spok95/learning-platform/internal/logging"
	"github.com/Spok95/learning-platform/internal/mailer"
	"github.com/Spok95/learning-platform/internal/observability"
	"github.com/Spok95/learning-platform/internal/payments"
	"github.com/Spok95/learning-platform/internal/subscriptions"
	"github.com/Spok95/learning-platform/internal/tg"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type App struct {
	Cfg   *config.Config
	Log   *logging.Log
	DB    *sqlx.DB
	Store *db.Store

	Mailer        *mailer.Mailer
	Notifier      *tg.Notifier
	Tokens        *auth.Tokens
	Entitlement   *entitlement.Calculator
	Classes       *classes.Service
	Subscriptions *subscriptions.Service
	Checkout      *payments.CheckoutService
	Webhook       *payments.WebhookHandler

	closers []func()
}

// New loads config, opens the database and builds every service. It does not migrate.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &App{Cfg: cfg, Log: lg}
	a.closers = append(a.closers, lg.Closer)

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, cfg.Release)
	if err != nil {
		lg.Base.Warn("sentry init failed", zap.Error(err))
	}
	a.closers = append(a.closers, flush)

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("db: %w", err)
	}
	a.DB = database
	a.Store = db.NewStore(database)
	a.closers = append(a.closers, func() { _ = database.Close() })

	var sender mailer.Sender = mailer.LogSender{Logf: lg.Sugar.Named("mailer").Infof}
	if cfg.SMTP.Enabled() {
		sender = mailer.NewSMTPSender(cfg.SMTP)
	}
	a.Mailer = mailer.New(sender, lg.Component("mailer"))
	a.closers = append(a.closers, a.Mailer.Wait)

	a.Notifier, err = tg.NewBotNotifier(cfg.BotToken, lg.Component("telegram"))
	if err != nil {
		lg.Base.Warn("telegram disabled", zap.Error(err))
		a.Notifier = tg.NewNotifier(nil, nil)
	}

	a.Tokens = auth.NewTokens(cfg.JWTSecret, cfg.SessionTTL)
	a.Entitlement = entitlement.NewCalculator(a.Store, lg.Component("entitlement"))
	a.Classes = classes.New(a.Store, cfg.HourlyRate, a.Mailer, a.Notifier, lg.Component("classes"))
	a.Subscriptions = subscriptions.New(a.Store, a.Mailer, a.Processor(), lg.Component("subscriptions"))
	a.Checkout = payments.NewCheckoutService(cfg.StripeSecretKey, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)
	a.Webhook = payments.NewWebhookHandler(cfg.StripeWebhookSecret, a.Subscriptions, lg.Component("stripe"))
	return a, nil
}

// Processor is the Stripe canceller, or nil when no secret key is configured.
func (a *App) Processor() subscriptions.Processor {
	if a.Cfg.StripeSecretKey == "" {
		return nil
	}
	return payments.NewSubscriptionCanceller(a.Cfg.StripeSecretKey)
}

func (a *App) Router() *gin.Engine {
	if a.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	return api.NewRouter(api.Deps{
		Store:         a.Store,
		DB:            a.DB,
		Tokens:        a.Tokens,
		Entitlement:   a.Entitlement,
		Classes:       a.Classes,
		Subscriptions: a.Subscriptions,
		Checkout:      a.Checkout,
		Webhook:       a.Webhook.Handle,
		Mail:          a.Mailer,
		Log:           a.Log.Component("http"),
		Loc:           a.Cfg.Location,
		SecureCookies: a.Cfg.IsProd(),
	})
}

func (a *App) Reminders() *jobs.ClassReminders {
	return &jobs.ClassReminders{
		Store:  a.Store,
		Mail:   a.Mailer,
		Notify: a.Notifier,
		Log:    a.Log.Component("reminders"),
		Loc:    a.Cfg.Location,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
