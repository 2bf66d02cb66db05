// Package app wires stores, services and the credential mechanism from a
// Config. Both the API server and the operator CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"globalbangla.org/internal/auth"
	"globalbangla.org/internal/blob"
	"globalbangla.org/internal/config"
	"globalbangla.org/internal/contest"
	gbmail "globalbangla.org/internal/mail"
	"globalbangla.org/internal/obs"
	"globalbangla.org/internal/payment"
	"globalbangla.org/internal/payment/razorpay"
	"globalbangla.org/internal/store/pg"
)

// Credential mechanisms selectable through auth.mechanism.
const (
	MechanismJWT     = "jwt"
	MechanismSession = "session"
)

// App holds every wired component.
type App struct {
	Config *config.Config

	Store *pg.Store
	Redis *redis.Client

	Mechanism auth.Mechanism
	Mailer    gbmail.Mailer
	Blobs     *blob.Disk

	Accounts     *auth.Accounts
	Competitions *contest.Competitions
	Submissions  *contest.Submissions
	Winners      *contest.Winners
	Settings     *contest.SiteSettings
	Payments     *payment.Service
}

// Option customises New.
type Option func(*options)

type options struct {
	notifier payment.Notifier
	gateway  payment.Gateway
}

// WithNotifier receives every order state change.
func WithNotifier(n payment.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithGateway replaces the Razorpay client.
func WithGateway(g payment.Gateway) Option {
	return func(o *options) { o.gateway = g }
}

// New opens the database and, for the session mechanism, Redis. The caller
// owns the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.DatabaseDSN == "" {
		return nil, errors.New("app: database.dsn is required")
	}

	store, err := pg.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("app: open database: %w", err)
	}
	a := &App{Config: cfg, Store: store}

	if a.Mechanism, a.Redis, err = NewMechanism(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	if a.Blobs, err = blob.NewDisk(cfg.Uploads.Dir, cfg.Uploads.PublicPrefix); err != nil {
		a.Close()
		return nil, fmt.Errorf("app: uploads: %w", err)
	}
	a.Mailer = NewMailer(cfg)

	a.Accounts = auth.NewAccounts(store, store, a.Mailer,
		auth.WithInviteCode(cfg.Auth.AdminInviteCode),
		auth.WithMaxAdmins(cfg.Auth.MaxAdmins),
		auth.WithResetTTL(cfg.Auth.ResetTTL),
		auth.WithBaseURL(cfg.AppBaseURL),
	)
	a.Competitions = contest.NewCompetitions(store, a.Blobs)
	a.Submissions = contest.NewSubmissions(store, store, a.Blobs)
	a.Winners = contest.NewWinners(store, a.Blobs)
	a.Settings = contest.NewSiteSettings(store, a.Blobs)

	gateway := o.gateway
	if gateway == nil {
		if gateway, err = NewGateway(cfg); err != nil {
			a.Close()
			return nil, err
		}
	}
	payOpts := []payment.Option{
		payment.WithCurrency(cfg.Payment.Currency),
		payment.WithGatewayTimeout(cfg.Payment.GatewayTimeout),
	}
	if o.notifier != nil {
		payOpts = append(payOpts, payment.WithNotifier(o.notifier))
	}
	a.Payments = payment.NewService(store, gateway, store, []byte(cfg.Payment.KeySecret), payOpts...)
	return a, nil
}

// NewMechanism builds the configured credential mechanism. The Redis client is
// non-nil only for sessions.
func NewMechanism(ctx context.Context, cfg *config.Config) (auth.Mechanism, *redis.Client, error) {
	switch cfg.Auth.Mechanism {
	case MechanismJWT, "":
		m, err := auth.NewTokenMechanism(cfg.JWTSecret(),
			auth.WithIssuer(cfg.Auth.Issuer),
			auth.WithTokenTTL(cfg.Auth.TTL),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("app: token mechanism: %w", err)
		}
		return m, nil, nil
	case MechanismSession:
		sc := auth.DefaultSessionConfig()
		sc.URL = cfg.RedisURL
		sc.TTL = cfg.Auth.TTL
		client, err := auth.DialRedis(ctx, sc)
		if err != nil {
			return nil, nil, fmt.Errorf("app: session store: %w", err)
		}
		return auth.NewSessionMechanism(client, sc.TTL), client, nil
	default:
		return nil, nil, fmt.Errorf("app: unknown auth mechanism %q", cfg.Auth.Mechanism)
	}
}

// NewMailer returns SendGrid when a key is configured and the console mailer
// otherwise.
func NewMailer(cfg *config.Config) gbmail.Mailer {
	if cfg.Mail.SendgridKey == "" {
		if !cfg.IsDevelopment() {
			obs.Warn("mail_console_fallback", map[string]any{"env": cfg.Env})
		}
		return gbmail.Console{}
	}
	return gbmail.NewSendgrid(cfg.Mail.SendgridKey, cfg.Mail.FromName, cfg.Mail.From)
}

// NewGateway returns the Razorpay client. Development without keys gets a
// gateway that refuses every call.
func NewGateway(cfg *config.Config) (payment.Gateway, error) {
	if cfg.Payment.KeyID == "" && cfg.IsDevelopment() {
		obs.Warn("payment_gateway_disabled", map[string]any{"env": cfg.Env})
		return offlineGateway{}, nil
	}
	c, err := razorpay.New(cfg.Payment.KeyID, cfg.Payment.KeySecret, razorpay.WithBaseURL(cfg.Payment.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return c, nil
}

var errGatewayOffline = errors.New("payment gateway not configured")

type offlineGateway struct{}

func (offlineGateway) CreateOrder(context.Context, payment.OrderRequest) (payment.GatewayOrder, error) {
	return payment.GatewayOrder{}, errGatewayOffline
}

func (offlineGateway) ListOrders(context.Context, time.Time) ([]payment.GatewayOrder, error) {
	return nil, errGatewayOffline
}

// Close releases the database and Redis handles.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
