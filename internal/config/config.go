package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Config holds every runtime setting of the API and the operator CLI.
type Config struct {
	Env     string
	Version string

	HTTPAddr string
	GRPCAddr string

	DatabaseDSN string
	RedisURL    string

	Auth    Auth
	Payment Payment
	Uploads Uploads
	Mail    Mail

	AppBaseURL   string
	RollbarToken string

	RateBurst     int
	RatePerSecond int

	// TrustedProxies lists proxy addresses or CIDRs whose X-Forwarded-For is honoured.
	TrustedProxies []string
}

// Auth configures credential issuance and account rules.
type Auth struct {
	Mechanism       string
	Secret          string
	Issuer          string
	TTL             time.Duration
	CookieSecure    bool
	AdminInviteCode string
	MaxAdmins       int
	ResetTTL        time.Duration
}

// Payment configures the gateway client.
type Payment struct {
	KeyID          string
	KeySecret      string
	BaseURL        string
	Currency       string
	GatewayTimeout time.Duration
}

// Uploads configures the disk blob store.
type Uploads struct {
	Dir          string
	PublicPrefix string
}

// Mail configures outbound mail.
type Mail struct {
	SendgridKey string
	From        string
	FromName    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", EnvDevelopment)
	v.SetDefault("version", "dev")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("auth.mechanism", "jwt")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "globalbangla")
	v.SetDefault("auth.ttl", 7*24*time.Hour)
	v.SetDefault("auth.cookie_secure", true)
	v.SetDefault("auth.admin_invite_code", "")
	v.SetDefault("auth.max_admins", 5)
	v.SetDefault("auth.reset_ttl", 30*time.Minute)
	v.SetDefault("payment.key_id", "")
	v.SetDefault("payment.key_secret", "")
	v.SetDefault("payment.base_url", "https://api.razorpay.com")
	v.SetDefault("payment.currency", "INR")
	v.SetDefault("payment.gateway_timeout", 10*time.Second)
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.public_prefix", "/uploads")
	v.SetDefault("mail.sendgrid_key", "")
	v.SetDefault("mail.from", "noreply@globalbangla.org")
	v.SetDefault("mail.from_name", "Global Bangla")
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("rollbar.token", "")
	v.SetDefault("rate.burst", 40)
	v.SetDefault("rate.per_second", 20)
	v.SetDefault("http.trusted_proxies", "")
}

// Load reads configuration from defaults, an optional config/.env.<env> file
// and GB_-prefixed environment variables (GB_AUTH_SECRET, GB_DATABASE_DSN, ...).
func Load(workDir string) (*Config, error) {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("GB_ENV")))
	if env == "" {
		env = EnvDevelopment
	}

	dotEnvPath := filepath.Join(workDir, "config", ".env."+env)
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", dotEnvPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: stat %s: %w", dotEnvPath, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Env:         strings.ToLower(v.GetString("env")),
		Version:     v.GetString("version"),
		HTTPAddr:    v.GetString("http.addr"),
		GRPCAddr:    v.GetString("grpc.addr"),
		DatabaseDSN: v.GetString("database.dsn"),
		RedisURL:    v.GetString("redis.url"),
		Auth: Auth{
			Mechanism:       strings.ToLower(v.GetString("auth.mechanism")),
			Secret:          v.GetString("auth.secret"),
			Issuer:          v.GetString("auth.issuer"),
			TTL:             v.GetDuration("auth.ttl"),
			CookieSecure:    v.GetBool("auth.cookie_secure"),
			AdminInviteCode: v.GetString("auth.admin_invite_code"),
			MaxAdmins:       v.GetInt("auth.max_admins"),
			ResetTTL:        v.GetDuration("auth.reset_ttl"),
		},
		Payment: Payment{
			KeyID:          v.GetString("payment.key_id"),
			KeySecret:      v.GetString("payment.key_secret"),
			BaseURL:        v.GetString("payment.base_url"),
			Currency:       strings.ToUpper(v.GetString("payment.currency")),
			GatewayTimeout: v.GetDuration("payment.gateway_timeout"),
		},
		Uploads: Uploads{
			Dir:          v.GetString("uploads.dir"),
			PublicPrefix: v.GetString("uploads.public_prefix"),
		},
		Mail: Mail{
			SendgridKey: v.GetString("mail.sendgrid_key"),
			From:        v.GetString("mail.from"),
			FromName:    v.GetString("mail.from_name"),
		},
		AppBaseURL:    strings.TrimRight(v.GetString("app.base_url"), "/"),
		RollbarToken:  v.GetString("rollbar.token"),
		RateBurst:     v.GetInt("rate.burst"),
		RatePerSecond: v.GetInt("rate.per_second"),

		TrustedProxies: splitList(v.GetString("http.trusted_proxies")),
	}
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Auth.Mechanism {
	case "jwt", "session":
	default:
		errs = append(errs, fmt.Errorf("auth.mechanism must be jwt or session, got %q", c.Auth.Mechanism))
	}
	if c.Auth.TTL <= 0 {
		errs = append(errs, errors.New("auth.ttl must be positive"))
	}
	if c.Auth.MaxAdmins <= 0 {
		errs = append(errs, errors.New("auth.max_admins must be positive"))
	}
	if c.Payment.GatewayTimeout <= 0 {
		errs = append(errs, errors.New("payment.gateway_timeout must be positive"))
	}
	for _, p := range c.TrustedProxies {
		if !validProxy(p) {
			errs = append(errs, fmt.Errorf("http.trusted_proxies: %q is not an address or CIDR", p))
		}
	}
	if !c.IsDevelopment() {
		if c.Auth.Mechanism == "jwt" && len(c.Auth.Secret) < 16 {
			errs = append(errs, errors.New("auth.secret must be at least 16 characters"))
		}
		if c.Payment.KeySecret == "" {
			errs = append(errs, errors.New("payment.key_secret is required"))
		}
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether relaxed defaults (console mail, dev secret) apply.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment || c.Env == EnvTest
}

// JWTSecret returns the signing secret, falling back to a fixed value in development.
func (c *Config) JWTSecret() []byte {
	if c.Auth.Secret == "" && c.IsDevelopment() {
		return []byte("globalbangla-dev-secret")
	}
	return []byte(c.Auth.Secret)
}

func splitList(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

func validProxy(p string) bool {
	if _, err := netip.ParsePrefix(p); err == nil {
		return true
	}
	_, err := netip.ParseAddr(p)
	return err == nil
}
