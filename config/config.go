package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv    string
	Port      string
	GinMode   string
	LogFormat string
	LogLevel  string

	Database Database
	Venue    Venue
	Auth     Auth
	Orders   Orders
	SMS      SMS
	Redis    Redis

	CORSAllowedOrigin    string
	SentryDSN            string
	OTLPEndpoint         string
	ExportFilenamePrefix string
	ChangePollInterval   time.Duration
	ChangeRetention      time.Duration
}

type Database struct {
	Driver string // sqlite | postgres | mysql
	DSN    string
}

type Venue struct {
	Timezone string
	Location *time.Location
}

type Auth struct {
	BartenderKey          string
	DashboardPassword     string
	DashboardPasswordHash string
	SessionSecret         string
	JWTSecret             string
	TokenTTL              time.Duration
}

type Orders struct {
	RequirePhone bool
	StoreTimeout time.Duration
	StaleAfter   time.Duration
}

type SMS struct {
	Provider         string // log | twilio | sns
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioBaseURL    string
	AWSRegion        string
	BartenderPhone   string
	Timeout          time.Duration
	Workers          int
	QueueSize        int
	RatePerSecond    float64
	DedupTTL         time.Duration
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

func (r Redis) Enabled() bool { return r.Addr != "" }

// LoginEnabled reports whether a dashboard password is configured. Sessions and bearer
// tokens are only honored when it is.
func (a Auth) LoginEnabled() bool {
	return a.DashboardPassword != "" || a.DashboardPasswordHash != ""
}

const minSecretLength = 32

var placeholderSecrets = map[string]bool{
	"change-me": true,
	"changeme":  true,
	"change_me": true,
	"secret":    true,
	"password":  true,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "bar_orders.db")
	v.SetDefault("VENUE_TIMEZONE", "America/Chicago")
	v.SetDefault("TOKEN_TTL", "12h")
	v.SetDefault("REQUIRE_PHONE", true)
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("STALE_AFTER", "10m")
	v.SetDefault("CHANGE_POLL_INTERVAL", "500ms")
	v.SetDefault("CHANGE_RETENTION", "24h")
	v.SetDefault("SMS_PROVIDER", "log")
	v.SetDefault("TWILIO_BASE_URL", "https://api.twilio.com")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("BARTENDER_PHONE", "")
	v.SetDefault("SMS_TIMEOUT", "10s")
	v.SetDefault("SMS_WORKERS", 4)
	v.SetDefault("SMS_QUEUE_SIZE", 256)
	v.SetDefault("SMS_RATE_PER_SEC", 5.0)
	v.SetDefault("SMS_DEDUP_TTL", "24h")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CORS_ALLOWED_ORIGIN", "*")
	v.SetDefault("EXPORT_FILENAME_PREFIX", "the_connersseur_orders")
}

// Load -> read .env (if present) and the process environment into a Config.
func Load() (*Config, error) {
	// .env optional; real environment variables win
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppEnv:    v.GetString("APP_ENV"),
		Port:      v.GetString("PORT"),
		GinMode:   v.GetString("GIN_MODE"),
		LogFormat: v.GetString("LOG_FORMAT"),
		LogLevel:  v.GetString("LOG_LEVEL"),
		Database: Database{
			Driver: strings.ToLower(v.GetString("DB_DRIVER")),
			DSN:    v.GetString("DB_DSN"),
		},
		Venue: Venue{Timezone: v.GetString("VENUE_TIMEZONE")},
		Auth: Auth{
			BartenderKey:          v.GetString("BARTENDER_DASH_KEY"),
			DashboardPassword:     v.GetString("DASHBOARD_PASSWORD"),
			DashboardPasswordHash: v.GetString("DASHBOARD_PASSWORD_HASH"),
			SessionSecret:         v.GetString("SESSION_SECRET"),
			JWTSecret:             v.GetString("JWT_SECRET"),
			TokenTTL:              v.GetDuration("TOKEN_TTL"),
		},
		Orders: Orders{
			RequirePhone: v.GetBool("REQUIRE_PHONE"),
			StoreTimeout: v.GetDuration("STORE_TIMEOUT"),
			StaleAfter:   v.GetDuration("STALE_AFTER"),
		},
		SMS: SMS{
			Provider:         strings.ToLower(v.GetString("SMS_PROVIDER")),
			TwilioAccountSID: v.GetString("TWILIO_ACCOUNT_SID"),
			TwilioAuthToken:  v.GetString("TWILIO_AUTH_TOKEN"),
			TwilioFrom:       v.GetString("TWILIO_PHONE_NUMBER"),
			TwilioBaseURL:    v.GetString("TWILIO_BASE_URL"),
			AWSRegion:        v.GetString("AWS_REGION"),
			BartenderPhone:   v.GetString("BARTENDER_PHONE"),
			Timeout:          v.GetDuration("SMS_TIMEOUT"),
			Workers:          v.GetInt("SMS_WORKERS"),
			QueueSize:        v.GetInt("SMS_QUEUE_SIZE"),
			RatePerSecond:    v.GetFloat64("SMS_RATE_PER_SEC"),
			DedupTTL:         v.GetDuration("SMS_DEDUP_TTL"),
		},
		Redis: Redis{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		CORSAllowedOrigin:    v.GetString("CORS_ALLOWED_ORIGIN"),
		SentryDSN:            v.GetString("SENTRY_DSN"),
		OTLPEndpoint:         v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ExportFilenamePrefix: v.GetString("EXPORT_FILENAME_PREFIX"),
		ChangePollInterval:   v.GetDuration("CHANGE_POLL_INTERVAL"),
		ChangeRetention:      v.GetDuration("CHANGE_RETENTION"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}

	switch c.SMS.Provider {
	case "log", "twilio", "sns":
	default:
		return fmt.Errorf("unsupported SMS_PROVIDER %q", c.SMS.Provider)
	}
	if c.SMS.Provider == "twilio" && (c.SMS.TwilioAccountSID == "" || c.SMS.TwilioAuthToken == "" || c.SMS.TwilioFrom == "") {
		return fmt.Errorf("twilio provider needs TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_PHONE_NUMBER")
	}

	durations := map[string]time.Duration{
		"STORE_TIMEOUT":        c.Orders.StoreTimeout,
		"STALE_AFTER":          c.Orders.StaleAfter,
		"CHANGE_POLL_INTERVAL": c.ChangePollInterval,
		"CHANGE_RETENTION":     c.ChangeRetention,
		"SMS_TIMEOUT":          c.SMS.Timeout,
		"TOKEN_TTL":            c.Auth.TokenTTL,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if c.SMS.Workers <= 0 || c.SMS.QueueSize <= 0 {
		return fmt.Errorf("SMS_WORKERS and SMS_QUEUE_SIZE must be positive")
	}

	if err := c.Auth.validateSecrets(c.IsProduction()); err != nil {
		return err
	}

	loc, err := time.LoadLocation(c.Venue.Timezone)
	if err != nil {
		return fmt.Errorf("invalid VENUE_TIMEZONE %q: %w", c.Venue.Timezone, err)
	}
	c.Venue.Location = loc
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// validateSecrets rejects placeholder signing secrets. Outside production an unset secret
// is replaced by a random one, so sessions do not survive a restart.
func (a *Auth) validateSecrets(production bool) error {
	secrets := []struct {
		name  string
		value *string
	}{
		{"SESSION_SECRET", &a.SessionSecret},
		{"JWT_SECRET", &a.JWTSecret},
	}
	for _, sec := range secrets {
		if placeholderSecrets[strings.ToLower(strings.TrimSpace(*sec.value))] {
			return fmt.Errorf("%s is set to a placeholder value", sec.name)
		}
		if *sec.value == "" {
			if production {
				return fmt.Errorf("%s is required in production", sec.name)
			}
			generated, err := randomSecret()
			if err != nil {
				return fmt.Errorf("generate %s: %w", sec.name, err)
			}
			*sec.value = generated
			continue
		}
		if production && len(*sec.value) < minSecretLength {
			return fmt.Errorf("%s must be at least %d characters in production", sec.name, minSecretLength)
		}
	}
	if a.SessionSecret == a.JWTSecret {
		return fmt.Errorf("SESSION_SECRET and JWT_SECRET must differ")
	}
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, minSecretLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
