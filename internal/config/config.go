// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application. It is constructed once
// in main and injected into every component's constructor; nothing reads
// ambient global state.
type Config struct {
	// Server Configuration
	GinMode       string        `mapstructure:"GIN_MODE"`
	ServerHost    string        `mapstructure:"SERVER_HOST"`
	ServerPort    string        `mapstructure:"SERVER_PORT"`
	ServerTimeout time.Duration `mapstructure:"SERVER_TIMEOUT_SECONDS"`
	PublicBaseURL string        `mapstructure:"PUBLIC_BASE_URL"`

	// Database Configuration
	DBHost            string        `mapstructure:"DB_HOST"`
	DBPort            string        `mapstructure:"DB_PORT"`
	DBUser            string        `mapstructure:"DB_USER"`
	DBPassword        string        `mapstructure:"DB_PASSWORD"`
	DBName            string        `mapstructure:"DB_NAME"`
	DBSSLMode         string        `mapstructure:"DB_SSL_MODE"`
	DBTimezone        string        `mapstructure:"DB_TIMEZONE"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	// Logging Configuration
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Token Configuration
	JWTSecretKey             string        `mapstructure:"JWT_SECRET_KEY"`
	JWTIssuer                string        `mapstructure:"JWT_ISSUER"`
	TokenExpiry              time.Duration `mapstructure:"TOKEN_EXPIRY_MINUTES"`
	VerificationTokenMaxAge  time.Duration `mapstructure:"VERIFICATION_TOKEN_MAX_AGE_HOURS"`
	PasswordResetTokenMaxAge time.Duration `mapstructure:"PASSWORD_RESET_TOKEN_MAX_AGE_MINUTES"`
	VerificationLinkPath     string        `mapstructure:"VERIFICATION_LINK_PATH"`
	PasswordResetLinkPath    string        `mapstructure:"PASSWORD_RESET_LINK_PATH"`

	// Account Hygiene Sweeper
	HygieneSweepSchedule  string        `mapstructure:"HYGIENE_SWEEP_SCHEDULE"`
	UnverifiedGraceWindow time.Duration `mapstructure:"UNVERIFIED_GRACE_WINDOW_HOURS"`

	// Google OAuth
	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `mapstructure:"GOOGLE_REDIRECT_URI"`

	// Apple OAuth
	AppleClientID    string `mapstructure:"APPLE_CLIENT_ID"`
	AppleTeamID      string `mapstructure:"APPLE_TEAM_ID"`
	AppleKeyID       string `mapstructure:"APPLE_KEY_ID"`
	AppleRedirectURI string `mapstructure:"APPLE_REDIRECT_URI"`

	// OAuth callback state cookies
	OAuthStateCookieName     string `mapstructure:"OAUTH_STATE_COOKIE_NAME"`
	OAuthNonceCookieName     string `mapstructure:"OAUTH_NONCE_COOKIE_NAME"`
	OAuthCookieDomain        string `mapstructure:"OAUTH_COOKIE_DOMAIN"`
	OAuthCookieMaxAgeMinutes int    `mapstructure:"OAUTH_COOKIE_MAX_AGE_MINUTES"`
	OAuthCookieSecure        bool   `mapstructure:"OAUTH_COOKIE_SECURE"`
	OAuthCookieHTTPOnly      bool   `mapstructure:"OAUTH_COOKIE_HTTP_ONLY"`
	OAuthCookieSameSite      string `mapstructure:"OAUTH_COOKIE_SAME_SITE"`

	// Mailer
	MailFromAddress string `mapstructure:"MAIL_FROM_ADDRESS"`
}

// Load attempts to load configuration from a .env file (if present) and
// environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	v := viper.New()

	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_TIMEOUT_SECONDS", 30)
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "identity_db")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_TIMEZONE", "UTC")
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_MAX_OPEN_CONNS", 100)
	v.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 60)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("JWT_ISSUER", "identity_backend")
	v.SetDefault("TOKEN_EXPIRY_MINUTES", 60)
	v.SetDefault("VERIFICATION_TOKEN_MAX_AGE_HOURS", 24)
	v.SetDefault("PASSWORD_RESET_TOKEN_MAX_AGE_MINUTES", 60)
	v.SetDefault("VERIFICATION_LINK_PATH", "verify-email")
	v.SetDefault("PASSWORD_RESET_LINK_PATH", "reset-password")

	v.SetDefault("HYGIENE_SWEEP_SCHEDULE", "@every 7h")
	v.SetDefault("UNVERIFIED_GRACE_WINDOW_HOURS", 7)

	v.SetDefault("OAUTH_STATE_COOKIE_NAME", "oauth_state")
	v.SetDefault("OAUTH_NONCE_COOKIE_NAME", "oauth_nonce")
	v.SetDefault("OAUTH_COOKIE_MAX_AGE_MINUTES", 10)
	v.SetDefault("OAUTH_COOKIE_SECURE", true)
	v.SetDefault("OAUTH_COOKIE_HTTP_ONLY", true)
	v.SetDefault("OAUTH_COOKIE_SAME_SITE", "Lax")

	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@localhost")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling configuration: %w", err)
	}

	// Convert duration fields from their plain numeric env values.
	cfg.ServerTimeout = time.Duration(v.GetInt("SERVER_TIMEOUT_SECONDS")) * time.Second
	cfg.DBConnMaxLifetime = time.Duration(v.GetInt("DB_CONN_MAX_LIFETIME_MINUTES")) * time.Minute
	cfg.TokenExpiry = time.Duration(v.GetInt("TOKEN_EXPIRY_MINUTES")) * time.Minute
	cfg.VerificationTokenMaxAge = time.Duration(v.GetInt("VERIFICATION_TOKEN_MAX_AGE_HOURS")) * time.Hour
	cfg.PasswordResetTokenMaxAge = time.Duration(v.GetInt("PASSWORD_RESET_TOKEN_MAX_AGE_MINUTES")) * time.Minute
	cfg.UnverifiedGraceWindow = time.Duration(v.GetInt("UNVERIFIED_GRACE_WINDOW_HOURS")) * time.Hour

	if cfg.JWTSecretKey == "" {
		return nil, fmt.Errorf("FATAL: JWT_SECRET_KEY is not set. Tokens cannot be signed without it")
	}

	return &cfg, nil
}
