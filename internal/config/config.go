// Package config loads the API server configuration from environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
type Config struct {
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL    string `env:"REDIS_URL,required,notEmpty"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts. Write must outlast a generation call.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"90s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Sessions
	JWTSecret     string        `env:"JWT_SECRET,required,notEmpty"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
	SignupCredits int64         `env:"SIGNUP_CREDITS" envDefault:"20"`

	// Generation
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"60s"`
	CreditHoldTTL     time.Duration `env:"CREDIT_HOLD_TTL" envDefault:"5m"`
	TextProvider      string        `env:"TEXT_PROVIDER" envDefault:"genai"`
	GeminiAPIKey      string        `env:"GEMINI_API_KEY"`
	GeminiModel       string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	// Image hosting (ImageKit)
	ImageKitURLEndpoint string `env:"IMAGEKIT_URL_ENDPOINT"`
	ImageKitPrivateKey  string `env:"IMAGEKIT_PRIVATE_KEY"`
	ImageKitFolder      string `env:"IMAGEKIT_FOLDER" envDefault:"quickgpt"`
	ImageKitUploadURL   string `env:"IMAGEKIT_UPLOAD_URL" envDefault:"https://upload.imagekit.io/api/v1/files/upload"`

	// Payments
	PaymentWebhookSecret string `env:"PAYMENT_WEBHOOK_SECRET"`
	CheckoutBaseURL      string `env:"CHECKOUT_BASE_URL" envDefault:"http://localhost:5173/loading"`

	// Rate limiting
	RateLimitEnabled      bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitMessageRPM   int  `env:"RATE_LIMIT_MESSAGE_RPM" envDefault:"30"`
	RateLimitMessageBurst int  `env:"RATE_LIMIT_MESSAGE_BURST" envDefault:"5"`
	RateLimitAuthRPM      int  `env:"RATE_LIMIT_AUTH_RPM" envDefault:"20"`
	RateLimitAuthBurst    int  `env:"RATE_LIMIT_AUTH_BURST" envDefault:"5"`

	GalleryCacheTTL time.Duration `env:"GALLERY_CACHE_TTL" envDefault:"30s"`

	// Comma-separated list of allowed origins.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	switch c.TextProvider {
	case "genai":
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required when TEXT_PROVIDER=genai")
		}
	case "mock":
		if c.IsProduction() {
			return errors.New("TEXT_PROVIDER=mock is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown TEXT_PROVIDER %q", c.TextProvider)
	}

	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if c.SignupCredits < 0 {
		return errors.New("SIGNUP_CREDITS must not be negative")
	}
	if c.IsProduction() && c.PaymentWebhookSecret == "" {
		return errors.New("PAYMENT_WEBHOOK_SECRET is required in production")
	}
	return nil
}

// ImageHostingEnabled reports whether image generation can be served.
func (c *Config) ImageHostingEnabled() bool {
	return c.ImageKitURLEndpoint != "" && c.ImageKitPrivateKey != ""
}

// Load parses environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
