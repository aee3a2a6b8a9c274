package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"instafund/internal/challenge"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr          string
	DBDSN             string
	JWTIssuer         string
	JWTSecret         string
	JWTTTL            time.Duration
	AdminPasswordHash string
	InternalToken     string
	WebSocketOrigin   string
	AppMode           string
	LogLevel          zerolog.Level
	RulesFile         string
	Admin             challenge.AdminSettings
	CapitalPolicy     challenge.CapitalPolicy
	RedisAddr         string
	RateLimit         float64
	RateBurst         int
	Stripe            StripeConfig
}

type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	PriceID       string
	SuccessURL    string
	CancelURL     string
}

// LoadDotEnv reads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func Load() (Config, error) {
	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		missing = append(missing, "JWT_TTL")
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, err
		}
		c.JWTTTL = d
	}
	c.AdminPasswordHash = os.Getenv("ADMIN_PASSWORD_HASH")
	if c.AdminPasswordHash == "" {
		missing = append(missing, "ADMIN_PASSWORD_HASH")
	}
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		c.WebSocketOrigin = "*"
	}
	c.AppMode = strings.ToLower(strings.TrimSpace(os.Getenv("APP_MODE")))
	if c.AppMode == "" {
		c.AppMode = "development"
	}
	if c.AppMode != "development" && c.AppMode != "production" {
		return c, errors.New("invalid APP_MODE: use development or production")
	}
	if c.AppMode == "production" && c.WebSocketOrigin == "*" {
		return c, errors.New("WS_ORIGIN must be set explicitly in production")
	}

	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return c, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	c.LogLevel = lvl

	c.RulesFile = strings.TrimSpace(os.Getenv("RULES_FILE"))

	c.Admin = challenge.DefaultAdminSettings()
	if v := strings.TrimSpace(os.Getenv("COMPANY_NAME")); v != "" {
		c.Admin.CompanyName = v
	}
	if c.Admin.CommissionPct, err = envDecimal("COMPANY_COMMISSION", c.Admin.CommissionPct); err != nil {
		return c, err
	}
	if c.Admin.MinWithdrawal, err = envDecimal("MIN_WITHDRAWAL", c.Admin.MinWithdrawal); err != nil {
		return c, err
	}
	if c.Admin.ProcessingDays, err = envInt("PROCESSING_DAYS", c.Admin.ProcessingDays); err != nil {
		return c, err
	}
	if err := c.Admin.Validate(); err != nil {
		return c, err
	}
	if c.CapitalPolicy, err = challenge.ParseCapitalPolicy(os.Getenv("CAPITAL_POLICY")); err != nil {
		return c, err
	}

	c.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))

	c.RateLimit = 10
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return c, errors.New("invalid RATE_LIMIT_RPS")
		}
		c.RateLimit = f
	}
	if c.RateBurst, err = envInt("RATE_LIMIT_BURST", 30); err != nil {
		return c, err
	}

	c.Stripe = StripeConfig{
		APIKey:        os.Getenv("STRIPE_API_KEY"),
		WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PriceID:       os.Getenv("STRIPE_PRICE_ID"),
		SuccessURL:    os.Getenv("CHECKOUT_SUCCESS_URL"),
		CancelURL:     os.Getenv("CHECKOUT_CANCEL_URL"),
	}
	if c.Stripe.APIKey != "" && c.Stripe.PriceID == "" {
		missing = append(missing, "STRIPE_PRICE_ID")
	}

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func envDecimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
