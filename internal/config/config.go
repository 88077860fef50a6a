// Package config loads runtime settings from .env, an optional YAML file and
// the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Tables holds the DynamoDB table names.
type Tables struct {
	Users         string `yaml:"users"`
	Categories    string `yaml:"categories"`
	Products      string `yaml:"products"`
	Carts         string `yaml:"carts"`
	Orders        string `yaml:"orders"`
	Payments      string `yaml:"payments"`
	Reviews       string `yaml:"reviews"`
	Contacts      string `yaml:"contacts"`
	Counters      string `yaml:"counters"`
	Uniques       string `yaml:"uniques"`
	RevokedTokens string `yaml:"revoked_tokens"`
	Idempotency   string `yaml:"idempotency"`
}

// Keys maps each table name to its hash key attribute.
func (t Tables) Keys() map[string]string {
	return map[string]string{
		t.Users:         "user_id",
		t.Categories:    "category_id",
		t.Products:      "product_id",
		t.Carts:         "user_id",
		t.Orders:        "order_id",
		t.Payments:      "payment_id",
		t.Reviews:       "review_id",
		t.Contacts:      "contact_id",
		t.Counters:      "counter_name",
		t.Uniques:       "unique_key",
		t.RevokedTokens: "token_hash",
		t.Idempotency:   "idempotency_key",
	}
}

type Config struct {
	Port     string `yaml:"port"`
	RunLocal bool   `yaml:"run_local"`

	Region           string `yaml:"aws_region"`
	EndpointOverride string `yaml:"aws_endpoint_override"`
	TablePrefix      string `yaml:"table_prefix"`
	Tables           Tables `yaml:"tables"`
	EventsQueueURL   string `yaml:"events_queue_url"`
	MetricsNamespace string `yaml:"metrics_namespace"`

	JWTSecret      string        `yaml:"jwt_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	BcryptCost     int           `yaml:"bcrypt_cost"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`

	RedisAddr          string   `yaml:"redis_addr"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	CORSOrigins        []string `yaml:"cors_origins"`

	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
}

// Default returns the built-in settings. JWTSecret is left empty on purpose
// so that Load fails without one.
func Default() Config {
	return Config{
		Port:     "8080",
		Region:   "us-east-1",
		Tables: Tables{
			Users:         "users",
			Categories:    "categories",
			Products:      "products",
			Carts:         "carts",
			Orders:        "orders",
			Payments:      "payments",
			Reviews:       "reviews",
			Contacts:      "contacts",
			Counters:      "counters",
			Uniques:       "uniques",
			RevokedTokens: "revoked_tokens",
			Idempotency:   "idempotency",
		},
		MetricsNamespace:   "Storefront",
		TokenTTL:           24 * time.Hour,
		BcryptCost:         10,
		RequestTimeout:     5 * time.Second,
		IdempotencyTTL:     24 * time.Hour,
		RateLimitPerMinute: 20,
		CORSOrigins:        []string{"*"},
	}
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the
// environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return LoadFrom(os.LookupEnv)
}

// LoadFrom builds a Config using lookup for environment values.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	e := envReader{lookup: lookup}
	e.str("PORT", &cfg.Port)
	e.boolean("RUN_LOCAL", &cfg.RunLocal)
	e.str("AWS_REGION", &cfg.Region)
	e.str("AWS_ENDPOINT_OVERRIDE", &cfg.EndpointOverride)
	e.str("TABLE_PREFIX", &cfg.TablePrefix)
	e.str("EVENTS_QUEUE_URL", &cfg.EventsQueueURL)
	e.str("METRICS_NAMESPACE", &cfg.MetricsNamespace)
	e.str("JWT_SECRET", &cfg.JWTSecret)
	e.duration("TOKEN_TTL", &cfg.TokenTTL)
	e.integer("BCRYPT_COST", &cfg.BcryptCost)
	e.duration("REQUEST_TIMEOUT", &cfg.RequestTimeout)
	e.duration("IDEMPOTENCY_TTL", &cfg.IdempotencyTTL)
	e.str("REDIS_ADDR", &cfg.RedisAddr)
	e.integer("RATE_LIMIT_PER_MINUTE", &cfg.RateLimitPerMinute)
	e.list("CORS_ORIGINS", &cfg.CORSOrigins)
	e.str("ADMIN_EMAIL", &cfg.AdminEmail)
	e.str("ADMIN_PASSWORD", &cfg.AdminPassword)

	// The prefix applies to names coming from defaults or the file; explicit
	// per-table variables are taken verbatim.
	t := &cfg.Tables
	for _, tbl := range []struct {
		env  string
		name *string
	}{
		{"USERS_TABLE", &t.Users},
		{"CATEGORIES_TABLE", &t.Categories},
		{"PRODUCTS_TABLE", &t.Products},
		{"CARTS_TABLE", &t.Carts},
		{"ORDERS_TABLE", &t.Orders},
		{"PAYMENTS_TABLE", &t.Payments},
		{"REVIEWS_TABLE", &t.Reviews},
		{"CONTACTS_TABLE", &t.Contacts},
		{"COUNTERS_TABLE", &t.Counters},
		{"UNIQUES_TABLE", &t.Uniques},
		{"REVOKED_TOKENS_TABLE", &t.RevokedTokens},
		{"IDEMPOTENCY_TABLE", &t.Idempotency},
	} {
		if v, ok := lookup(tbl.env); ok && v != "" {
			*tbl.name = v
			continue
		}
		*tbl.name = cfg.TablePrefix + *tbl.name
	}

	if e.err != nil {
		return Config{}, e.err
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings that have no usable default.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	if c.TokenTTL <= 0 || c.RequestTimeout <= 0 || c.IdempotencyTTL <= 0 {
		return errors.New("TOKEN_TTL, REQUEST_TIMEOUT and IDEMPOTENCY_TTL must be positive")
	}
	if c.RateLimitPerMinute < 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return nil
}

type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
