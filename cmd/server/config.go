package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/org/dealership/internal/auth"
	"github.com/org/dealership/internal/validate"
	"github.com/org/dealership/pkg/models"
)

type config struct {
	ListenAddr     string        `yaml:"listen_addr" env:"DEALERSHIP_LISTEN_ADDR"`
	MetricsAddr    string        `yaml:"metrics_addr" env:"DEALERSHIP_METRICS_ADDR"`
	TLSCertFile    string        `yaml:"tls_cert" env:"DEALERSHIP_TLS_CERT"`
	TLSKeyFile     string        `yaml:"tls_key" env:"DEALERSHIP_TLS_KEY"`
	DBUrl          string        `yaml:"db_url" env:"DATABASE_URL"`
	MigrationsDir  string        `yaml:"migrations_dir" env:"DEALERSHIP_MIGRATIONS_DIR"`
	LogLevel       string        `yaml:"log_level" env:"DEALERSHIP_LOG_LEVEL"`
	TokenSecret    string        `yaml:"token_secret" env:"TOKEN_SECRET"`
	TokenTTL       time.Duration `yaml:"token_ttl" env:"DEALERSHIP_TOKEN_TTL"`
	CookieName     string        `yaml:"cookie_name" env:"DEALERSHIP_COOKIE_NAME"`
	BcryptCost     int           `yaml:"bcrypt_cost" env:"DEALERSHIP_BCRYPT_COST"`
	HireEpoch      string        `yaml:"hire_epoch" env:"DEALERSHIP_HIRE_EPOCH"`
	CORSOrigins    []string      `yaml:"cors_origins" env:"DEALERSHIP_CORS_ORIGINS"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps" env:"DEALERSHIP_RATE_LIMIT_RPS"`
	RateLimitBurst int           `yaml:"rate_limit_burst" env:"DEALERSHIP_RATE_LIMIT_BURST"`
	TrustProxy     bool          `yaml:"trust_proxy_headers" env:"DEALERSHIP_TRUST_PROXY_HEADERS"`
	AuditRejected  bool          `yaml:"audit_rejected" env:"DEALERSHIP_AUDIT_REJECTED"`

	// AllowList replaces the routes reachable without a session, as
	// "METHOD /path" entries.
	AllowList []string `yaml:"allow_list" env:"DEALERSHIP_ALLOW_LIST"`
}

func defaultConfig() config {
	return config{
		ListenAddr:     ":3000",
		MetricsAddr:    ":9090",
		MigrationsDir:  "migrations",
		LogLevel:       "info",
		TokenTTL:       auth.DefaultTokenTTL,
		CookieName:     auth.DefaultCookieName,
		BcryptCost:     auth.DefaultBcryptCost,
		HireEpoch:      validate.DefaultHireEpoch.Format(models.DateLayout),
		RateLimitRPS:   100,
		RateLimitBurst: 200,
	}
}

// loadConfig applies defaults, then the YAML file at path if it exists, then
// environment overrides. found reports whether the file was read.
func loadConfig(path string) (cfg config, found bool, err error) {
	cfg = defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		found = true
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, found, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, false, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, found, fmt.Errorf("parse env: %w", err)
	}
	return cfg, found, nil
}

// validate rejects configurations the server cannot start with.
func (c config) validate() error {
	if c.DBUrl == "" {
		return errors.New("db_url must be configured (or DATABASE_URL env var)")
	}
	if c.TokenSecret == "" {
		return errors.New("token_secret must be configured (or TOKEN_SECRET env var)")
	}
	if _, err := c.hireEpoch(); err != nil {
		return err
	}
	if _, err := c.allowList(); err != nil {
		return err
	}
	return nil
}

// allowList returns the configured exempt routes, or the default set when
// none are configured.
func (c config) allowList() (*auth.AllowList, error) {
	if len(c.AllowList) == 0 {
		return auth.DefaultAllowList(), nil
	}
	routes := make([]auth.Route, 0, len(c.AllowList))
	for _, s := range c.AllowList {
		r, err := auth.ParseRoute(s)
		if err != nil {
			return nil, fmt.Errorf("allow_list: %w", err)
		}
		routes = append(routes, r)
	}
	return auth.NewAllowList(routes...), nil
}

func (c config) hireEpoch() (time.Time, error) {
	t, err := time.Parse(models.DateLayout, c.HireEpoch)
	if err != nil {
		return time.Time{}, fmt.Errorf("hire_epoch must be a %s date: %w", models.DateLayout, err)
	}
	return t, nil
}
