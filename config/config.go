// Package config loads the console access configuration from YAML, an
// optional .env file and CONSOLE_AUTH_* environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	auth "github.com/goliatone/go-console-auth"
	"github.com/goliatone/go-console-auth/guard"
	"github.com/goliatone/go-console-auth/logging/zaplog"
	"github.com/goliatone/go-console-auth/provider/oidc"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONSOLE_AUTH_"

// Persistence drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQL    = "sql"
)

// Config is the full configuration.
type Config struct {
	Provider struct {
		Issuer        string   `yaml:"issuer"`
		ClientID      string   `yaml:"client_id"`
		ClientSecret  string   `yaml:"client_secret"`
		RedirectURL   string   `yaml:"redirect_url"`
		AuthURL       string   `yaml:"auth_url"`
		TokenURL      string   `yaml:"token_url"`
		EndSessionURL string   `yaml:"end_session_url"`
		Scopes        []string `yaml:"scopes"`
		Timeout       string   `yaml:"timeout"`
	} `yaml:"provider"`

	Routes guard.Routes `yaml:"routes"`

	Auth struct {
		PlatformRoles      []string `yaml:"platform_roles"`
		InitTimeout        string   `yaml:"init_timeout"`
		RefreshSkew        string   `yaml:"refresh_skew"`
		LoginStateTTL      string   `yaml:"login_state_ttl"`
		DefaultRedirect    string   `yaml:"default_redirect"`
		PreferDefaultStore bool     `yaml:"prefer_default_store"`
	} `yaml:"auth"`

	Persistence struct {
		Driver        string `yaml:"driver"`
		CredentialKey string `yaml:"credential_key"`
		TTL           string `yaml:"ttl"`
		Redis         struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		SQL struct {
			DSN string `yaml:"dsn"`
		} `yaml:"sql"`
	} `yaml:"persistence"`

	Logging zaplog.Config `yaml:"logging"`
}

// Load reads path (skipped when empty), applies the .env file at envFile
// when present, then environment overrides and defaults, and validates.
func Load(path, envFile string) (*Config, error) {
	var c Config

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to load env file").
				WithMetadata(map[string]any{"path": envFile})
		}
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to read config file").
				WithMetadata(map[string]any{"path": path})
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to parse config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Persistence.Driver == "" {
		c.Persistence.Driver = DriverMemory
	}
	if c.Persistence.CredentialKey == "" {
		c.Persistence.CredentialKey = auth.DefaultCredentialKey
	}
	if len(c.Auth.PlatformRoles) == 0 {
		c.Auth.PlatformRoles = append([]string(nil), auth.DefaultPlatformRoles...)
	}
	if c.Auth.DefaultRedirect == "" {
		c.Auth.DefaultRedirect = auth.DefaultLoginRedirect
	}
}

// Validate checks required fields and durations.
func (c *Config) Validate() error {
	p := &c.Provider
	if err := validation.ValidateStruct(p,
		validation.Field(&p.ClientID, validation.Required),
		validation.Field(&p.RedirectURL, validation.Required, is.URL),
		validation.Field(&p.Issuer, is.URL),
		validation.Field(&p.Timeout, validation.By(duration)),
	); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid provider configuration")
	}

	a := &c.Auth
	if err := validation.ValidateStruct(a,
		validation.Field(&a.InitTimeout, validation.By(duration)),
		validation.Field(&a.RefreshSkew, validation.By(duration)),
		validation.Field(&a.LoginStateTTL, validation.By(duration)),
	); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid auth configuration")
	}

	s := &c.Persistence
	sqlDSN := []validation.Rule{}
	if s.Driver == DriverSQL {
		sqlDSN = append(sqlDSN, validation.Required)
	}
	if err := validation.ValidateStruct(s,
		validation.Field(&s.Driver, validation.Required, validation.In(DriverMemory, DriverRedis, DriverSQL)),
		validation.Field(&s.TTL, validation.By(duration)),
		validation.Field(&s.SQL, validation.By(func(any) error {
			return validation.Validate(s.SQL.DSN, sqlDSN...)
		})),
	); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid persistence configuration")
	}
	return nil
}

// OIDC returns the identity provider configuration.
func (c *Config) OIDC() oidc.Config {
	return oidc.Config{
		Issuer:        c.Provider.Issuer,
		ClientID:      c.Provider.ClientID,
		ClientSecret:  c.Provider.ClientSecret,
		RedirectURL:   c.Provider.RedirectURL,
		AuthURL:       c.Provider.AuthURL,
		TokenURL:      c.Provider.TokenURL,
		EndSessionURL: c.Provider.EndSessionURL,
		Scopes:        c.Provider.Scopes,
		PlatformRoles: c.Auth.PlatformRoles,
		Timeout:       parseDuration(c.Provider.Timeout),
	}
}

// GuardRoutes returns the routes as a guard.Config.
func (c *Config) GuardRoutes() guard.Config {
	return c.Routes
}

func (c *Config) InitTimeout() time.Duration   { return parseDuration(c.Auth.InitTimeout) }
func (c *Config) RefreshSkew() time.Duration   { return parseDuration(c.Auth.RefreshSkew) }
func (c *Config) LoginStateTTL() time.Duration { return parseDuration(c.Auth.LoginStateTTL) }
func (c *Config) PersistenceTTL() time.Duration {
	return parseDuration(c.Persistence.TTL)
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("ISSUER"); ok {
		c.Provider.Issuer = v
	}
	if v, ok := getEnvStr("CLIENT_ID"); ok {
		c.Provider.ClientID = v
	}
	if v, ok := getEnvStr("CLIENT_SECRET"); ok {
		c.Provider.ClientSecret = v
	}
	if v, ok := getEnvStr("REDIRECT_URL"); ok {
		c.Provider.RedirectURL = v
	}
	if v, ok := getEnvCSV("SCOPES"); ok {
		c.Provider.Scopes = v
	}

	if v, ok := getEnvStr("LOGIN_ROUTE"); ok {
		c.Routes.Login = v
	}
	if v, ok := getEnvStr("UNAUTHORIZED_ROUTE"); ok {
		c.Routes.Unauthorized = v
	}
	if v, ok := getEnvStr("STORE_SELECTION_ROUTE"); ok {
		c.Routes.StoreSelection = v
	}
	if v, ok := getEnvStr("LANDING_ROUTE"); ok {
		c.Routes.Landing = v
	}
	if v, ok := getEnvStr("STORE_PARAM"); ok {
		c.Routes.StoreParam = v
	}
	if v, ok := getEnvDur("INIT_WAIT"); ok {
		c.Routes.InitWait = v
	}

	if v, ok := getEnvCSV("PLATFORM_ROLES"); ok {
		c.Auth.PlatformRoles = v
	}
	if v, ok := getEnvStr("INIT_TIMEOUT"); ok {
		c.Auth.InitTimeout = v
	}
	if v, ok := getEnvStr("REFRESH_SKEW"); ok {
		c.Auth.RefreshSkew = v
	}
	if v, ok := getEnvBool("PREFER_DEFAULT_STORE"); ok {
		c.Auth.PreferDefaultStore = v
	}

	if v, ok := getEnvStr("PERSISTENCE_DRIVER"); ok {
		c.Persistence.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("CREDENTIAL_KEY"); ok {
		c.Persistence.CredentialKey = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Persistence.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Persistence.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Persistence.Redis.DB = v
	}
	if v, ok := getEnvStr("SQL_DSN"); ok {
		c.Persistence.SQL.DSN = v
	}

	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := getEnvStr("LOG_ENV"); ok {
		c.Logging.Env = v
	}
}

func duration(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return errors.New("must be a duration such as 30s or 5m", errors.CategoryValidation)
	}
	return nil
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(strings.TrimSpace(s))
	return d
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}
