package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Env      string `yaml:"env"`
		Port     string `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Database struct {
		Driver string `yaml:"driver"` // postgres (lib/pq) | pgx | memory
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`

	Cache struct {
		Kind          string `yaml:"kind"` // redis | memory
		RedisAddr     string `yaml:"redis_addr"`
		RedisPassword string `yaml:"redis_password"`
	} `yaml:"cache"`

	Session struct {
		TTL         time.Duration `yaml:"ttl"`
		RememberTTL time.Duration `yaml:"remember_ttl"`
		Secure      bool          `yaml:"secure"`
	} `yaml:"session"`

	OpenID struct {
		Provider         string        `yaml:"provider"`
		ClientID         string        `yaml:"client_id"`
		ClientSecret     string        `yaml:"client_secret"`
		ReturnURL        string        `yaml:"return_url"`
		StateSecret      string        `yaml:"state_secret"`
		RequiredFields   []string      `yaml:"required_fields"`
		OptionalFields   []string      `yaml:"optional_fields"`
		ResolverFunction string        `yaml:"resolver_function"`
		AutoRegister     bool          `yaml:"auto_register"`
		StrictUpdate     bool          `yaml:"strict_identifier_update"`
		Timeout          time.Duration `yaml:"timeout"`
	} `yaml:"openid"`
}

// Load reads .env (if present), the optional YAML file at path, and then
// lets environment variables override both.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	applyEnv(&c)
	applyDefaults(&c)
	return &c, nil
}

func applyEnv(c *Config) {
	setStr(&c.App.Env, "APP_ENV")
	setStr(&c.App.Port, "APP_PORT")
	setStr(&c.App.LogLevel, "LOG_LEVEL")

	setStr(&c.Database.Driver, "DATABASE_DRIVER")
	setStr(&c.Database.DSN, "DATABASE_DSN")

	setStr(&c.Cache.Kind, "CACHE_KIND")
	setStr(&c.Cache.RedisAddr, "REDIS_ADDR")
	setStr(&c.Cache.RedisPassword, "REDIS_PASSWORD")

	setDur(&c.Session.TTL, "SESSION_TTL")
	setDur(&c.Session.RememberTTL, "SESSION_REMEMBER_TTL")
	setBool(&c.Session.Secure, "SESSION_SECURE")

	setStr(&c.OpenID.Provider, "OPENID_PROVIDER")
	setStr(&c.OpenID.ClientID, "OPENID_CLIENT_ID")
	setStr(&c.OpenID.ClientSecret, "OPENID_CLIENT_SECRET")
	setStr(&c.OpenID.ReturnURL, "OPENID_RETURN_URL")
	setStr(&c.OpenID.StateSecret, "OPENID_STATE_SECRET")
	setList(&c.OpenID.RequiredFields, "OPENID_REQUIRED_FIELDS")
	setList(&c.OpenID.OptionalFields, "OPENID_OPTIONAL_FIELDS")
	setStr(&c.OpenID.ResolverFunction, "OPENID_RESOLVER_FUNCTION")
	setBool(&c.OpenID.AutoRegister, "OPENID_AUTO_REGISTER")
	setBool(&c.OpenID.StrictUpdate, "OPENID_STRICT_IDENTIFIER_UPDATE")
	setDur(&c.OpenID.Timeout, "OPENID_TIMEOUT")
}

func applyDefaults(c *Config) {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Port == "" {
		c.App.Port = "8080"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "redis"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 24 * time.Hour
	}
	if c.Session.RememberTTL == 0 {
		c.Session.RememberTTL = 30 * 24 * time.Hour
	}
	if c.OpenID.Provider == "" {
		c.OpenID.Provider = "oidc"
	}
	if c.OpenID.ResolverFunction == "" {
		c.OpenID.ResolverFunction = "find_by_openid_identifier"
	}
	if c.OpenID.ReturnURL == "" {
		c.OpenID.ReturnURL = "http://localhost:" + c.App.Port + "/session/return"
	}
	if c.OpenID.Timeout == 0 {
		c.OpenID.Timeout = 10 * time.Second
	}
}

// ---- env helpers ----

func setStr(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func setDur(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}

func setList(dst *[]string, key string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}
