package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CRM_ prefix), flags, a .env file or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Upstream  UpstreamConfig
	Auth      AuthConfig
	Catalog   CatalogConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// UpstreamConfig points at the product and auth API.
type UpstreamConfig struct {
	BaseURL        string        `default:"https://dummyjson.com" usage:"Upstream API base URL" flag:"upstream-url"`
	Timeout        time.Duration `default:"10s" usage:"Per-request upstream timeout"`
	SessionMinutes int           `default:"60" usage:"Upstream token lifetime requested on login"`
}

// AuthConfig controls dashboard sessions.
type AuthConfig struct {
	Pepper     string        `required:"true" usage:"HMAC pepper for session token hashing (CRM_AUTH_PEPPER)" flag:"auth-pepper"`
	SessionTTL time.Duration `default:"1h" usage:"Dashboard session lifetime" flag:"session-ttl"`
}

// CatalogConfig controls the product cache.
type CatalogConfig struct {
	PageSize    int `default:"30" usage:"Default page size for product lists"`
	WarmPages   int `default:"1" usage:"Pages fetched into the cache at startup"`
	EventBuffer int `default:"16" usage:"Per-subscriber event buffer"`
}

// RateLimitConfig controls the per-client token bucket limiter.
type RateLimitConfig struct {
	RPS   float64 `default:"20" usage:"Sustained requests per second per client, 0 disables"`
	Burst int     `default:"40" usage:"Burst size per client"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins     []string `default:"*" usage:"Allowed CORS origins"`
	Credentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads a .env file if present, then loads configuration from
// environment variables, flags and YAML config files.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig([]string{"config.yaml", "/etc/crm/config.yaml"}, false)
}

func loadConfig(files []string, skipFlags bool) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CRM",
		SkipFlags: skipFlags,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults honours the PORT variable set by hosting platforms
// unless an explicit address was configured.
func (c *Config) applyPlatformDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch {
	case c.Auth.Pepper == "":
		return errors.New("auth pepper is required: set CRM_AUTH_PEPPER")
	case c.Catalog.PageSize < 1:
		return errors.Errorf("catalog page size must be positive, got %d", c.Catalog.PageSize)
	case c.Catalog.WarmPages < 0:
		return errors.Errorf("catalog warm pages must not be negative, got %d", c.Catalog.WarmPages)
	case c.Upstream.Timeout <= 0:
		return errors.Errorf("upstream timeout must be positive, got %s", c.Upstream.Timeout)
	}
	return nil
}
