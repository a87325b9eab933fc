// Package server provides configuration loading, defaults and validation
// for the chat service.
package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Tyrowin/gochat/internal/auth"
	"github.com/Tyrowin/gochat/internal/store"
)

// EnvPrefix is the prefix of environment overrides, e.g. GOCHAT_SERVER_PORT.
const EnvPrefix = "GOCHAT_"

// ServerConfig covers the listening socket and the websocket origin policy.
type ServerConfig struct {
	Port           string   `koanf:"port"`
	AllowedOrigins []string `koanf:"origins"`
}

// StateConfig selects where credentials and sessions are persisted.
type StateConfig struct {
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"`
}

// AuthConfig controls password hashing and the session cookie.
type AuthConfig struct {
	Hasher     string        `koanf:"hasher"`
	CookieName string        `koanf:"cookie"`
	SessionTTL time.Duration `koanf:"ttl"`
}

// LogConfig controls the hclog output.
type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// ShutdownConfig bounds graceful shutdown.
type ShutdownConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// Config holds the full service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	State    StateConfig    `koanf:"state"`
	Auth     AuthConfig     `koanf:"auth"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Shutdown ShutdownConfig `koanf:"shutdown"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:           ":4000",
			AllowedOrigins: []string{"http://localhost:4000"},
		},
		State: StateConfig{
			Backend: store.KindFile,
			Path:    "serverState.txt",
		},
		Auth: AuthConfig{
			Hasher:     auth.HasherSHA256,
			CookieName: "sessionId",
			SessionTTL: auth.DefaultSessionTTL,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Shutdown: ShutdownConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig builds a Config from defaults, then the optional YAML file at
// path, then GOCHAT_* environment variables. Later sources win.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envTransformer := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformer), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := defaultConfig()
	if k.Exists("server.origins") {
		cfg.Server.AllowedOrigins = nil
	}

	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	sanitized := SanitizeConfig(cfg)
	return &sanitized, nil
}

// SanitizeConfig replaces empty or invalid values with defaults and
// normalizes the origin list.
func SanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Server.Port == "" {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.State.Backend == "" {
		cfg.State.Backend = def.State.Backend
	}
	if cfg.State.Path == "" {
		cfg.State.Path = def.State.Path
	}
	if cfg.Auth.Hasher == "" {
		cfg.Auth.Hasher = def.Auth.Hasher
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = def.Auth.CookieName
	}
	if cfg.Auth.SessionTTL <= 0 {
		cfg.Auth.SessionTTL = def.Auth.SessionTTL
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Shutdown.Timeout <= 0 {
		cfg.Shutdown.Timeout = def.Shutdown.Timeout
	}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.Server.AllowedOrigins = origins

	return cfg
}
