// Package config loads server settings.
//
// Sources, later ones overriding earlier ones:
//
//	defaults (this file)
//	YAML file: $TECHSTORE_CONFIG, else ./config.yaml when it exists
//	.env in the working directory (only fills variables not already set)
//	legacy variables: PORT, SALT_ROUNDS, DB_PATH, STATIC_DIR
//	TECHSTORE_* variables, e.g. TECHSTORE_HTTP_READ_TIMEOUT=10s -> http.readTimeout
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	// EnvPrefix marks the variables read into the config tree.
	EnvPrefix = "TECHSTORE_"
	// EnvConfigPath names a YAML file to load instead of ./config.yaml.
	EnvConfigPath = EnvPrefix + "CONFIG"

	defaultConfigFile = "config.yaml"
)

// legacyEnv maps the variable names the first backend used onto config keys.
var legacyEnv = map[string]string{
	"PORT":        "http.port",
	"SALT_ROUNDS": "auth.bcryptCost",
	"DB_PATH":     "database.path",
	"STATIC_DIR":  "storefront.staticDir",
}

// Config is the full server configuration.
//
// KOANF TAGS:
// Each tag is one segment of the dotted key ("http.readTimeout"). The same
// keys are used by the YAML file, the defaults map and the canonicalized
// TECHSTORE_* variables, so one struct field has exactly one name everywhere.
type Config struct {
	HTTP       HTTP       `koanf:"http"`
	Database   Database   `koanf:"database"`
	Auth       Auth       `koanf:"auth"`
	Storefront Storefront `koanf:"storefront"`
	Log        Log        `koanf:"log"`
}

// HTTP configures the listener and http.Server timeouts.
//
// TIMEOUTS:
// ReadTimeout and WriteTimeout bound a single request; IdleTimeout bounds a
// keep-alive connection between requests; ShutdownTimeout bounds how long
// in-flight requests may run after SIGTERM before the server gives up.
type HTTP struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"readTimeout"`
	WriteTimeout    time.Duration `koanf:"writeTimeout"`
	IdleTimeout     time.Duration `koanf:"idleTimeout"`
	ShutdownTimeout time.Duration `koanf:"shutdownTimeout"`
	// CORSOrigins lists allowed browser origins. "*" allows any origin.
	CORSOrigins []string `koanf:"corsOrigins"`
}

// Database configures the SQLite credential store.
type Database struct {
	// Path is the SQLite file. ":memory:" keeps everything in RAM.
	Path         string        `koanf:"path"`
	QueryTimeout time.Duration `koanf:"queryTimeout"`
}

// Auth configures password hashing.
type Auth struct {
	// BcryptCost is the work factor, 2^cost rounds per hash. Each +1 doubles
	// register and login latency. Must lie in [bcrypt.MinCost, bcrypt.MaxCost].
	BcryptCost int `koanf:"bcryptCost"`
}

// Storefront configures the static single-page app served next to the API.
type Storefront struct {
	// StaticDir holds the built storefront. Empty disables static serving.
	StaticDir string `koanf:"staticDir"`
}

// Log configures the process-wide slog logger.
type Log struct {
	// Level is debug, info, warn (or warning) or error. Empty means info.
	Level string `koanf:"level"`
	// Pretty switches from JSON lines to slog's text format for local use.
	Pretty bool `koanf:"pretty"`
}

// Addr is the listen address for http.Server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}

func defaults() map[string]any {
	return map[string]any{
		"http.port":             3000,
		"http.readTimeout":      15 * time.Second,
		"http.writeTimeout":     15 * time.Second,
		"http.idleTimeout":      60 * time.Second,
		"http.shutdownTimeout":  10 * time.Second,
		"http.corsOrigins":      []string{"*"},
		"database.path":         "data/techstore.db",
		"database.queryTimeout": 5 * time.Second,
		"auth.bcryptCost":       10,
		"storefront.staticDir":  "public",
		"log.level":             "info",
		"log.pretty":            false,
	}
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	return load(os.Getenv(EnvConfigPath), os.Environ)
}

// load does the work of Load. path is the YAML file to read ("" means look
// for ./config.yaml) and environ supplies the variables.
func load(path string, environ func() []string) (*Config, error) {
	ko := koanf.New(".")

	if err := ko.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	configFile, err := resolveFile(path)
	if err != nil {
		return nil, err
	}
	if configFile != "" {
		if err := ko.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", configFile)
		}
	}

	if err := ko.Load(env.Provider(".", env.Opt{
		EnvironFunc: environ,
		TransformFunc: func(k, v string) (string, any) {
			return legacyEnv[k], v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load legacy env variables")
	}

	known := keyIndex(ko.Keys())
	if err := ko.Load(env.Provider(".", env.Opt{
		Prefix:      EnvPrefix,
		EnvironFunc: environ,
		TransformFunc: func(k, v string) (string, any) {
			// Unknown names, TECHSTORE_CONFIG included, map to "" and are skipped.
			return known[normalizeToken(strings.TrimPrefix(k, EnvPrefix))], v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables")
	}

	cfg := new(Config)
	if err := ko.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	cfg.HTTP.CORSOrigins = trimAll(cfg.HTTP.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.HTTP.Port < 1 || c.HTTP.Port > 65535:
		return errors.Errorf("http.port %d out of range", c.HTTP.Port)
	case c.HTTP.ReadTimeout <= 0, c.HTTP.WriteTimeout <= 0, c.HTTP.IdleTimeout <= 0:
		return errors.New("http timeouts must be positive")
	case c.HTTP.ShutdownTimeout <= 0:
		return errors.New("http.shutdownTimeout must be positive")
	case strings.TrimSpace(c.Database.Path) == "":
		return errors.New("database.path is required")
	case c.Database.QueryTimeout <= 0:
		return errors.New("database.queryTimeout must be positive")
	case c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost:
		return errors.Errorf("auth.bcryptCost %d out of range [%d, %d]", c.Auth.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return errors.Errorf("log.level %q unknown", c.Log.Level)
	}
}

func resolveFile(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", errors.Wrapf(err, "config file %s", path)
		}
		return path, nil
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile, nil
	}
	return "", nil
}

// keyIndex maps the normalized form of every config key to the key itself,
// so HTTP_READ_TIMEOUT and HTTP_READTIMEOUT both find http.readTimeout.
func keyIndex(keys []string) map[string]string {
	idx := make(map[string]string, len(keys))
	for _, k := range keys {
		idx[normalizeToken(k)] = k
	}
	return idx
}

func normalizeToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
