package internal

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/indexer"
	"github.com/starford/ansuz/internal/persist"
	"github.com/starford/ansuz/internal/tools"
	"github.com/starford/ansuz/internal/watch"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Index       IndexConfig       `yaml:"index"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Query       QueryConfig       `yaml:"query"`
	Watch       WatchConfig       `yaml:"watch"`
	Auth        AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := c.Persistence.Validate(); err != nil {
		return fmt.Errorf("persistence: %w", err)
	}
	if err := c.Query.Validate(); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// IndexConfig holds indexer defaults. Per-request fields override them.
type IndexConfig struct {
	MaxFileBytes     int64    `yaml:"max_file_bytes"`
	BatchSize        int      `yaml:"batch_size"`
	Workers          int      `yaml:"workers"`
	RespectVCSIgnore bool     `yaml:"respect_vcs_ignore"`
	ExtraExcludeDirs []string `yaml:"extra_exclude_dirs"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxFileBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.Workers, validation.Required, validation.Min(1)),
	)
}

// PersistenceConfig selects where snapshots survive restarts.
type PersistenceConfig struct {
	Driver     string `yaml:"driver"`
	Path       string `yaml:"path"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// Validate validates the persistence configuration.
func (c *PersistenceConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = persist.DriverNone
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required,
			validation.In(persist.DriverNone, persist.DriverSQLite, persist.DriverBadger)),
		validation.Field(&c.Path, validation.When(c.Driver != persist.DriverNone, validation.Required)),
	)
}

// QueryConfig holds graph query settings.
type QueryConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// Validate validates the query configuration.
func (c *QueryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CacheSize, validation.Required, validation.Min(1)),
	)
}

// WatchConfig enables live re-indexing of one repository root.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Root     string        `yaml:"root"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Index: IndexConfig{
			MaxFileBytes:     indexer.DefaultMaxFileBytes,
			BatchSize:        indexer.DefaultBatchSize,
			Workers:          runtime.NumCPU(),
			RespectVCSIgnore: true,
		},
		Persistence: PersistenceConfig{
			Driver: persist.DriverSQLite,
			Path:   "./ansuz.db",
		},
		Query: QueryConfig{
			CacheSize: tools.DefaultCacheSize,
		},
		Watch: WatchConfig{
			Debounce: watch.DefaultDebounce,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
