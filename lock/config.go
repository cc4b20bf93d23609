package lock

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/kolkov/reclock/internal/primitive"
)

// EnvPrefix is the prefix of the environment variables read by LoadConfig.
const EnvPrefix = "RECLOCK_"

// Config holds the diagnostics settings shared by the mutexes of a program.
type Config struct {
	// TrackSites records acquisition stacks (RECLOCK_TRACK_SITES).
	TrackSites bool `mapstructure:"track_sites"`

	// HoldWarning is the hold budget, zero disables (RECLOCK_HOLD_WARNING).
	HoldWarning time.Duration `mapstructure:"hold_warning"`

	// LogLevel is a go-hclog level name (RECLOCK_LOG_LEVEL).
	LogLevel string `mapstructure:"log_level"`

	// DeadlockTimeout bounds lock waits under -tags=deadlock
	// (RECLOCK_DEADLOCK_TIMEOUT).
	DeadlockTimeout time.Duration `mapstructure:"deadlock_timeout"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
	}
}

// LoadConfig reads the RECLOCK_* environment variables.
func LoadConfig() (Config, error) {
	return ConfigFromEnv(os.Environ())
}

// ConfigFromEnv reads RECLOCK_* entries from environ, a list of
// "KEY=value" strings as returned by os.Environ. Other entries are ignored.
func ConfigFromEnv(environ []string) (Config, error) {
	raw := make(map[string]string)
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		raw[strings.ToLower(strings.TrimPrefix(key, EnvPrefix))] = val
	}
	return ConfigFromMap(raw)
}

// ConfigFromMap decodes settings keyed by their mapstructure names
// ("track_sites", "hold_warning", ...). Unknown keys are an error so a
// mistyped variable does not silently do nothing.
func ConfigFromMap(raw map[string]string) (Config, error) {
	cfg := DefaultConfig()

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Config{}, fmt.Errorf("reclock: config decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("reclock: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		return fmt.Errorf("reclock: unknown log level %q", c.LogLevel)
	}
	if c.HoldWarning < 0 {
		return fmt.Errorf("reclock: hold_warning must not be negative, got %s", c.HoldWarning)
	}
	if c.DeadlockTimeout < 0 {
		return fmt.Errorf("reclock: deadlock_timeout must not be negative, got %s", c.DeadlockTimeout)
	}
	return nil
}

// Logger builds the logger described by the config.
func (c Config) Logger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "reclock",
		Level: hclog.LevelFromString(c.LogLevel),
	})
}

// Options turns the config into mutex options. Append per-mutex options
// such as WithName after these.
func (c Config) Options() []Option {
	return []Option{
		WithLogger(c.Logger()),
		WithSiteTracking(c.TrackSites),
		WithHoldWarning(c.HoldWarning),
	}
}

// ApplyDeadlockTimeout installs DeadlockTimeout in the deadlock detector.
// It is process wide and does nothing without -tags=deadlock or when the
// timeout is zero.
func (c Config) ApplyDeadlockTimeout() {
	if c.DeadlockTimeout > 0 {
		primitive.SetDeadlockTimeout(c.DeadlockTimeout)
	}
}
