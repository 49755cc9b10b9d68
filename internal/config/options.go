package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shohag/slacker/internal/ratelimit"
)

const (
	DefaultConfigPath = "~/.config/slacker.conf"

	DefaultInterval = ratelimit.DefaultInterval
	DefaultTimeout  = 30 * time.Second

	EnvPrefix = "SLACKER"
)

// EnvKeyReplacer maps flag names to env suffixes: no-rate-limit -> NO_RATE_LIMIT.
var EnvKeyReplacer = strings.NewReplacer("-", "_")

// Options is built once from flags and environment and never changed after.
type Options struct {
	ConfigPath  string
	URL         string
	Name        string
	NoRateLimit bool
	Interval    time.Duration
	Timeout     time.Duration
	StripANSI   bool
	Logging     LoggingConfig
}

type LoggingConfig struct {
	Level  string
	Format string
}

// UsageError marks a bad combination or value on the command line.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("config", DefaultConfigPath)
	v.SetDefault("url", "")
	v.SetDefault("name", "")
	v.SetDefault("no-rate-limit", false)
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("strip-ansi", false)

	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "plain")
}

// LoadOptions reads the merged flag, environment and default values out of v.
func LoadOptions(v *viper.Viper) (Options, error) {
	interval, err := durationOption(v, "interval")
	if err != nil {
		return Options{}, err
	}
	timeout, err := durationOption(v, "timeout")
	if err != nil {
		return Options{}, err
	}

	opts := Options{
		ConfigPath:  v.GetString("config"),
		URL:         v.GetString("url"),
		Name:        v.GetString("name"),
		NoRateLimit: v.GetBool("no-rate-limit"),
		Interval:    interval,
		Timeout:     timeout,
		StripANSI:   v.GetBool("strip-ansi"),
		Logging: LoggingConfig{
			Level:  v.GetString("log-level"),
			Format: v.GetString("log-format"),
		},
	}
	return opts, opts.Validate()
}

// durationOption requires a unit on string values, so "1000" from the
// environment is rejected instead of being read as nanoseconds.
func durationOption(v *viper.Viper, key string) (time.Duration, error) {
	switch val := v.Get(key).(type) {
	case time.Duration:
		return val, nil
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			return 0, &UsageError{Msg: fmt.Sprintf("invalid --%s %q: want a duration with a unit, e.g. 1s or 500ms", key, val)}
		}
		return d, nil
	default:
		return 0, &UsageError{Msg: fmt.Sprintf("invalid --%s %v: want a duration with a unit, e.g. 1s or 500ms", key, val)}
	}
}

func (o Options) Validate() error {
	if o.URL != "" && o.Name != "" {
		return &UsageError{Msg: "--url and --name are mutually exclusive"}
	}
	if o.URL != "" {
		if err := ValidateURL(o.URL); err != nil {
			return &UsageError{Msg: fmt.Sprintf("invalid --url: %v", err)}
		}
	}
	if o.URL == "" && o.ConfigPath == "" {
		return &UsageError{Msg: "--config must not be empty"}
	}
	if !o.NoRateLimit && o.Interval <= 0 {
		return &UsageError{Msg: fmt.Sprintf("--interval must be positive, got %s", o.Interval)}
	}
	if o.Timeout < 0 {
		return &UsageError{Msg: fmt.Sprintf("--timeout must not be negative, got %s", o.Timeout)}
	}
	switch o.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		// fatal, panic and disabled would swallow the error diagnostics.
		return &UsageError{Msg: fmt.Sprintf("unknown --log-level %q (want trace, debug, info, warn or error)", o.Logging.Level)}
	}
	switch o.Logging.Format {
	case "plain", "console", "json":
	default:
		return &UsageError{Msg: fmt.Sprintf("unknown --log-format %q (want plain, console or json)", o.Logging.Format)}
	}
	return nil
}
