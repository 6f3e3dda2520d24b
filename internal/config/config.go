package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/coherentd/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel  = "info"
	DefaultInterval  = 2
	DefaultPulseRate = 1000.0
	DefaultRetention = 0.991
	DefaultCeiling   = 0.991
	DefaultThreshold = 0.714
	DefaultListen    = ":7777"

	configEnvVar = "COHERENTD_CONFIG"
	envPrefix    = "COHERENTD"
)

var defaultDomains = []string{"compute", "memory", "io", "net"}

type Config struct {
	Domains     []string `mapstructure:"domains"`
	PulseRate   float64  `mapstructure:"pulse_rate"`
	Retention   float64  `mapstructure:"retention"`
	Ceiling     float64  `mapstructure:"ceiling"`
	Threshold   float64  `mapstructure:"threshold"`
	Interval    int      `mapstructure:"interval"`
	Listen      string   `mapstructure:"listen"`
	Monitor     bool     `mapstructure:"monitor"`
	Debug       bool     `mapstructure:"debug"`
	Verbose     bool     `mapstructure:"verbose"`
	LogLevel    string   `mapstructure:"log_level"`
	Telemetry   bool     `mapstructure:"telemetry"`
	TelemetryDB string   `mapstructure:"database"`
}

// Load reads configuration from flags, environment and an optional TOML
// file (COHERENTD_CONFIG overrides the default /etc/coherentd.toml), then
// validates it. Invalid configuration fails here, never silently defaults.
func Load() (*Config, error) {
	errFactory := errors.New()

	fs := pflag.NewFlagSet("coherentd", pflag.ContinueOnError)
	fs.StringSlice("domains", defaultDomains, "Instrumentation domain names")
	fs.Float64("pulse-rate", DefaultPulseRate, "Target pulse rate in Hz")
	fs.Int("interval", DefaultInterval, "Seconds between status reports")
	fs.String("listen", DefaultListen, "Status server listen address (empty disables)")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.Bool("monitor", false, "Only log status, do not record telemetry")
	fs.Bool("telemetry", false, "Enable telemetry collection")
	fs.String("database", "", "Path to the telemetry database")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	// Flag names use dashes, config keys use underscores
	if err := v.BindPFlag("pulse_rate", fs.Lookup("pulse-rate")); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	if err := v.BindPFlag("log_level", fs.Lookup("log-level")); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("retention", DefaultRetention)
	v.SetDefault("ceiling", DefaultCeiling)
	v.SetDefault("threshold", DefaultThreshold)

	if path := os.Getenv(configEnvVar); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("coherentd")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errFactory.WithMessage(errors.ErrReadConfig,
				"Failed to read config file: "+err.Error())
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if len(c.Domains) == 0 {
		return errFactory.New(errors.ErrInvalidDomains)
	}
	if c.PulseRate <= 0 {
		return errFactory.WithData(errors.ErrInvalidPulseRate, c.PulseRate)
	}
	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"retention", c.Retention},
		{"ceiling", c.Ceiling},
		{"threshold", c.Threshold},
	} {
		if f.value <= 0 || f.value >= 1 {
			return errFactory.WithData(errors.ErrInvalidTuning, f.name)
		}
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}
