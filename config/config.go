// Package config loads the control loop's deployment parameters with
// spf13/viper, from env vars (prefix EVSE_), an optional YAML file, and
// defaults, for the keys named in SPEC_FULL.md §6. No command-line
// flags are bound to these keys.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/matkvaid/evse-load-balancer/api"
)

// Config is the resolved set of control-loop parameters.
type Config struct {
	FuseSize                     int            `mapstructure:"fuse_size"`
	PhaseCount                   int            `mapstructure:"phase_count"`
	OvercurrentMode              string         `mapstructure:"overcurrent_mode"`
	ChargeLimitHysteresisMinutes int            `mapstructure:"charge_limit_hysteresis_minutes"`
	FuseSizeOverride             *int           `mapstructure:"fuse_size_override"`
	Chargers                     []DeviceConfig `mapstructure:"chargers"`
}

// EffectiveFuseSize returns FuseSizeOverride when set, else FuseSize,
// mirroring coordinator.py's fuse_size property: the options-level
// override replaces the initial setup value outright, it does not
// merge with it per phase.
func (c Config) EffectiveFuseSize() int {
	if c.FuseSizeOverride != nil {
		return *c.FuseSizeOverride
	}
	return c.FuseSize
}

// DeviceConfig is one entry of the `chargers` config-file list: the
// kind selects the adapter implementation, and Other carries whatever
// vendor-specific fields that adapter needs (host, token, serial
// device, ...), decoded later by chargers.AdapterConfigFromMap.
type DeviceConfig struct {
	ID    string                 `mapstructure:"id"`
	Kind  string                 `mapstructure:"kind"`
	Other map[string]interface{} `mapstructure:",remain"`
}

// LivePhases returns the deployment's first N entries of api.Phases3p
// per PhaseCount.
func (c Config) LivePhases() ([]api.Phase, error) {
	switch c.PhaseCount {
	case 1:
		return api.Phases3p[:1], nil
	case 3:
		return api.Phases3p[:3], nil
	default:
		return nil, errors.Wrapf(api.ErrInvalidPhaseMode, "phase_count %d must be 1 or 3", c.PhaseCount)
	}
}

// Mode parses OvercurrentMode into its typed enum.
func (c Config) Mode() (api.OvercurrentMode, error) {
	return api.ParseOvercurrentMode(strings.ToLower(c.OvercurrentMode))
}

// defaults applied before the file/env layers are merged in.
func defaults(v *viper.Viper) {
	v.SetDefault("fuse_size", 25)
	v.SetDefault("phase_count", 3)
	v.SetDefault("overcurrent_mode", "conservative")
	v.SetDefault("charge_limit_hysteresis_minutes", 15)
}

// Load reads configuration from an optional YAML file at path (empty
// string skips the file layer), environment variables prefixed EVSE_,
// and defaults, in viper's usual precedence order (env > file >
// default). The viper instance is created here, so no flags are bound.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("EVSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: unmarshal")
	}

	if _, err := cfg.Mode(); err != nil {
		return nil, err
	}
	if _, err := cfg.LivePhases(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
