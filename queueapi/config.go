/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package queueapi

import (
	"fmt"
	"time"

	"github.com/railreport/reportqueue/config"
	"github.com/railreport/reportqueue/httpserver/middleware"
)

const cfgDefaultKeyPrefix = "api"

const (
	cfgKeyQueueEnabled            = "queueEnabled"
	cfgKeyMaintenanceEnabled      = "maintenance.enabled"
	cfgKeyMaintenanceMessage      = "maintenance.message"
	cfgKeyEnqueueRateLimitEnabled = "enqueueRateLimit.enabled"
	cfgKeyEnqueueRateLimitAlg     = "enqueueRateLimit.alg"
	cfgKeyEnqueueRateLimitCount   = "enqueueRateLimit.count"
	cfgKeyEnqueueRateLimitPeriod  = "enqueueRateLimit.period"
	cfgKeyEnqueueRateLimitBurst   = "enqueueRateLimit.burst"
	cfgKeyEnqueueRateLimitMaxKeys = "enqueueRateLimit.maxKeys"
	cfgKeyEnqueueRateLimitDryRun  = "enqueueRateLimit.dryRun"
)

const (
	defaultEnqueueRateLimitCount  = 10
	defaultEnqueueRateLimitPeriod = time.Minute
)

// Config represents the configuration of the report queue HTTP API.
type Config struct {
	// QueueEnabled turns the admission queue on. When it's off, reports are generated
	// synchronously within the enqueue request.
	QueueEnabled bool `mapstructure:"queueEnabled" yaml:"queueEnabled" json:"queueEnabled"`

	Maintenance      MaintenanceConfig      `mapstructure:"maintenance" yaml:"maintenance" json:"maintenance"`
	EnqueueRateLimit EnqueueRateLimitConfig `mapstructure:"enqueueRateLimit" yaml:"enqueueRateLimit" json:"enqueueRateLimit"`
}

// MaintenanceConfig represents the maintenance mode settings.
type MaintenanceConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Message string `mapstructure:"message" yaml:"message" json:"message"`
}

// EnqueueRateLimitConfig limits how often a single client (by IP) may submit report requests.
type EnqueueRateLimitConfig struct {
	Enabled bool                    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Alg     middleware.RateLimitAlg `mapstructure:"alg" yaml:"alg" json:"alg"`
	Count   int                     `mapstructure:"count" yaml:"count" json:"count"`
	Period  config.TimeDuration     `mapstructure:"period" yaml:"period" json:"period"`
	Burst   int                     `mapstructure:"burst" yaml:"burst" json:"burst"`
	MaxKeys int                     `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`
	DryRun  bool                    `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`
}

// Rate returns the configured rate.
func (c EnqueueRateLimitConfig) Rate() middleware.Rate {
	return middleware.Rate{Count: c.Count, Duration: time.Duration(c.Period)}
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyQueueEnabled, true)
	dp.SetDefault(cfgKeyMaintenanceEnabled, false)
	dp.SetDefault(cfgKeyMaintenanceMessage, middleware.DefaultMaintenanceMessage)
	dp.SetDefault(cfgKeyEnqueueRateLimitEnabled, false)
	dp.SetDefault(cfgKeyEnqueueRateLimitAlg, string(middleware.RateLimitAlgLeakyBucket))
	dp.SetDefault(cfgKeyEnqueueRateLimitCount, defaultEnqueueRateLimitCount)
	dp.SetDefault(cfgKeyEnqueueRateLimitPeriod, defaultEnqueueRateLimitPeriod.String())
	dp.SetDefault(cfgKeyEnqueueRateLimitBurst, 0)
	dp.SetDefault(cfgKeyEnqueueRateLimitMaxKeys, middleware.DefaultRateLimitMaxKeys)
	dp.SetDefault(cfgKeyEnqueueRateLimitDryRun, false)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.QueueEnabled, err = dp.GetBool(cfgKeyQueueEnabled); err != nil {
		return err
	}
	if c.Maintenance.Enabled, err = dp.GetBool(cfgKeyMaintenanceEnabled); err != nil {
		return err
	}
	if c.Maintenance.Message, err = dp.GetString(cfgKeyMaintenanceMessage); err != nil {
		return err
	}
	return c.setEnqueueRateLimit(dp)
}

func (c *Config) setEnqueueRateLimit(dp config.DataProvider) error {
	rl := &c.EnqueueRateLimit
	var err error
	if rl.Enabled, err = dp.GetBool(cfgKeyEnqueueRateLimitEnabled); err != nil {
		return err
	}
	var alg string
	if alg, err = dp.GetStringFromSet(cfgKeyEnqueueRateLimitAlg, []string{
		string(middleware.RateLimitAlgLeakyBucket), string(middleware.RateLimitAlgSlidingWindow),
	}, false); err != nil {
		return err
	}
	rl.Alg = middleware.RateLimitAlg(alg)
	if rl.Count, err = dp.GetInt(cfgKeyEnqueueRateLimitCount); err != nil {
		return err
	}
	var period time.Duration
	if period, err = dp.GetDuration(cfgKeyEnqueueRateLimitPeriod); err != nil {
		return err
	}
	rl.Period = config.TimeDuration(period)
	if rl.Burst, err = dp.GetInt(cfgKeyEnqueueRateLimitBurst); err != nil {
		return err
	}
	if rl.MaxKeys, err = dp.GetInt(cfgKeyEnqueueRateLimitMaxKeys); err != nil {
		return err
	}
	if rl.DryRun, err = dp.GetBool(cfgKeyEnqueueRateLimitDryRun); err != nil {
		return err
	}
	if !rl.Enabled {
		return nil
	}
	if rl.Count <= 0 {
		return dp.WrapKeyErr(cfgKeyEnqueueRateLimitCount, fmt.Errorf("must be positive"))
	}
	if period <= 0 {
		return dp.WrapKeyErr(cfgKeyEnqueueRateLimitPeriod, fmt.Errorf("must be positive"))
	}
	if rl.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyEnqueueRateLimitBurst, fmt.Errorf("must not be negative"))
	}
	if rl.MaxKeys < 0 {
		return dp.WrapKeyErr(cfgKeyEnqueueRateLimitMaxKeys, fmt.Errorf("must not be negative"))
	}
	return nil
}
