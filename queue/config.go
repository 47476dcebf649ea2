/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package queue

import (
	"fmt"
	"time"

	"github.com/railreport/reportqueue/config"
)

const cfgDefaultKeyPrefix = "queue"

const (
	cfgKeyMaxConcurrent         = "maxConcurrent"
	cfgKeyCooldownPeriod        = "cooldownPeriod"
	cfgKeyHeartbeatTimeout      = "heartbeatTimeout"
	cfgKeyCleanupInterval       = "cleanupInterval"
	cfgKeyBatchCleanupThreshold = "batchCleanupThreshold"
	cfgKeyRetentionWindow       = "retentionWindow"
	cfgKeyTickInterval          = "tickInterval"
	cfgKeyExecutionTimeout      = "executionTimeout"
	cfgKeyMinEstimate           = "minEstimate"
)

// Default values.
const (
	DefaultMaxConcurrent         = 1
	DefaultCooldownPeriod        = 3 * time.Second
	DefaultHeartbeatTimeout      = 90 * time.Second
	DefaultCleanupInterval       = 30 * time.Second
	DefaultBatchCleanupThreshold = 10
	DefaultRetentionWindow       = 5 * time.Minute
	DefaultTickInterval          = time.Second
	DefaultExecutionTimeout      = 2 * time.Minute
	DefaultMinEstimate           = time.Second
)

// Config is the configuration of the queue controller.
type Config struct {
	// MaxConcurrent is the number of requests executed at the same time.
	MaxConcurrent int `mapstructure:"maxConcurrent" yaml:"maxConcurrent" json:"maxConcurrent"`

	// CooldownPeriod is the minimal time between two consecutive promotions.
	CooldownPeriod config.TimeDuration `mapstructure:"cooldownPeriod" yaml:"cooldownPeriod" json:"cooldownPeriod"`

	// HeartbeatTimeout is how long a queued or processing request may go without a heartbeat
	// before it is cancelled as abandoned. Must be greater than CooldownPeriod.
	HeartbeatTimeout config.TimeDuration `mapstructure:"heartbeatTimeout" yaml:"heartbeatTimeout" json:"heartbeatTimeout"`

	CleanupInterval       config.TimeDuration `mapstructure:"cleanupInterval" yaml:"cleanupInterval" json:"cleanupInterval"`
	BatchCleanupThreshold int                 `mapstructure:"batchCleanupThreshold" yaml:"batchCleanupThreshold" json:"batchCleanupThreshold"`

	// RetentionWindow is how long finished requests stay readable.
	RetentionWindow config.TimeDuration `mapstructure:"retentionWindow" yaml:"retentionWindow" json:"retentionWindow"`

	TickInterval     config.TimeDuration `mapstructure:"tickInterval" yaml:"tickInterval" json:"tickInterval"`
	ExecutionTimeout config.TimeDuration `mapstructure:"executionTimeout" yaml:"executionTimeout" json:"executionTimeout"`

	// MinEstimate is the lower bound of the wait estimate for the head of the queue,
	// and the per-position step when CooldownPeriod is zero.
	MinEstimate config.TimeDuration `mapstructure:"minEstimate" yaml:"minEstimate" json:"minEstimate"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates an empty Config to be filled by config.Loader.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		MaxConcurrent:         DefaultMaxConcurrent,
		CooldownPeriod:        config.TimeDuration(DefaultCooldownPeriod),
		HeartbeatTimeout:      config.TimeDuration(DefaultHeartbeatTimeout),
		CleanupInterval:       config.TimeDuration(DefaultCleanupInterval),
		BatchCleanupThreshold: DefaultBatchCleanupThreshold,
		RetentionWindow:       config.TimeDuration(DefaultRetentionWindow),
		TickInterval:          config.TimeDuration(DefaultTickInterval),
		ExecutionTimeout:      config.TimeDuration(DefaultExecutionTimeout),
		MinEstimate:           config.TimeDuration(DefaultMinEstimate),
	}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxConcurrent, DefaultMaxConcurrent)
	dp.SetDefault(cfgKeyCooldownPeriod, DefaultCooldownPeriod.String())
	dp.SetDefault(cfgKeyHeartbeatTimeout, DefaultHeartbeatTimeout.String())
	dp.SetDefault(cfgKeyCleanupInterval, DefaultCleanupInterval.String())
	dp.SetDefault(cfgKeyBatchCleanupThreshold, DefaultBatchCleanupThreshold)
	dp.SetDefault(cfgKeyRetentionWindow, DefaultRetentionWindow.String())
	dp.SetDefault(cfgKeyTickInterval, DefaultTickInterval.String())
	dp.SetDefault(cfgKeyExecutionTimeout, DefaultExecutionTimeout.String())
	dp.SetDefault(cfgKeyMinEstimate, DefaultMinEstimate.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.MaxConcurrent, err = dp.GetInt(cfgKeyMaxConcurrent); err != nil {
		return err
	}
	if c.BatchCleanupThreshold, err = dp.GetInt(cfgKeyBatchCleanupThreshold); err != nil {
		return err
	}
	durations := []struct {
		key string
		dst *config.TimeDuration
	}{
		{cfgKeyCooldownPeriod, &c.CooldownPeriod},
		{cfgKeyHeartbeatTimeout, &c.HeartbeatTimeout},
		{cfgKeyCleanupInterval, &c.CleanupInterval},
		{cfgKeyRetentionWindow, &c.RetentionWindow},
		{cfgKeyTickInterval, &c.TickInterval},
		{cfgKeyExecutionTimeout, &c.ExecutionTimeout},
		{cfgKeyMinEstimate, &c.MinEstimate},
	}
	for _, d := range durations {
		var v time.Duration
		if v, err = dp.GetDuration(d.key); err != nil {
			return err
		}
		*d.dst = config.TimeDuration(v)
	}
	if key, vErr := c.validate(); vErr != nil {
		return dp.WrapKeyErr(key, vErr)
	}
	return nil
}

// Validate checks the configuration constraints.
func (c *Config) Validate() error {
	if key, err := c.validate(); err != nil {
		return config.WrapKeyErr(cfgDefaultKeyPrefix+"."+key, err)
	}
	return nil
}

func (c *Config) validate() (string, error) {
	switch {
	case c.MaxConcurrent < 1:
		return cfgKeyMaxConcurrent, fmt.Errorf("should be >= 1")
	case c.CooldownPeriod < 0:
		return cfgKeyCooldownPeriod, fmt.Errorf("should be >= 0")
	case c.HeartbeatTimeout <= c.CooldownPeriod:
		return cfgKeyHeartbeatTimeout, fmt.Errorf("should be greater than %s (%s)", cfgKeyCooldownPeriod, c.CooldownPeriod)
	case c.CleanupInterval <= 0:
		return cfgKeyCleanupInterval, fmt.Errorf("should be > 0")
	case c.BatchCleanupThreshold < 1:
		return cfgKeyBatchCleanupThreshold, fmt.Errorf("should be >= 1")
	case c.RetentionWindow < 0:
		return cfgKeyRetentionWindow, fmt.Errorf("should be >= 0")
	case c.TickInterval <= 0:
		return cfgKeyTickInterval, fmt.Errorf("should be > 0")
	case c.ExecutionTimeout <= 0:
		return cfgKeyExecutionTimeout, fmt.Errorf("should be > 0")
	case c.MinEstimate < 0:
		return cfgKeyMinEstimate, fmt.Errorf("should be >= 0")
	}
	return "", nil
}
