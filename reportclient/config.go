/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reportclient

import (
	"fmt"
	"net/url"
	"time"

	"github.com/railreport/reportqueue/config"
	"github.com/railreport/reportqueue/httpclient"
)

const cfgDefaultKeyPrefix = "upstream"

const (
	cfgKeyURL             = "url"
	cfgKeyUserAgent       = "userAgent"
	cfgKeyCacheEnabled    = "cache.enabled"
	cfgKeyCacheTTL        = "cache.ttl"
	cfgKeyCacheMaxEntries = "cache.maxEntries"
)

const (
	defaultUserAgent       = "reportqueue"
	defaultCacheTTL        = 10 * time.Minute
	defaultCacheMaxEntries = 100
)

// Config represents the configuration of the upstream report backend client.
type Config struct {
	// URL is the endpoint that generates a report for a single train and date.
	URL       string      `mapstructure:"url" yaml:"url" json:"url"`
	UserAgent string      `mapstructure:"userAgent" yaml:"userAgent" json:"userAgent"`
	Cache     CacheConfig `mapstructure:"cache" yaml:"cache" json:"cache"`

	// HTTPClient keys (timeout, rateLimits, log, metrics) live at the same level as url.
	HTTPClient httpclient.Config `mapstructure:",squash" yaml:",inline" json:"httpClient"`
}

// CacheConfig represents the settings of the result cache.
type CacheConfig struct {
	Enabled    bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	TTL        config.TimeDuration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
	MaxEntries int                 `mapstructure:"maxEntries" yaml:"maxEntries" json:"maxEntries"`
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
	dp.SetDefault(cfgKeyUserAgent, defaultUserAgent)
	dp.SetDefault(cfgKeyCacheEnabled, true)
	dp.SetDefault(cfgKeyCacheTTL, defaultCacheTTL.String())
	dp.SetDefault(cfgKeyCacheMaxEntries, defaultCacheMaxEntries)
	c.HTTPClient.SetProviderDefaults(dp)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.URL, err = dp.GetString(cfgKeyURL); err != nil {
		return err
	}
	if c.URL == "" {
		return dp.WrapKeyErr(cfgKeyURL, fmt.Errorf("must be set"))
	}
	if u, pErr := url.Parse(c.URL); pErr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return dp.WrapKeyErr(cfgKeyURL, fmt.Errorf("must be an absolute http(s) URL, got %q", c.URL))
	}
	if c.UserAgent, err = dp.GetString(cfgKeyUserAgent); err != nil {
		return err
	}
	if err = c.setCache(dp); err != nil {
		return err
	}
	return c.HTTPClient.Set(dp)
}

func (c *Config) setCache(dp config.DataProvider) error {
	var err error
	if c.Cache.Enabled, err = dp.GetBool(cfgKeyCacheEnabled); err != nil {
		return err
	}
	var ttl time.Duration
	if ttl, err = dp.GetDuration(cfgKeyCacheTTL); err != nil {
		return err
	}
	if ttl < 0 {
		return dp.WrapKeyErr(cfgKeyCacheTTL, fmt.Errorf("must not be negative"))
	}
	c.Cache.TTL = config.TimeDuration(ttl)
	if c.Cache.MaxEntries, err = dp.GetInt(cfgKeyCacheMaxEntries); err != nil {
		return err
	}
	if c.Cache.Enabled && c.Cache.MaxEntries <= 0 {
		return dp.WrapKeyErr(cfgKeyCacheMaxEntries, fmt.Errorf("must be positive"))
	}
	return nil
}
