/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"fmt"

	"github.com/railreport/reportqueue/config"
	"github.com/railreport/reportqueue/httpserver"
	"github.com/railreport/reportqueue/log"
	"github.com/railreport/reportqueue/profserver"
	"github.com/railreport/reportqueue/queue"
	"github.com/railreport/reportqueue/queueapi"
	"github.com/railreport/reportqueue/reportclient"
)

// REPORTQUEUE_QUEUE_MAXCONCURRENT overrides queue.maxConcurrent and so on.
const envVarsPrefix = "REPORTQUEUE"

// AppConfig aggregates configurations of all service components.
type AppConfig struct {
	Server     *httpserver.Config   `yaml:"server" json:"server"`
	Log        *log.Config          `yaml:"log" json:"log"`
	Queue      *queue.Config        `yaml:"queue" json:"queue"`
	API        *queueapi.Config     `yaml:"api" json:"api"`
	Upstream   *reportclient.Config `yaml:"upstream" json:"upstream"`
	ProfServer *profserver.Config   `yaml:"profServer" json:"profServer"`
}

var _ config.Config = (*AppConfig)(nil)

// NewAppConfig creates a new AppConfig.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Server:     httpserver.NewConfig(),
		Log:        log.NewConfig(),
		Queue:      queue.NewConfig(),
		API:        queueapi.NewConfig(),
		Upstream:   reportclient.NewConfig(),
		ProfServer: profserver.NewConfig(),
	}
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set sets configuration values from config.DataProvider.
func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}

// loadAppConfig loads the configuration from the file (if any) and environment variables.
func loadAppConfig(path string) (*AppConfig, error) {
	cfg := NewAppConfig()
	loader := config.NewDefaultLoader(envVarsPrefix)
	var err error
	if path == "" {
		err = loader.Load(cfg)
	} else {
		err = loader.LoadFromFile(path, config.DataTypeFromPath(path), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}
