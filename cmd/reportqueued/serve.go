/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/railreport/reportqueue/httpclient"
	"github.com/railreport/reportqueue/httpserver"
	"github.com/railreport/reportqueue/log"
	"github.com/railreport/reportqueue/lrucache"
	"github.com/railreport/reportqueue/profserver"
	"github.com/railreport/reportqueue/queue"
	"github.com/railreport/reportqueue/queueapi"
	"github.com/railreport/reportqueue/reportclient"
	"github.com/railreport/reportqueue/restapi"
	"github.com/railreport/reportqueue/service"
)

const (
	serviceNameInURL = "reportqueue"
	metricsNamespace = "reportqueue"
	apiVersion       = 1
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the queue controller until SIGINT/SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(*configPath)
			if err != nil {
				return err
			}
			logger, closeLog := log.NewLogger(cfg.Log)
			defer closeLog()

			restapi.MustInitAndRegisterMetrics(metricsNamespace)

			a, err := newApp(cfg, logger)
			if err != nil {
				logger.Error("failed to build service", log.Error(err))
				return err
			}
			logger.Info("starting service", log.String("version", version), log.String("address", cfg.Server.Address))
			return service.New(logger, a.unit).Start()
		},
	}
}

type app struct {
	unit       *service.CompositeUnit
	controller *queue.Controller
	server     *httpserver.HTTPServer
	reports    *reportclient.Client
	handler    *queueapi.Handler
}

func newApp(cfg *AppConfig, logger log.FieldLogger) (*app, error) {
	metrics := &upstreamMetrics{
		client: httpclient.NewPrometheusMetricsCollector(metricsNamespace),
		cache:  lrucache.NewPrometheusMetrics(lrucache.PrometheusMetricsOpts{Namespace: metricsNamespace, Subsystem: "report_cache"}),
	}
	reports, err := reportclient.New(cfg.Upstream, logger.With(log.String("component", "report_client")), reportclient.Opts{
		MetricsCollector: metrics.client,
		CacheMetrics:     metrics.cache,
	})
	if err != nil {
		return nil, err
	}

	controller, err := queue.NewControllerWithOpts(cfg.Queue, reports, logger.With(log.String("component", "queue")),
		queue.ControllerOpts{Metrics: queue.NewPrometheusMetricsWithOpts(queue.PrometheusMetricsOpts{Namespace: metricsNamespace})})
	if err != nil {
		return nil, fmt.Errorf("create queue controller: %w", err)
	}

	handler := queueapi.NewHandler(cfg.API, controller, reports, logger)
	apiRoute, err := handler.Routes()
	if err != nil {
		return nil, fmt.Errorf("create api routes: %w", err)
	}
	server, err := httpserver.New(cfg.Server, logger, httpserver.Opts{
		ServiceNameInURL:   serviceNameInURL,
		APIRoutes:          map[httpserver.APIVersion]httpserver.APIRoute{apiVersion: apiRoute},
		ErrorDomain:        queueapi.ErrorDomain,
		HealthCheck:        queueapi.HealthCheck(controller),
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{Namespace: metricsNamespace},
	})
	if err != nil {
		return nil, fmt.Errorf("create http server: %w", err)
	}

	units := []service.Unit{
		server,
		service.NewWorkerUnitWithOpts(controller, service.WorkerUnitOpts{MetricsRegisterer: controller}),
		service.NewWorkerUnit(queue.NewSweeper(controller, logger)),
		service.NewWorkerUnitWithOpts(newCacheCleaner(reports, time.Duration(cfg.Upstream.Cache.TTL)),
			service.WorkerUnitOpts{MetricsRegisterer: metrics}),
	}
	if cfg.ProfServer.Enabled {
		units = append(units, profserver.New(cfg.ProfServer, logger.With(log.String("component", "prof_server"))))
	}

	return &app{
		unit:       service.NewCompositeUnit(units...),
		controller: controller,
		server:     server,
		reports:    reports,
		handler:    handler,
	}, nil
}

// newCacheCleaner drops expired report results until the context is done.
func newCacheCleaner(reports *reportclient.Client, ttl time.Duration) service.Worker {
	return service.WorkerFunc(func(ctx context.Context) error {
		if cache := reports.Cache(); cache != nil && ttl > 0 {
			cache.RunPeriodicCleanup(ctx, ttl)
			return nil
		}
		<-ctx.Done()
		return nil
	})
}

type upstreamMetrics struct {
	client *httpclient.PrometheusMetricsCollector
	cache  *lrucache.PrometheusMetrics
}

var _ service.MetricsRegisterer = (*upstreamMetrics)(nil)

func (m *upstreamMetrics) MustRegisterMetrics() {
	m.client.MustRegister()
	m.cache.MustRegister()
}

func (m *upstreamMetrics) UnregisterMetrics() {
	m.client.Unregister()
	m.cache.Unregister()
}
