/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsSubsystem = "restapi"

	metricsLabelDomain = "domain"
	metricsLabelCode   = "code"
)

type responseErrorsCounter struct {
	mu  sync.RWMutex
	vec *prometheus.CounterVec
}

var responseErrors responseErrorsCounter

func (c *responseErrorsCounter) inc(err *Error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vec != nil {
		c.vec.WithLabelValues(err.Domain, err.Code).Inc()
	}
}

// MustInitAndRegisterMetrics creates and registers the counter of error responses.
func MustInitAndRegisterMetrics(namespace string) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: metricsSubsystem,
		Name:      "response_errors_total",
		Help:      "Number of error responses by domain and code.",
	}, []string{metricsLabelDomain, metricsLabelCode})
	prometheus.MustRegister(vec)

	responseErrors.mu.Lock()
	responseErrors.vec = vec
	responseErrors.mu.Unlock()
}

// UnregisterMetrics unregisters the counter of error responses.
func UnregisterMetrics() {
	responseErrors.mu.Lock()
	defer responseErrors.mu.Unlock()
	if responseErrors.vec != nil {
		prometheus.Unregister(responseErrors.vec)
		responseErrors.vec = nil
	}
}
