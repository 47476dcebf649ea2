/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// RequireSamplesCountInHistogram asserts the number of observations of the histogram (or a histogram taken from a vec).
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Observer, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	metric, ok := hist.(prometheus.Metric)
	require.True(t, ok, "observer is not a metric")
	var m dto.Metric
	require.NoError(t, metric.Write(&m))
	require.Equal(t, wantSamplesCount, int(m.GetHistogram().GetSampleCount()))
}
