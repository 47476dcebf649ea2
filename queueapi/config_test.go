/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package queueapi

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/railreport/reportqueue/config"
	"github.com/railreport/reportqueue/httpserver/middleware"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    *Config
		wantErr string
	}{
		{
			name: "defaults",
			want: &Config{
				QueueEnabled: true,
				Maintenance:  MaintenanceConfig{Message: middleware.DefaultMaintenanceMessage},
				EnqueueRateLimit: EnqueueRateLimitConfig{
					Alg:     middleware.RateLimitAlgLeakyBucket,
					Count:   defaultEnqueueRateLimitCount,
					Period:  config.TimeDuration(defaultEnqueueRateLimitPeriod),
					MaxKeys: middleware.DefaultRateLimitMaxKeys,
				},
			},
		},
		{
			name: "custom",
			data: `
api:
  queueEnabled: false
  maintenance:
    enabled: true
    message: Back soon.
  enqueueRateLimit:
    enabled: true
    alg: slidingWindow
    count: 3
    period: 10s
    dryRun: true
`,
			want: &Config{
				QueueEnabled: false,
				Maintenance:  MaintenanceConfig{Enabled: true, Message: "Back soon."},
				EnqueueRateLimit: EnqueueRateLimitConfig{
					Enabled: true,
					Alg:     middleware.RateLimitAlgSlidingWindow,
					Count:   3,
					Period:  config.TimeDuration(10 * time.Second),
					MaxKeys: middleware.DefaultRateLimitMaxKeys,
					DryRun:  true,
				},
			},
		},
		{
			name:    "unknown alg",
			data:    "api:\n  enqueueRateLimit:\n    alg: tokenBucket\n",
			wantErr: "api.enqueueRateLimit.alg",
		},
		{
			name:    "zero count",
			data:    "api:\n  enqueueRateLimit:\n    enabled: true\n    count: 0\n",
			wantErr: "api.enqueueRateLimit.count",
		},
		{
			name:    "zero period",
			data:    "api:\n  enqueueRateLimit:\n    enabled: true\n    period: 0s\n",
			wantErr: "api.enqueueRateLimit.period",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(tt.data), config.DataTypeYAML, cfg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, cfg)
		})
	}
}
