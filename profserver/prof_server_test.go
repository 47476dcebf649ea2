/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/railreport/reportqueue/config"
	"github.com/railreport/reportqueue/log/logtest"
	"github.com/railreport/reportqueue/testutil"
)

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig()
		require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(""), config.DataTypeYAML, cfg))
		require.False(t, cfg.Enabled)
		require.Equal(t, defaultAddress, cfg.Address)
	})

	t.Run("enabled", func(t *testing.T) {
		cfg := NewConfig()
		data := "profServer:\n  enabled: true\n  address: 127.0.0.1:6060\n"
		require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(data), config.DataTypeYAML, cfg))
		require.True(t, cfg.Enabled)
		require.Equal(t, "127.0.0.1:6060", cfg.Address)
	})

	t.Run("enabled without address", func(t *testing.T) {
		cfg := NewConfig()
		data := "profServer:\n  enabled: true\n  address: \"\"\n"
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(data), config.DataTypeYAML, cfg)
		require.ErrorContains(t, err, "profServer.address")
	})
}

func TestProfServer(t *testing.T) {
	addr := testutil.GetLocalAddrWithFreeTCPPort()
	srv := New(&Config{Enabled: true, Address: addr}, logtest.NewRecorder())

	fatalErr := make(chan error, 1)
	go srv.Start(fatalErr)
	require.NoError(t, testutil.WaitListeningServer(addr, 3*time.Second))
	require.Eventually(t, func() bool { return srv.Addr() == addr }, time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/debug/pprof/cmdline")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop(false))
	testutil.RequireNoErrorInChannel(t, fatalErr)
}

func TestProfServerStopWithoutStart(t *testing.T) {
	srv := New(&Config{Address: "127.0.0.1:0"}, logtest.NewRecorder())
	require.NoError(t, srv.Stop(true))
}
