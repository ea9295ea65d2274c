package cmd_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/amd"
	"github.com/GoCodeAlone/amd/cmd/amdload/cmd"
)

func TestMetricsHandler(t *testing.T) {
	metrics := amd.NewMetricsObserver("amd")
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(metrics))

	sched := amd.NewStepScheduler()
	loader := amd.NewLoader(amd.WithScheduler(sched), amd.WithObserver(metrics))
	loader.NewContext(amd.DefaultConfig())

	srv := httptest.NewServer(cmd.NewMetricsHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `amd_module_events_total{context="context-1",type="context.created"} 1`)
	assert.Contains(t, string(body), "amd_unhandled_errors_total 0")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
