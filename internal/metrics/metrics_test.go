package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector_StaticGauges(t *testing.T) {
	c := NewCollector(4, 500*time.Millisecond, time.Minute)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.SpeedMultiplier))
	assert.Equal(t, 0.5, testutil.ToFloat64(c.PublishInterval))
	assert.Equal(t, 60.0, testutil.ToFloat64(c.RefreshInterval))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	c := NewCollector(1, time.Second, time.Second)
	c.SimPasses.Inc()
	c.SnapshotWrites.WithLabelValues("unchanged").Add(3)

	srv := httptest.NewServer(c.Server(":0").Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "planner_simulation_passes_total 1")
	assert.Contains(t, string(body), `planner_snapshot_writes_total{outcome="unchanged"} 3`)
}
