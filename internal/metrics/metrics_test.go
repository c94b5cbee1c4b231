// SPDX-License-Identifier: MIT
package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(BlocksProcessed)
	BlocksProcessed.Inc()
	if got := testutil.ToFloat64(BlocksProcessed); got != before+1 {
		t.Errorf("BlocksProcessed = %f, want %f", got, before+1)
	}

	delivered := testutil.ToFloat64(DispatchDelivered)
	DispatchDelivered.Inc()
	if got := testutil.ToFloat64(Dispatches.WithLabelValues("delivered")); got != delivered+1 {
		t.Errorf("dispatches{delivered} = %f, want %f", got, delivered+1)
	}
}

func TestHotPathUpdatesZeroAllocs(t *testing.T) {
	allocs := testing.AllocsPerRun(100, func() {
		BlocksProcessed.Inc()
		DispatchNoActive.Inc()
		TempoBPM.Set(120)
		BlockDuration.Observe(0.001)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations updating metrics, got %.1f", allocs)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	TempoBPM.Set(128)

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "vizpipe_tempo_bpm 128") {
		t.Errorf("metrics output missing tempo gauge:\n%s", body)
	}
}
