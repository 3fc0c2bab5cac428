package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	srv := NewServer("127.0.0.1:0", zerolog.Nop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	Decisions.WithLabelValues("WARN").Inc()
	LoopRunning.WithLabelValues("tracking").Set(1)

	srv := httptest.NewServer(NewServer("", zerolog.Nop()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.True(t, strings.Contains(string(body), `screentime_enforcement_decisions_total{action="WARN"}`))
	require.True(t, strings.Contains(string(body), `screentime_loop_running{loop="tracking"} 1`))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(RecordsWritten)
	RecordsWritten.Add(3)
	require.Equal(t, before+3, testutil.ToFloat64(RecordsWritten))
}
