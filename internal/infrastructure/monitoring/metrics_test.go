package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreIsolatedPerInstance(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.IncClients()
	a.IncClients()
	b.IncClients()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.ClientsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.ClientsTotal))
	assert.EqualValues(t, 2, a.Snapshot().ClientsSeen)
}

func TestRecordScriptOutcomes(t *testing.T) {
	m := NewMetrics()

	m.RecordScript("success", 10*time.Millisecond)
	m.RecordScript("timeout", time.Second)
	m.RecordScript("timeout", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScriptOutcomes.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScriptOutcomes.WithLabelValues("timeout")))
	assert.EqualValues(t, 2, m.Snapshot().ScriptsTimedOut)
}

func TestTimerWithoutMetrics(t *testing.T) {
	timer := NewTimer(nil)
	assert.GreaterOrEqual(t, timer.Stop("success"), time.Duration(0))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/win/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	for _, path := range []string{"/win/1", "/win/2", "/missing"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/win/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.EqualValues(t, 1, m.Snapshot().TotalErrors)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "webbridge_http_requests_total")
	assert.Contains(t, w.Body.String(), "webbridge_uptime_seconds")
}
