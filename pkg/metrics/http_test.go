package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Observe(http.MethodPost, "/api/v1/licenses/{licenseId}/activations", http.StatusCreated, 30*time.Millisecond)
	m.Observe(http.MethodPost, "/api/v1/licenses/{licenseId}/activations", http.StatusConflict, 10*time.Millisecond)
	m.Observe(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	family := findFamily(mfs, "licensing_http_request_duration_seconds")
	require.NotNil(t, family)
	require.Len(t, family.GetMetric(), 3)

	var routes []string
	for _, metric := range family.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "route" {
				routes = append(routes, label.GetValue())
			}
		}
	}
	assert.Contains(t, routes, "unmatched")
	assert.Contains(t, routes, "/api/v1/licenses/{licenseId}/activations")
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.Observe(http.MethodGet, "/", http.StatusOK, time.Second)
	NewHTTPMetrics(nil).Observe(http.MethodGet, "/", http.StatusOK, time.Second)
}
