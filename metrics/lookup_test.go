package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupMetrics_ObserveLookup(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewLookupMetricsWith(reg).(*lookupMetrics)

	m.ObserveLookup("found", 0)
	m.ObserveLookup("found", 2)
	m.ObserveLookup("not-found", 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.lookups.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("not-found")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.lookups.WithLabelValues("parent-found")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.hops), "must expose a single histogram")
}

func TestLookupMetrics_RecordTooManyLinks(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewLookupMetricsWith(reg)

	m.RecordTooManyLinks()
	m.RecordTooManyLinks()

	expected := `
# HELP memfs_lookup_too_many_links_total Total number of lookups aborted for exceeding the symbolic link depth
# TYPE memfs_lookup_too_many_links_total counter
memfs_lookup_too_many_links_total 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "memfs_lookup_too_many_links_total"))
}

func TestHandler_Disabled(t *testing.T) {
	t.Parallel()

	if IsEnabled() {
		t.Skip("registry enabled by another test")
	}
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "disabled")
}
