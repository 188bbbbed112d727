package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRun(t *testing.T) {
	m := New()

	m.RecordRun("completed", 42*time.Second)
	m.RecordRun("completed", 10*time.Second)
	m.RecordRun("failed", time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runsTotal.WithLabelValues("failed")))
}

func TestJobLifecycle(t *testing.T) {
	m := New()

	m.JobStarted()
	m.JobStarted()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.runningJobs))

	m.JobFinished("completed", 5*time.Second)
	m.JobFinished("failed", time.Second)

	assert.Equal(t, float64(0), testutil.ToFloat64(m.runningJobs))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobsTotal.WithLabelValues("failed")))
}

func TestRecordProbe(t *testing.T) {
	m := New()

	m.RecordProbe("nmap", "active")
	m.RecordProbe("nmap", "inactive")
	m.RecordProbe("tcp", "active")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.probesTotal.WithLabelValues("nmap", "active")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.hostsDiscovered))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordArtifact("vulnerabilities_found")
	m.RecordFinding("CRITICAL")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
}
