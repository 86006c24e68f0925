package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("factor:warmup").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("factor:warmup").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("factor:warmup", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("factor:warmup", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("factor:warmup")))
}

func TestAddMailsIgnoresEmpty(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddMails("boq.submitted", 0)
	m.AddMails("boq.submitted", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.mails.WithLabelValues("boq.submitted")))

	var nilMetrics *Metrics
	nilMetrics.AddMails("boq.approved", 1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
