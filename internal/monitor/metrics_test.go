package monitor

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsInitialization(t *testing.T) {
	// Registering twice must not panic on duplicate collectors.
	InitMetrics("")
	InitMetrics("")
}

func TestMetricsValues(t *testing.T) {
	before := testutil.ToFloat64(ForksTotal.WithLabelValues("parent"))
	ForksTotal.WithLabelValues("parent").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ForksTotal.WithLabelValues("parent")))

	ChildSignalsTotal.WithLabelValues("terminated", "ok").Inc()
	SignalsTotal.WithLabelValues("hangup").Inc()

	Children.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(Children))
}
