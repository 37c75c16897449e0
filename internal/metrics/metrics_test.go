package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, Register(reg))

	// Registering twice collides.
	assert.Error(t, Register(reg))
}

func TestCounterLabels(t *testing.T) {
	before := testutil.ToFloat64(RecordsAppendedTotal.WithLabelValues("MetricsTestModel"))
	RecordsAppendedTotal.WithLabelValues("MetricsTestModel").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RecordsAppendedTotal.WithLabelValues("MetricsTestModel")))
}
