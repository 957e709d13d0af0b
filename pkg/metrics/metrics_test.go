package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("counters", func(t *testing.T) {
		assert := assert.New(t)
		reg := prometheus.NewRegistry()
		m, err := New("refpoll", reg)
		require.NoError(t, err)

		m.ObserveBallot("accepted")
		m.ObserveBallot("accepted")
		m.ObserveBallot("conflict")
		m.ObserveTransition("closed")
		m.ObserveCache(true)
		m.ObserveCache(false)
		m.ObservePollCreated()

		assert.Equal(2.0, testutil.ToFloat64(m.ballots.WithLabelValues("accepted")))
		assert.Equal(1.0, testutil.ToFloat64(m.ballots.WithLabelValues("conflict")))
		assert.Equal(1.0, testutil.ToFloat64(m.transitions.WithLabelValues("closed")))
		assert.Equal(1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
		assert.Equal(1.0, testutil.ToFloat64(m.pollsCreated))
	})

	t.Run("double registration fails", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		_, err := New("refpoll", reg)
		require.NoError(t, err)
		_, err = New("refpoll", reg)
		assert.Error(t, err)
	})

	t.Run("nil is a no-op", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.ObserveBallot("accepted")
			m.ObserveTransition("closed")
			m.ObserveCache(true)
			m.ObservePollCreated()
		})
	})
}
