package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Dispatched("set-volume")
		m.Failed("set-volume")
		m.Applied("overlay")
		m.Rejected("overlay")
		m.Ignored("mixer")
		m.Hidden("mixer")
		m.Dropped("volume-change-event", 1)
	})
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Dispatched("set-volume")
	m.Dispatched("set-volume")
	m.Failed("toggle-mute")
	m.Dropped("mute-change-event", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommandsDispatched.WithLabelValues("set-volume")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsFailed.WithLabelValues("toggle-mute")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsDropped.WithLabelValues("mute-change-event")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "volmix_gateway_commands_dispatched_total"))
}
