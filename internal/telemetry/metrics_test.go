package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestSetWatermarkAge_UpdatesGauge(t *testing.T) {
	m := New()
	m.SetWatermarkAge(45 * time.Second)
	assert.Equal(t, float64(45), testutil.ToFloat64(m.watermarkAgeSeconds))
}

func TestSetBreakerState_EncodesClosedHalfOpenOpen(t *testing.T) {
	m := New()

	m.SetBreakerState(gobreaker.StateClosed)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.breakerState))

	m.SetBreakerState(gobreaker.StateHalfOpen)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.breakerState))

	m.SetBreakerState(gobreaker.StateOpen)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.breakerState))
}
