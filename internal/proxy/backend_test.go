package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordResultMarksUnhealthyAfterThreshold(t *testing.T) {
	b := newBackend("primary", "ws://unused")

	assert.False(t, b.recordResult(false, 2))
	assert.Equal(t, StatusUnknown, b.Status())

	transitioned := b.recordResult(false, 2)
	assert.False(t, transitioned, "unknown->unhealthy is not a healthy->unhealthy transition")
	assert.Equal(t, StatusUnhealthy, b.Status())
}

func TestRecordResultDetectsHealthyToUnhealthyTransition(t *testing.T) {
	b := newBackend("primary", "ws://unused")
	b.recordResult(true, 1)
	assert.Equal(t, StatusHealthy, b.Status())

	transitioned := b.recordResult(false, 1)
	assert.True(t, transitioned)
	assert.Equal(t, StatusUnhealthy, b.Status())
}

func TestRecordResultRecoversToHealthy(t *testing.T) {
	b := newBackend("primary", "ws://unused")
	b.recordResult(false, 1)
	assert.Equal(t, StatusUnhealthy, b.Status())

	b.recordResult(true, 1)
	assert.Equal(t, StatusHealthy, b.Status())
}

func TestAvailableOnlyWhenHealthy(t *testing.T) {
	b := newBackend("primary", "ws://unused")
	assert.False(t, b.available())
	b.recordResult(true, 1)
	assert.True(t, b.available())
}
