package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_AdvancesByFixedStep(t *testing.T) {
	epoch := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := NewClock(epoch, time.Minute)

	assert.Equal(t, epoch, clock.Current())
	assert.Equal(t, epoch.Add(time.Minute), clock.Next())
	assert.Equal(t, epoch.Add(2*time.Minute), clock.Next())
	assert.Equal(t, epoch.Add(2*time.Minute), clock.Current())
}

func TestClock_TimestampsStrictlyIncrease(t *testing.T) {
	clock := NewClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), time.Second)

	prev := clock.Current()
	for i := 0; i < 10; i++ {
		next := clock.Next()
		assert.True(t, next.After(prev))
		prev = next
	}
}
