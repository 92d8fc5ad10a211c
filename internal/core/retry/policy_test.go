package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.InitialDelay)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 8*time.Second, p.Delay(4))
	assert.Equal(t, 16*time.Second, p.Delay(5))
}

func TestPolicy_Delay_FirstAttemptNeverWaits(t *testing.T) {
	assert.Equal(t, time.Duration(0), DefaultPolicy().Delay(1))
	assert.Equal(t, time.Duration(0), DefaultPolicy().Delay(0))
}

func TestPolicy_Delay_Capped(t *testing.T) {
	p := Policy{MaxAttempts: 10, InitialDelay: time.Second, Multiplier: 3, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, p.Delay(2))
	assert.Equal(t, 3*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(10))
}

func TestPolicy_Delay_Fixed(t *testing.T) {
	p := Policy{MaxAttempts: 4, InitialDelay: 500 * time.Millisecond, Multiplier: 1}
	for n := 2; n <= p.MaxAttempts; n++ {
		assert.Equal(t, 500*time.Millisecond, p.Delay(n))
	}
}

func TestPolicy_ShouldRetry(t *testing.T) {
	p := Policy{MaxAttempts: 3}

	assert.True(t, p.ShouldRetry(1))
	assert.True(t, p.ShouldRetry(2))
	assert.False(t, p.ShouldRetry(3))
}

func TestPolicy_Normalize_ZeroValue(t *testing.T) {
	p := Policy{}.Normalize()

	assert.Equal(t, 1, p.MaxAttempts)
	assert.Equal(t, float64(1), p.Multiplier)
	assert.False(t, Policy{}.ShouldRetry(1))
}
