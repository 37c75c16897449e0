package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock_StartsAtDefaultDate(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, DefaultDate, clock.Date())
	assert.Equal(t, 12, clock.Now().Hour())
}

func TestDeterministicClock_SetDate(t *testing.T) {
	clock := NewDeterministicClock()
	clock.SetDate("2025-02-28")
	assert.Equal(t, "2025-02-28", clock.Date())

	assert.Panics(t, func() { clock.SetDate("28/02/2025") })
}

func TestDeterministicClock_AdvanceCrossesDay(t *testing.T) {
	clock := NewDeterministicClock()
	clock.Advance(11 * time.Hour)
	assert.Equal(t, "2024-01-01", clock.Date())

	clock.Advance(2 * time.Hour)
	assert.Equal(t, "2024-01-02", clock.Date())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				clock.Advance(time.Second)
				_ = clock.Now()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 12*time.Hour+1000*time.Second, clock.Now().Sub(clock.Now().Truncate(24*time.Hour)))
}
