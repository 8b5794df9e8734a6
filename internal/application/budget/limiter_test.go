package budget

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

func TestAcquire_ReserveBlocks(t *testing.T) {
	l := New(Config{MonthlyBudget: 52, EmergencyReserve: 50})

	require.NoError(t, l.Acquire("nba"))
	require.NoError(t, l.Acquire("nhl"))
	assert.Equal(t, 50, l.Remaining())

	err := l.Acquire("epl")
	assert.ErrorIs(t, err, domain.ErrBudgetExhausted)
	assert.Equal(t, ModeCacheOnly, l.Mode())
	assert.Equal(t, 2, l.Used())
}

func TestAcquire_MinIntervalPerClass(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(Config{EmergencyReserve: 50, MinInterval: 5 * time.Minute})
	l.now = func() time.Time { return clock }

	require.NoError(t, l.Acquire("nba"))
	require.NoError(t, l.Acquire("nhl"), "classes are independent")

	clock = clock.Add(time.Minute)
	assert.ErrorIs(t, l.Acquire("nba"), ErrMinInterval)

	clock = clock.Add(4*time.Minute + time.Second)
	assert.NoError(t, l.Acquire("nba"))
}

func TestRecord_UpdatesFromSource(t *testing.T) {
	l := New(Config{MonthlyBudget: 500, EmergencyReserve: 50})
	assert.Equal(t, ModeNormal, l.Mode())

	l.Record(-1)
	assert.Equal(t, 500, l.Remaining(), "missing header is ignored")

	l.Record(49)
	assert.Equal(t, ModeCacheOnly, l.Mode())
	assert.ErrorIs(t, l.Acquire("nba"), domain.ErrBudgetExhausted)

	l.Record(120)
	assert.Equal(t, ModeNormal, l.Mode())
	assert.NoError(t, l.Acquire("nba"))
}

func TestRefund(t *testing.T) {
	l := New(Config{MonthlyBudget: 100, EmergencyReserve: 10})
	require.NoError(t, l.Acquire("nba"))
	l.Refund()
	assert.Equal(t, 100, l.Remaining())
	assert.Equal(t, 0, l.Used())
}

func TestAcquire_UnknownRemaining(t *testing.T) {
	l := New(Config{EmergencyReserve: 50})
	assert.Equal(t, -1, l.Remaining())
	assert.NoError(t, l.Acquire("nba"))
	assert.Equal(t, ModeNormal, l.Mode())
}

func TestAcquire_ConcurrentNeverOverspends(t *testing.T) {
	l := New(Config{MonthlyBudget: 53, EmergencyReserve: 50})

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if l.Acquire(fmt.Sprintf("class-%d", i)) == nil {
				ok.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(3), ok.Load())
	assert.Equal(t, 50, l.Remaining())
}
