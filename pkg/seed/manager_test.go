package seed

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock は呼ばれるたびに 1ms ずつ進む時計なのだ。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newFakeClock(ms int64) *fakeClock {
	return &fakeClock{now: time.UnixMilli(ms)}
}

func TestManager_LockedReturnsSameValue(t *testing.T) {
	m := New(WithClock(newFakeClock(1_700_000_001_234).Now))
	events := 0
	m.Subscribe(func(Event) { events++ })

	m.SetLocked(true)
	first := m.CurrentOrNewSeed()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, m.CurrentOrNewSeed())
	}
	assert.Zero(t, events, "ロック中は通知しないのだ")
	assert.True(t, m.IsLocked())
}

func TestManager_UnlockedGeneratesAndNotifies(t *testing.T) {
	clock := newFakeClock(1_700_000_009_990)
	m := New(WithClock(clock.Now))

	var got []Event
	m.Subscribe(func(e Event) { got = append(got, e) })

	values := make([]uint32, 20)
	for i := range values {
		values[i] = m.CurrentOrNewSeed()
		assert.Less(t, values[i], uint32(Modulus))
	}

	require.Len(t, got, len(values), "呼び出しごとにちょうど1回通知するのだ")
	for i, e := range got {
		assert.Equal(t, values[i], e.Seed)
	}
	// 時計が 9999 を跨いで 0 側に戻ること
	assert.Contains(t, values, uint32(0))
}

func TestManager_SetLockedDoesNotRegenerate(t *testing.T) {
	m := New(WithInitial(4242))
	events := 0
	m.Subscribe(func(Event) { events++ })

	m.SetLocked(true)
	m.SetLocked(false)

	assert.Equal(t, uint32(4242), m.Current())
	assert.Zero(t, events)
}

func TestManager_LazyInit(t *testing.T) {
	m := New(WithClock(func() time.Time { return time.UnixMilli(123_456_789) }))
	assert.Equal(t, uint32(6789), m.Current())
}

func TestManager_Unsubscribe(t *testing.T) {
	m := New()
	events := 0
	unsubscribe := m.Subscribe(func(Event) { events++ })

	m.CurrentOrNewSeed()
	unsubscribe()
	unsubscribe()
	m.CurrentOrNewSeed()

	assert.Equal(t, 1, events)
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := New()
	var mu sync.Mutex
	events := 0
	m.Subscribe(func(Event) {
		mu.Lock()
		events++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%10 == 0 {
				m.SetLocked(i%20 == 0)
			}
			assert.Less(t, m.CurrentOrNewSeed(), uint32(Modulus))
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, events, 50)
}
