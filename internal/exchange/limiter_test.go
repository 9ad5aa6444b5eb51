package exchange

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestRateLimiter_ConcurrentCallsAreSerialized exercises S6: two accounts
// calling Wait at effectively the same instant must still be spaced by at
// least the configured interval, not both released together.
func TestRateLimiter_ConcurrentCallsAreSerialized(t *testing.T) {
	limiter := NewRateLimiter(50 * time.Millisecond)

	var mu sync.Mutex
	var done []time.Time
	var wg sync.WaitGroup

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiter.Wait()
			mu.Lock()
			done = append(done, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, done, 2)
	gap := done[1].Sub(done[0])
	if gap < 0 {
		gap = -gap
	}
	assert.GreaterOrEqual(t, gap, 45*time.Millisecond, "second call must not start until the interval has elapsed")
}

func TestRateLimiter_NoWaitOnFirstCall(t *testing.T) {
	limiter := NewRateLimiter(time.Hour)
	start := time.Now()
	limiter.Wait()
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}
