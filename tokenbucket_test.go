package sandwich

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketRunsWithinCapacity(t *testing.T) {
	t.Parallel()

	bucket := NewTokenBucket("test", 2, 0, time.Hour)
	defer bucket.Close()

	var ran atomic.Int32

	var wg sync.WaitGroup
	wg.Add(2)

	bucket.Submit(func() { ran.Add(1); wg.Done() }, false)
	bucket.Submit(func() { ran.Add(1); wg.Done() }, false)

	wg.Wait()

	assert.Equal(t, int32(2), ran.Load())
	assert.Equal(t, 0, bucket.QueueLength())
}

func TestTokenBucketQueuesBeyondCapacity(t *testing.T) {
	t.Parallel()

	bucket := NewTokenBucket("test", 1, 0, time.Hour)
	defer bucket.Close()

	var wg sync.WaitGroup
	wg.Add(1)

	bucket.Submit(func() { wg.Done() }, false)
	wg.Wait()

	bucket.Submit(func() {}, false)

	assert.Equal(t, 1, bucket.QueueLength())
}

func TestTokenBucketReservedCapacityOnlyForPriority(t *testing.T) {
	t.Parallel()

	// capacity 5, 2 reserved: non-priority may only use 3 of the 5 before
	// queueing, priority may still spend one of the reserved slots.
	bucket := NewTokenBucket("test", 5, 2, time.Hour)
	defer bucket.Close()

	var wg sync.WaitGroup
	wg.Add(3)

	for i := 0; i < 3; i++ {
		bucket.Submit(func() { wg.Done() }, false)
	}

	wg.Wait()

	// The non-priority limit (capacity - reserved = 3) is now exhausted:
	// a fourth non-priority submission must queue rather than run.
	bucket.Submit(func() {}, false)
	assert.Equal(t, 1, bucket.QueueLength())

	// A priority submission may still spend a reserved slot even though
	// the non-priority budget for this window is spent.
	var priorityRan atomic.Bool

	var priorityWg sync.WaitGroup
	priorityWg.Add(1)

	bucket.Submit(func() { priorityRan.Store(true); priorityWg.Done() }, true)
	priorityWg.Wait()

	assert.True(t, priorityRan.Load())
}

func TestTokenBucketDispatchesStrictlyInOrder(t *testing.T) {
	t.Parallel()

	// A large window so every submission is admitted immediately; the
	// single worker must still run them in submission order, never two
	// at once.
	bucket := NewTokenBucket("test", 100, 0, time.Hour)
	defer bucket.Close()

	var mu sync.Mutex

	var order []int

	var inFlight atomic.Int32

	var overlapped atomic.Bool

	var wg sync.WaitGroup
	wg.Add(10)

	for i := 0; i < 10; i++ {
		i := i

		bucket.Submit(func() {
			if inFlight.Add(1) > 1 {
				overlapped.Store(true)
			}

			mu.Lock()
			order = append(order, i)
			mu.Unlock()

			inFlight.Add(-1)
			wg.Done()
		}, false)
	}

	wg.Wait()

	assert.False(t, overlapped.Load())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestTokenBucketResetsUsedInWindowOnATimer(t *testing.T) {
	t.Parallel()

	// capacity 2 with a short real refillInterval: one submission every
	// window, well under the rate limit, must still run immediately each
	// time. If usedInWindow only ever reset when the queue backed up, it
	// would accumulate across windows instead and eventually force a
	// submission to queue and wait out a full refillInterval even though
	// this sender never approaches the real rate limit.
	bucket := NewTokenBucket("test", 2, 0, 20*time.Millisecond)
	defer bucket.Close()

	for i := 0; i < 6; i++ {
		start := time.Now()

		var wg sync.WaitGroup
		wg.Add(1)

		bucket.Submit(func() { wg.Done() }, false)
		wg.Wait()

		assert.Less(t, time.Since(start), 10*time.Millisecond, "submission %d should run immediately, not wait out a refill", i)

		time.Sleep(30 * time.Millisecond)
	}
}

func TestTokenBucketOnWaitFiresWhenSaturated(t *testing.T) {
	t.Parallel()

	bucket := NewTokenBucket("test", 1, 0, time.Hour)
	defer bucket.Close()

	var waits atomic.Int32
	bucket.OnWait(func() { waits.Add(1) })

	var wg sync.WaitGroup
	wg.Add(1)

	block := make(chan struct{})

	bucket.Submit(func() {
		wg.Done()
		<-block
	}, false)
	wg.Wait()

	bucket.Submit(func() {}, false)

	assert.Equal(t, int32(1), waits.Load())

	close(block)
}

func TestTokenBucketCloseDropsQueue(t *testing.T) {
	t.Parallel()

	bucket := NewTokenBucket("test", 1, 0, time.Hour)

	var wg sync.WaitGroup
	wg.Add(1)

	block := make(chan struct{})

	bucket.Submit(func() {
		wg.Done()
		<-block
	}, false)
	wg.Wait()

	bucket.Submit(func() {}, false)
	assert.Equal(t, 1, bucket.QueueLength())

	bucket.Close()
	close(block)

	assert.Equal(t, 0, bucket.QueueLength())

	var ran atomic.Bool
	bucket.Submit(func() { ran.Store(true) }, false)

	assert.False(t, ran.Load())
}
