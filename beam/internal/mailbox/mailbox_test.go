package mailbox_test

import (
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/uberbrodt/beamgo/beam/internal/mailbox"
	"github.com/uberbrodt/beamgo/chronos"
)

func TestPop_ReturnsValue(t *testing.T) {
	mb := mailbox.New[int]()

	mb.Enqueue(12)

	result, ok, _ := mb.Pop()

	assert.Assert(t, ok)

	assert.Equal(t, result, 12)
}

func TestPop_RemovesItemFromMailbox(t *testing.T) {
	mb := mailbox.New[int]()

	mb.Enqueue(12)
	mb.Enqueue(37)

	result, ok, _ := mb.Pop()

	assert.Assert(t, ok)

	assert.Equal(t, result, 12)

	assert.Equal(t, mb.Size(), 1)
}

func TestPop_ReturnsNothing(t *testing.T) {
	mb := mailbox.New[int]()

	result, ok, _ := mb.Pop()

	assert.Assert(t, !ok)

	assert.Equal(t, result, 0)
}

func TestSize_ReturnsNumberOfItems(t *testing.T) {
	mb := mailbox.New[int]()

	mb.Enqueue(12)
	mb.Enqueue(37)
	mb.Enqueue(92)

	result := mb.Size()

	assert.Equal(t, result, 3)
}

func TestEnqueue_FailsWhenClosed(t *testing.T) {
	mb := mailbox.New[int]()
	mb.Close()

	assert.Assert(t, !mb.Enqueue(1))
	_, _, err := mb.Pop()
	assert.ErrorIs(t, err, mailbox.ErrClosed)
}

func TestBlockingPop_WakesOnEnqueue(t *testing.T) {
	mb := mailbox.New[string]()
	got := make(chan string, 1)

	go func() {
		v, ok, _ := mb.BlockingPop()
		if ok {
			got <- v
		}
	}()

	time.Sleep(chronos.Millis(10))
	mb.Enqueue("hello")

	select {
	case v := <-got:
		assert.Equal(t, v, "hello")
	case <-time.After(chronos.Dur("1s")):
		t.Fatal("BlockingPop never returned")
	}
}

func TestBlockingPop_ReturnsOnClose(t *testing.T) {
	mb := mailbox.New[int]()
	errs := make(chan error, 1)

	go func() {
		_, _, err := mb.BlockingPop()
		errs <- err
	}()

	time.Sleep(chronos.Millis(10))
	mb.Close()

	assert.ErrorIs(t, <-errs, mailbox.ErrClosed)
}

func TestBlockingPop_ManyConsumersEachGetOneItem(t *testing.T) {
	mb := mailbox.New[int]()
	const n = 100

	var wg sync.WaitGroup
	var mx sync.Mutex
	seen := make(map[int]int)

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := range mb.Iter() {
				mx.Lock()
				seen[v]++
				done := len(seen) == n
				mx.Unlock()
				if done {
					mb.Close()
				}
			}
		}()
	}

	for i := range n {
		mb.Enqueue(i)
	}
	wg.Wait()

	assert.Equal(t, len(seen), n)
	for v, count := range seen {
		assert.Equal(t, count, 1, "item %d delivered %d times", v, count)
	}
}

func TestReceive_SkipsNonMatchingAndKeepsOrder(t *testing.T) {
	mb := mailbox.New[int]()
	for _, v := range []int{1, 2, 3, 4, 5} {
		mb.Enqueue(v)
	}

	even := func(v int) bool { return v%2 == 0 }

	v, err := mb.Receive(even, 0)
	assert.NilError(t, err)
	assert.Equal(t, v, 2)

	v, err = mb.Receive(even, 0)
	assert.NilError(t, err)
	assert.Equal(t, v, 4)

	rest := mb.Drain()
	assert.DeepEqual(t, rest, []int{1, 3, 5})
}

func TestReceive_ZeroTimeoutWithNoMatch(t *testing.T) {
	mb := mailbox.New[int]()
	mb.Enqueue(1)

	_, err := mb.Receive(func(v int) bool { return v == 99 }, 0)
	assert.ErrorIs(t, err, mailbox.ErrTimeout)
	assert.Equal(t, mb.Size(), 1)
}

func TestReceive_TimesOut(t *testing.T) {
	mb := mailbox.New[int]()

	start := time.Now()
	_, err := mb.Receive(nil, chronos.Millis(50))

	assert.ErrorIs(t, err, mailbox.ErrTimeout)
	assert.Assert(t, time.Since(start) >= chronos.Millis(50))
}

func TestReceive_WakesOnLateMatch(t *testing.T) {
	mb := mailbox.New[int]()

	go func() {
		mb.Enqueue(1)
		time.Sleep(chronos.Millis(10))
		mb.Enqueue(7)
	}()

	v, err := mb.Receive(func(v int) bool { return v == 7 }, chronos.Dur("1s"))
	assert.NilError(t, err)
	assert.Equal(t, v, 7)
	assert.Equal(t, mb.Size(), 1)
}

func TestReceive_DoesNotRescanRejectedMessages(t *testing.T) {
	mb := mailbox.New[int]()
	mb.Enqueue(1)

	var mx sync.Mutex
	calls := make(map[int]int)
	match := func(v int) bool {
		mx.Lock()
		defer mx.Unlock()
		calls[v]++
		return v == 3
	}

	go func() {
		time.Sleep(chronos.Millis(10))
		mb.Enqueue(2)
		time.Sleep(chronos.Millis(10))
		mb.Enqueue(3)
	}()

	v, err := mb.Receive(match, chronos.Dur("1s"))
	assert.NilError(t, err)
	assert.Equal(t, v, 3)

	mx.Lock()
	defer mx.Unlock()
	assert.Equal(t, calls[1], 1)
	assert.Equal(t, calls[2], 1)
}

func TestReceive_ReturnsOnClose(t *testing.T) {
	mb := mailbox.New[int]()

	go func() {
		time.Sleep(chronos.Millis(10))
		mb.Close()
	}()

	_, err := mb.Receive(nil, -1)
	assert.ErrorIs(t, err, mailbox.ErrClosed)
}

func TestTakeMatch(t *testing.T) {
	mb := mailbox.New[string]()
	mb.Enqueue("a")
	mb.Enqueue("b")

	v, ok, err := mb.TakeMatch(func(s string) bool { return s == "b" })
	assert.NilError(t, err)
	assert.Assert(t, ok)
	assert.Equal(t, v, "b")

	_, ok, err = mb.TakeMatch(func(s string) bool { return s == "z" })
	assert.NilError(t, err)
	assert.Assert(t, !ok)
}
