// Package mailbox implements the unbounded FIFO queue that backs process
// mailboxes, process signal queues and the scheduler run queue.
package mailbox

import (
	"errors"
	"iter"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

var (
	// ErrClosed is returned once the mailbox has been closed. No further
	// messages will be delivered.
	ErrClosed = errors.New("mailbox closed")
	// ErrTimeout is returned by [Mailbox.Receive] when nothing matched in time.
	ErrTimeout = errors.New("mailbox receive timed out")
)

// Mailbox stores messages of type [M] in arrival order.
//
// Writers call [Mailbox.Enqueue] from any goroutine. There are two ways to
// read:
//
//  1. [Mailbox.Pop] / [Mailbox.BlockingPop] take the head and are safe for
//     any number of concurrent readers. The scheduler run queue uses these.
//  2. [Mailbox.Receive] is a selective receive with a timeout. It assumes a
//     single reader, which is what a process mailbox has.
type Mailbox[M any] struct {
	msgQ   []M
	mx     sync.Mutex
	done   chan struct{}
	notify chan struct{}
	closed bool
	cond   *sync.Cond
}

func New[M any]() *Mailbox[M] {
	mb := &Mailbox[M]{
		msgQ:   make([]M, 0, 10),
		done:   make(chan struct{}),
		notify: make(chan struct{}, 1),
	}
	mb.cond = sync.NewCond(&mb.mx)
	return mb
}

// Enqueue appends msg to the tail. It returns false if the mailbox is closed,
// in which case the message was not stored.
func (mb *Mailbox[M]) Enqueue(msg M) bool {
	mb.mx.Lock()
	defer mb.mx.Unlock()

	if mb.closed {
		return false
	}

	mb.msgQ = append(mb.msgQ, msg)
	mb.cond.Broadcast()

	select {
	case mb.notify <- struct{}{}:
	default:
	}

	return true
}

// get and remove a value from the mailbox. This is safe to call from multiple go routines.
// if there was no item returned, [ok] returns false
// if the mailbox is closed and will never return a value, [closed] will be not nil
func (mb *Mailbox[M]) Pop() (item M, ok bool, closed error) {
	mb.mx.Lock()
	defer mb.mx.Unlock()

	if mb.closed {
		return item, false, ErrClosed
	}
	if len(mb.msgQ) == 0 {
		return item, false, nil
	}

	return mb.removeAt(0), true, nil
}

// Similar to [Pop], but this call will block until it has a value to retrieve.
// This is safe to call from multiple go routines, but keep in mind that [item] may
// be empty in that case, so always ensure that you actually got a value by checking [ok].
//
// If the mailbox is closed, [closed] will be non-nil and the caller can expect no more
// messages.
func (mb *Mailbox[M]) BlockingPop() (item M, ok bool, closed error) {
	mb.mx.Lock()
	defer mb.mx.Unlock()

	for len(mb.msgQ) == 0 && !mb.closed {
		mb.cond.Wait()
	}

	if mb.closed {
		return item, false, ErrClosed
	}

	return mb.removeAt(0), true, nil
}

// TakeMatch removes and returns the oldest message accepted by match without
// blocking. A nil match accepts anything.
func (mb *Mailbox[M]) TakeMatch(match func(M) bool) (item M, ok bool, closed error) {
	mb.mx.Lock()
	defer mb.mx.Unlock()

	if mb.closed {
		return item, false, ErrClosed
	}
	idx := mb.find(match, 0)
	if idx < 0 {
		return item, false, nil
	}
	return mb.removeAt(idx), true, nil
}

// Receive removes and returns the oldest message accepted by match, waiting
// up to tout for one to arrive. A negative tout waits forever; a zero tout
// only checks what is already queued. Messages that don't match stay in the
// mailbox in their original order.
//
// Receive must only be called from one goroutine at a time. Messages that
// were already rejected are not offered to match again after a wake-up.
func (mb *Mailbox[M]) Receive(match func(M) bool, tout time.Duration) (item M, err error) {
	var expired <-chan time.Time
	if tout >= 0 {
		t := time.NewTimer(tout)
		defer t.Stop()
		expired = t.C
	}

	scanned := 0
	for {
		mb.mx.Lock()
		if mb.closed {
			mb.mx.Unlock()
			return item, ErrClosed
		}
		if idx := mb.find(match, scanned); idx >= 0 {
			item = mb.removeAt(idx)
			mb.mx.Unlock()
			return item, nil
		}
		scanned = len(mb.msgQ)
		mb.mx.Unlock()

		select {
		case <-mb.notify:
		case <-mb.done:
		case <-expired:
			return item, ErrTimeout
		}
	}
}

// this is an Iterator function that can be used with a range loop. The
// iterator ends when the mailbox is closed.
func (mb *Mailbox[M]) Iter() iter.Seq[M] {
	return func(yield func(M) bool) {
		for {
			item, _, closed := mb.BlockingPop()
			if closed != nil {
				return
			}
			if !yield(item) {
				return
			}
		}
	}
}

// Return the number of items in the Mailbox
func (mb *Mailbox[M]) Size() int {
	mb.mx.Lock()
	defer mb.mx.Unlock()

	return len(mb.msgQ)
}

// Drain closes the mailbox and returns whatever was still queued.
func (mb *Mailbox[M]) Drain() []M {
	mb.mx.Lock()
	defer mb.mx.Unlock()

	rest := mb.msgQ
	mb.msgQ = nil
	mb.closeLocked()

	return rest
}

// closes all iterators and waiters associated with this mailbox, and prevents
// any messages from being queued/dequeued. [BlockingPop] and [Receive] also return.
func (mb *Mailbox[M]) Close() {
	mb.mx.Lock()
	defer mb.mx.Unlock()
	mb.closeLocked()
}

func (mb *Mailbox[M]) closeLocked() {
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.done)
	mb.cond.Broadcast()
}

// must hold mx
func (mb *Mailbox[M]) find(match func(M) bool, from int) int {
	if from >= len(mb.msgQ) {
		return -1
	}
	if match == nil {
		return from
	}
	for idx := from; idx < len(mb.msgQ); idx++ {
		if match(mb.msgQ[idx]) {
			return idx
		}
	}
	return -1
}

// must hold mx
func (mb *Mailbox[M]) removeAt(idx int) M {
	item := mb.msgQ[idx]
	if idx == 0 {
		var zero M
		mb.msgQ[0] = zero
		mb.msgQ = mb.msgQ[1:]
		return item
	}
	mb.msgQ = slices.Delete(mb.msgQ, idx, idx+1)
	return item
}
