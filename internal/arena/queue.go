package arena

import (
	"fmt"
	"sync"
)

// queueEntry is one waiting task.
type queueEntry struct {
	task   TaskID
	domain string
}

// taskQueue is a bounded FIFO partitioned by domain.
//
// TryDequeue hands out the oldest entry whose domain is not claimed and
// claims that domain until Done is called. A domain is therefore processed
// by one worker at a time, in submission order, while different domains
// proceed in parallel.
//
// A dequeued entry stays held until its worker Takes it. A held entry is
// still Queued and can be withdrawn by Remove.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in worker loops.
type taskQueue struct {
	mu      sync.Mutex
	entries []queueEntry
	claimed map[string]bool
	held    map[TaskID]queueEntry
	bound   int
	closed  bool
	signal  chan struct{} // Signals entry availability (buffered, size 1)
}

// newTaskQueue creates an empty queue holding at most bound entries.
func newTaskQueue(bound int) *taskQueue {
	return &taskQueue{
		entries: make([]queueEntry, 0, 64),
		claimed: make(map[string]bool),
		held:    make(map[TaskID]queueEntry),
		bound:   bound,
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds an entry to the back of the queue.
// Returns ErrCodeQueueClosed or ErrCodeQueueOverflow without enqueuing.
func (q *taskQueue) Enqueue(e queueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.admitLocked(e); err != nil {
		return err
	}

	q.entries = append(q.entries, e)
	q.notifyLocked()
	return nil
}

// Admit reports whether Enqueue(e) would currently succeed.
func (q *taskQueue) Admit(e queueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.admitLocked(e)
}

func (q *taskQueue) admitLocked(e queueEntry) error {
	if q.closed {
		return &Error{Code: ErrCodeQueueClosed, Domain: e.domain, TaskID: e.task, Reason: "arena is shutting down"}
	}
	if q.bound > 0 && len(q.entries) >= q.bound {
		return &Error{
			Code:   ErrCodeQueueOverflow,
			Domain: e.domain,
			TaskID: e.task,
			Reason: fmt.Sprintf("queue is full (%d tasks)", q.bound),
		}
	}
	return nil
}

// force appends e ignoring the bound. Used on restore, where every
// persisted queued task must come back.
func (q *taskQueue) force(e queueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
	q.notifyLocked()
}

// notifyLocked signals availability (non-blocking; the buffer of 1
// coalesces signals). Caller holds q.mu.
func (q *taskQueue) notifyLocked() {
	if q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryDequeue removes the oldest entry whose domain is unclaimed and claims
// the domain. Returns false if no such entry exists.
func (q *taskQueue) TryDequeue() (queueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if q.claimed[e.domain] {
			continue
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		q.claimed[e.domain] = true
		q.held[e.task] = e

		// Another worker may be able to take a different domain.
		if len(q.entries) > 0 {
			q.notifyLocked()
		}
		return e, true
	}
	return queueEntry{}, false
}

// Requeue puts e back at the front of the queue and releases its domain.
// Since the domain was claimed, no later entry of the domain has been
// handed out, so per-domain order is preserved. An entry withdrawn while
// held is dropped.
func (q *taskQueue) Requeue(e queueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.claimed, e.domain)
	if _, ok := q.held[e.task]; !ok {
		if len(q.entries) > 0 {
			q.notifyLocked()
		}
		return
	}
	delete(q.held, e.task)
	q.entries = append([]queueEntry{e}, q.entries...)
	q.notifyLocked()
}

// Take hands a held entry over to its worker. It returns false if the
// entry was withdrawn by Remove while the worker waited for the domain.
func (q *taskQueue) Take(task TaskID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.held[task]; !ok {
		return false
	}
	delete(q.held, task)
	return true
}

// Done releases a domain claimed by TryDequeue.
func (q *taskQueue) Done(domain string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.claimed, domain)
	if len(q.entries) > 0 {
		q.notifyLocked()
	}
}

// Remove deletes the entry for task if commit succeeds. The entry may be
// waiting or held by a worker that has not taken it yet. commit runs with
// the queue locked, so the entry cannot be dequeued or taken while it runs.
// Returns false if task is neither waiting nor held.
func (q *taskQueue) Remove(task TaskID, commit func() error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.held[task]; ok {
		if commit != nil {
			if err := commit(); err != nil {
				return true, err
			}
		}
		delete(q.held, task)
		return true, nil
	}

	for i, e := range q.entries {
		if e.task != task {
			continue
		}
		if commit != nil {
			if err := commit(); err != nil {
				return true, err
			}
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		return true, nil
	}
	return false, nil
}

// Wait returns a channel that signals when entries may be available.
// The channel is closed when the queue is closed.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of waiting entries.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Closed reports whether Close was called.
func (q *taskQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops new submissions. Waiting entries can still be dequeued.
// Wakes any blocked waiters by closing the signal channel.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
