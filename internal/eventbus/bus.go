// Package eventbus implements the Event Stream of spec.md §3/§9: a
// totally ordered, single-consumer sequence of workflow events. The
// source models it as an async iterator; Go's equivalent is a channel
// closed on the terminal event, which is exactly what spec.md §9's
// design note prescribes ("represent as an output channel closed on
// terminal event ... do not fan out events to multiple subscribers").
package eventbus

import (
	"crypto/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event is the wire shape of one emitted record. Payload carries the
// kind-specific fields (step path, index, message, etc.) as a loose
// map so the Executor is not forced to maintain one struct per event
// kind; kind-specific readers validate field presence themselves. ID is
// a ULID: monotonic within a Bus and sortable across runs, usable as an
// external correlation key (e.g. a NATS message ID) independent of the
// in-process Seq counter.
type Event struct {
	Seq      uint64
	ID       string
	Type     string
	StepPath string
	Payload  map[string]any
}

// monotonicEntropy serializes ULID generation so Seq order and ID order
// never disagree even when Emit is somehow called concurrently.
var monotonicEntropy = struct {
	sync.Mutex
	source *ulid.MonotonicEntropy
}{source: ulid.Monotonic(rand.Reader, 0)}

func newULID() string {
	monotonicEntropy.Lock()
	defer monotonicEntropy.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), monotonicEntropy.source).String()
}

// Bus is a single-consumer, in-process event stream. A run owns exactly
// one Bus; the Executor is the only producer, though a parallel loop's
// iterations emit from their own goroutines.
type Bus struct {
	mu  sync.Mutex
	seq uint64
	out chan Event
}

// New creates a Bus with the given channel buffer size. A buffer of 0
// makes Emit block until the consumer reads, which is fine for tests
// driving the executor synchronously.
func New(buffer int) *Bus {
	return &Bus{out: make(chan Event, buffer)}
}

// Events returns the read side of the stream. Callers must drain it
// until it closes to avoid blocking the producer.
func (b *Bus) Events() <-chan Event { return b.out }

// Emit assigns the next sequence number and publishes ev. It is safe to
// call from several goroutines: the lock is held from sequence
// assignment through delivery, so the consumer always sees Seq in
// increasing order.
func (b *Bus) Emit(eventType, stepPath string, payload map[string]any) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev := Event{
		Seq:      atomic.AddUint64(&b.seq, 1),
		ID:       newULID(),
		Type:     eventType,
		StepPath: stepPath,
		Payload:  payload,
	}
	b.out <- ev
	return ev
}

// Close terminates the stream. Must be called exactly once, after the
// terminal event has been emitted.
func (b *Bus) Close() { close(b.out) }
