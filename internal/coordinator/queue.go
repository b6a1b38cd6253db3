package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkjhawar/NewAvanues-sub007/internal/logging"
	"github.com/mkjhawar/NewAvanues-sub007/internal/store"
)

// Kind tags what a pending write will insert once its parent shows up
type Kind string

const (
	KindInteraction  Kind = "interaction"
	KindStateChange  Kind = "state_change"
	KindRelationship Kind = "relationship"
)

// PendingWrite is one deferred write whose parent row was missing at insert
// time. That is a legitimate race between scrape ordering and dependent-event
// ordering, not an error.
type PendingWrite struct {
	ID           string
	Kind         Kind
	Interaction  *store.Interaction
	StateChange  *store.StateChange
	Relationship *store.Relationship
	EnqueuedAt   time.Time
	Attempts     int
	TTL          time.Duration
}

// apply performs the deferred insert; store helpers re-check the parent and
// return ErrParentMissing when it is still absent.
func (w *PendingWrite) apply(q store.DBTX) error {
	switch w.Kind {
	case KindInteraction:
		return store.AddInteraction(q, w.Interaction)
	case KindStateChange:
		return store.AddStateChange(q, w.StateChange)
	case KindRelationship:
		return store.AddRelationship(q, w.Relationship)
	}
	return fmt.Errorf("unknown pending write kind %q", w.Kind)
}

func (w *PendingWrite) expired(now time.Time) bool {
	return now.Sub(w.EnqueuedAt) > w.TTL
}

// retryQueue is the bounded multi-producer/single-consumer holding area.
// Producers never block; when full, the oldest entry is evicted so sustained
// parent-write failures cannot grow memory without bound.
type retryQueue struct {
	mu      sync.Mutex
	entries []*PendingWrite
	maxSize int

	evicted int64
}

func newRetryQueue(maxSize int) *retryQueue {
	return &retryQueue{maxSize: maxSize}
}

func (q *retryQueue) enqueue(w *PendingWrite) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.EnqueuedAt.IsZero() {
		w.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) >= q.maxSize {
		dropped := q.entries[0]
		q.entries = q.entries[1:]
		q.evicted++
		logging.Warn("coordinator", "retry queue full, evicting oldest entry %s (%s)", dropped.ID, dropped.Kind)
	}
	q.entries = append(q.entries, w)
}

// takeAll removes and returns every queued entry, oldest first
func (q *retryQueue) takeAll() []*PendingWrite {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = nil
	return out
}

func (q *retryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// evictedCount reports how many entries were shed to the size bound over the
// queue's lifetime
func (q *retryQueue) evictedCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}
