package history

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/MimeLyc/live-caption-history/pkg/log"
)

const writeTimeout = 10 * time.Second

type pendingWrite struct {
	key    string
	record Record
}

// writer persists records with at most one write in flight. Records submitted
// while a write is running replace each other in a single pending slot, so only
// the newest snapshot is written next.
type writer struct {
	store    Store
	onResult func(err error, entries int)

	mu      sync.Mutex
	pending *pendingWrite
	idle    chan struct{}
	isIdle  bool
	closed  bool

	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}
}

func newWriter(store Store, onResult func(err error, entries int)) *writer {
	idleCh := make(chan struct{})
	close(idleCh)

	w := &writer{
		store:    store,
		onResult: onResult,
		idle:     idleCh,
		isIdle:   true,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) submit(key string, rec Record) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		log.Warn("History writer closed, dropping snapshot of %d entries", len(rec.History))
		return
	}
	if w.pending != nil {
		log.Debug("Coalescing pending history write (%d -> %d entries)", len(w.pending.record.History), len(rec.History))
	}
	w.pending = &pendingWrite{key: key, record: rec}
	if w.isIdle {
		w.idle = make(chan struct{})
		w.isIdle = false
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// flush blocks until nothing is pending or in flight.
func (w *writer) flush(ctx context.Context) error {
	w.mu.Lock()
	idleCh := w.idle
	w.mu.Unlock()

	select {
	case <-idleCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close drains the pending slot and stops the writer goroutine.
func (w *writer) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	close(w.quit)
	<-w.stopped
}

func (w *writer) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.quit:
			w.drain()
			return
		}
	}
}

func (w *writer) drain() {
	for {
		w.mu.Lock()
		next := w.pending
		w.pending = nil
		if next == nil {
			if !w.isIdle {
				close(w.idle)
				w.isIdle = true
			}
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()

		err := w.write(next)
		if w.onResult != nil {
			w.onResult(err, len(next.record.History))
		}
	}
}

func (w *writer) write(p *pendingWrite) error {
	if w.store == nil {
		return nil
	}
	payload, err := json.Marshal(p.record)
	if err != nil {
		return WrapError(err, ErrEncode, "encode history record").WithContext("key", p.key)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := w.store.Set(ctx, p.key, payload); err != nil {
		return WrapError(err, ErrStorageWrite, "write history record").WithContext("key", p.key)
	}
	return nil
}
