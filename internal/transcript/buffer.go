// Package transcript buffers meeting chatter and flushes it to the store in batches.
package transcript

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/dyluth/docket/pkg/docket"
)

// Appender is the slice of docket.Store the buffer writes to.
type Appender interface {
	AppendTranscript(ctx context.Context, ref string, entries ...docket.TranscriptEntry) error
}

// Buffer collects transcript lines per ref. Record is cheap and safe from the driver loop;
// a background goroutine started by Run writes batches out.
type Buffer struct {
	store    Appender
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	pending   map[string][]docket.TranscriptEntry
	onFailure func(error)
}

// NewBuffer creates a buffer that flushes every interval (default 10s).
func NewBuffer(store Appender, interval time.Duration) *Buffer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Buffer{
		store:    store,
		interval: interval,
		now:      time.Now,
		pending:  make(map[string][]docket.TranscriptEntry),
	}
}

// Record queues one line under ref.
func (b *Buffer) Record(ref, nick, line string) {
	entry := docket.TranscriptEntry{AtMs: b.now().UnixMilli(), Nick: nick, Line: line}
	b.mu.Lock()
	b.pending[ref] = append(b.pending[ref], entry)
	b.mu.Unlock()
}

// OnFailure registers f to be told when periodic flushing starts failing. It is called
// once per outage, not on every retry, and from the Run goroutine.
func (b *Buffer) OnFailure(f func(error)) {
	b.mu.Lock()
	b.onFailure = f
	b.mu.Unlock()
}

// Pending returns how many lines are waiting to be written.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, entries := range b.pending {
		n += len(entries)
	}
	return n
}

// Run flushes periodically until ctx is cancelled, then flushes once more.
func (b *Buffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := b.Flush(shutdownCtx); err != nil {
				log.Printf("[Transcript] Final flush failed: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			err := b.Flush(ctx)
			if err == nil {
				if failing {
					log.Printf("[Transcript] Flushing recovered")
				}
				failing = false
				continue
			}
			log.Printf("[Transcript] Flush failed: %v", err)
			if !failing {
				failing = true
				b.mu.Lock()
				notify := b.onFailure
				b.mu.Unlock()
				if notify != nil {
					notify(err)
				}
			}
		}
	}
}

// Flush writes everything pending. Refs that fail to write are kept for the next attempt
// and the first error is returned.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.pending
	b.pending = make(map[string][]docket.TranscriptEntry)
	b.mu.Unlock()

	refs := make([]string, 0, len(batch))
	for ref := range batch {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	var firstErr error
	for _, ref := range refs {
		entries := batch[ref]
		if err := b.store.AppendTranscript(ctx, ref, entries...); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			b.requeue(ref, entries)
		}
	}
	return firstErr
}

// requeue puts failed entries back ahead of anything recorded since.
func (b *Buffer) requeue(ref string, entries []docket.TranscriptEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[ref] = append(entries, b.pending[ref]...)
}
