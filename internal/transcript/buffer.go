// Package transcript accumulates recognized speech fragments for one call
// and decides, from silence, when an utterance is complete.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Buffer collects recognized text fragments for a single call. Fragments are
// space-joined; every append refreshes the last-update timestamp. Content and
// timestamp always move together under one mutex.
type Buffer struct {
	mu         sync.Mutex
	text       string
	lastUpdate time.Time
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{lastUpdate: time.Now()}
}

// Append adds a recognized fragment. Blank fragments are dropped without
// touching the timestamp.
func (b *Buffer) Append(fragment string) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return
	}
	b.mu.Lock()
	if b.text != "" {
		b.text += " "
	}
	b.text += fragment
	b.lastUpdate = time.Now()
	b.mu.Unlock()
}

// TakeIfIdle atomically snapshots and clears the buffer when it is non-empty
// and no fragment has arrived for at least threshold. Snapshot and clear are
// one step: a fragment recognized during hand-off lands in the fresh buffer
// and belongs to the next utterance.
func (b *Buffer) TakeIfIdle(threshold time.Duration) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.text == "" || time.Since(b.lastUpdate) <= threshold {
		return "", false
	}
	utterance := b.text
	b.text = ""
	return utterance, true
}

// Peek returns the current buffered text without clearing it.
func (b *Buffer) Peek() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}
