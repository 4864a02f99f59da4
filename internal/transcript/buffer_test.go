package transcript

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBuffer_AppendJoinsWithSpaces(t *testing.T) {
	b := NewBuffer()
	b.Append("bonjour")
	b.Append("  je vais bien  ")
	b.Append("")
	b.Append("   ")
	if got := b.Peek(); got != "bonjour je vais bien" {
		t.Fatalf("unexpected buffer content: %q", got)
	}
}

func TestBuffer_TakeIfIdle(t *testing.T) {
	b := NewBuffer()

	// Empty buffer never hands off, however long the silence.
	if _, ok := b.TakeIfIdle(0); ok {
		t.Fatal("empty buffer must not hand off")
	}

	b.Append("bonjour")
	if _, ok := b.TakeIfIdle(time.Minute); ok {
		t.Fatal("fresh fragment must not hand off before the threshold")
	}

	time.Sleep(30 * time.Millisecond)
	got, ok := b.TakeIfIdle(10 * time.Millisecond)
	if !ok {
		t.Fatal("expected hand-off after silence")
	}
	if got != "bonjour" {
		t.Fatalf("unexpected utterance: %q", got)
	}

	// The hand-off cleared the buffer: no second trigger.
	if _, ok := b.TakeIfIdle(0); ok {
		t.Fatal("cleared buffer must not hand off again")
	}
	if b.Peek() != "" {
		t.Fatalf("buffer should be empty, got %q", b.Peek())
	}
}

func TestBuffer_FragmentDuringHandOffBelongsToNextUtterance(t *testing.T) {
	b := NewBuffer()
	b.Append("premier")
	time.Sleep(20 * time.Millisecond)

	utterance, ok := b.TakeIfIdle(5 * time.Millisecond)
	if !ok || utterance != "premier" {
		t.Fatalf("expected first utterance, got %q ok=%v", utterance, ok)
	}

	b.Append("deuxième")
	if got := b.Peek(); got != "deuxième" {
		t.Fatalf("fragment after hand-off should start a fresh utterance, got %q", got)
	}
}

func TestDetector_HandsOffCompletedUtterance(t *testing.T) {
	b := NewBuffer()
	var mu sync.Mutex
	var handled []string
	d := NewDetector(b, 5*time.Millisecond, 10*time.Millisecond, func(u string) {
		mu.Lock()
		handled = append(handled, u)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	b.Append("bonjour")
	b.Append("docteur")

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(handled)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 1 {
		t.Fatalf("expected exactly one hand-off, got %d (%v)", len(handled), handled)
	}
	if handled[0] != "bonjour docteur" {
		t.Fatalf("unexpected utterance: %q", handled[0])
	}
}

func TestDetector_DoesNotRetriggerOnSilence(t *testing.T) {
	b := NewBuffer()
	var mu sync.Mutex
	count := 0
	d := NewDetector(b, 5*time.Millisecond, 5*time.Millisecond, func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	b.Append("une seule phrase")
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected one hand-off for one utterance, got %d", count)
	}
}

func TestDetector_ZeroDurationsUseDefaults(t *testing.T) {
	d := NewDetector(NewBuffer(), 0, 0, func(string) {})
	if d.tick != DefaultTick {
		t.Fatalf("expected default tick, got %v", d.tick)
	}
	if d.threshold != DefaultSilenceThreshold {
		t.Fatalf("expected default threshold, got %v", d.threshold)
	}
}
