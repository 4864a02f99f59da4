package transcript

import (
	"context"
	"log"
	"time"
)

// Default cadence for end-of-utterance detection. A caller who stops talking
// for longer than DefaultSilenceThreshold has finished their utterance; an
// utterance shorter than the tick may be delayed by up to one tick.
const (
	DefaultTick             = 1 * time.Second
	DefaultSilenceThreshold = 1 * time.Second
)

// Detector periodically inspects a Buffer and hands each completed utterance
// to a single handler. The handler runs on the detector goroutine, so there
// is never more than one in-flight utterance per call: while a turn is being
// processed no further tick can fire a hand-off.
type Detector struct {
	buf       *Buffer
	tick      time.Duration
	threshold time.Duration
	handle    func(utterance string)
}

// NewDetector wires a detector to buf. Zero durations fall back to the
// defaults.
func NewDetector(buf *Buffer, tick, threshold time.Duration, handle func(string)) *Detector {
	if tick <= 0 {
		tick = DefaultTick
	}
	if threshold <= 0 {
		threshold = DefaultSilenceThreshold
	}
	return &Detector{buf: buf, tick: tick, threshold: threshold, handle: handle}
}

// Run ticks until ctx is cancelled. The buffer is cleared before the handler
// is invoked, never after, so fragments recognized during a slow turn are
// kept for the next one.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			utterance, ok := d.buf.TakeIfIdle(d.threshold)
			if !ok {
				continue
			}
			log.Printf("silence detected, utterance complete: %q", utterance)
			d.handle(utterance)
		}
	}
}
