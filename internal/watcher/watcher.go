// Package watcher polls the telephony provider for call completion and
// finalizes each session exactly once.
package watcher

import (
	"context"
	"log"
	"time"

	"github.com/chadiek/telecare/internal/session"
)

// StatusFetcher reports the provider's view of a call.
type StatusFetcher interface {
	Status(ctx context.Context, callSID string) (string, error)
}

// Summarizer produces the structured end-of-call summary.
type Summarizer interface {
	Summarize(ctx context.Context, conversation string) (session.Summary, error)
}

// Store persists summaries and the call schedule.
type Store interface {
	SaveSummary(callSID string, sum session.Summary) error
	UpsertSchedule(callSID, nextAppointment string) error
}

// Watcher runs one polling loop per call. It is independent of the media
// stream: completion may be observed after the stream has closed, so the
// loop keeps running until it finalizes or exhausts its wait budget.
type Watcher struct {
	status     StatusFetcher
	summarizer Summarizer
	store      Store
	interval   time.Duration
	maxWait    time.Duration
}

// New wires a watcher. Zero durations fall back to 5s polling with a 1000s
// budget.
func New(status StatusFetcher, summarizer Summarizer, store Store, interval, maxWait time.Duration) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 1000 * time.Second
	}
	return &Watcher{status: status, summarizer: summarizer, store: store, interval: interval, maxWait: maxWait}
}

// Watch starts the polling loop for one call in the background.
func (w *Watcher) Watch(sess *session.Session) {
	go w.run(context.Background(), sess)
}

func (w *Watcher) run(ctx context.Context, sess *session.Session) {
	deadline := time.Now().Add(w.maxWait)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			log.Printf("[%s] max wait reached, no summary produced", sess.CallSID)
			return
		}

		status, err := w.status.Status(ctx, sess.CallSID)
		if err != nil {
			log.Printf("[%s] status check failed: %v", sess.CallSID, err)
			continue
		}
		log.Printf("[%s] call status: %s", sess.CallSID, status)
		if status != "completed" {
			continue
		}

		w.finalize(ctx, sess)
		return
	}
}

// finalize claims the session's finalized flag and, if it wins the claim,
// produces and persists the summary. Polling may observe "completed" more
// than once; the flag makes the whole step fire at most once.
func (w *Watcher) finalize(ctx context.Context, sess *session.Session) {
	if !sess.BeginFinalize() {
		log.Printf("[%s] already finalized", sess.CallSID)
		return
	}

	conversation := sess.TranscriptText()
	if conversation == "" {
		log.Printf("[%s] no conversation recorded, skipping summary", sess.CallSID)
		return
	}

	sum, err := w.summarizer.Summarize(ctx, conversation)
	if err != nil {
		log.Printf("[%s] summarization failed, persisting empty summary: %v", sess.CallSID, err)
		sum = session.Summary{}
	}
	sess.AttachSummary(sum)

	if err := w.store.SaveSummary(sess.CallSID, sum); err != nil {
		log.Printf("[%s] failed to persist summary: %v", sess.CallSID, err)
	}
	if sum.NextAppointmentDatetime != "" {
		if err := w.store.UpsertSchedule(sess.CallSID, sum.NextAppointmentDatetime); err != nil {
			log.Printf("[%s] failed to update call schedule: %v", sess.CallSID, err)
		}
	} else {
		log.Printf("[%s] no next_appointment_datetime in summary", sess.CallSID)
	}
	log.Printf("[%s] session finalized", sess.CallSID)
}
