// Package agent turns a completed patient utterance into a spoken reply:
// redact, generate, restore, record, play back.
package agent

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/chadiek/telecare/internal/session"
)

// ReplyClient generates the assistant's next utterance. All three fields are
// already redacted when it is invoked.
type ReplyClient interface {
	Reply(ctx context.Context, convContext, step, question string) (string, error)
}

// Speaker plays synthesized text into the live call and loops it back to the
// entry point so the next utterance can be awaited.
type Speaker interface {
	Speak(ctx context.Context, callSID, text string) error
}

// Orchestrator processes one utterance at a time per call. The reply call
// blocks the calling goroutine (the silence detector's), never audio ingest.
type Orchestrator struct {
	llm          ReplyClient
	speaker      Speaker
	replyTimeout time.Duration
}

// New wires an orchestrator. A zero timeout defaults to 20s.
func New(llm ReplyClient, speaker Speaker, replyTimeout time.Duration) *Orchestrator {
	if replyTimeout <= 0 {
		replyTimeout = 20 * time.Second
	}
	return &Orchestrator{llm: llm, speaker: speaker, replyTimeout: replyTimeout}
}

// HandleUtterance runs one turn. Any failure before the history append drops
// the turn entirely: no append, no step advance, no playback. The
// conversation waits for the next utterance.
func (o *Orchestrator) HandleUtterance(ctx context.Context, sess *session.Session, utterance string) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return
	}

	rm := sess.Redact
	redactedContext := rm.Forward(sess.Context())
	redactedStep := rm.Forward(sess.CurrentStep())
	redactedQuestion := rm.Forward(utterance)

	log.Printf("[%s] prompt (anonymized): context=%q step=%q question=%q",
		sess.CallSID, redactedContext, redactedStep, redactedQuestion)

	replyCtx, cancel := context.WithTimeout(ctx, o.replyTimeout)
	reply, err := o.llm.Reply(replyCtx, redactedContext, redactedStep, redactedQuestion)
	cancel()
	if err != nil {
		log.Printf("[%s] reply generation failed, dropping turn: %v", sess.CallSID, err)
		return
	}

	reply = strings.TrimSpace(rm.Restore(reply))
	if reply == "" {
		log.Printf("[%s] empty reply, dropping turn", sess.CallSID)
		return
	}

	sess.CommitTurn(utterance, reply)
	log.Printf("[%s] turn committed, step=%d", sess.CallSID, sess.StepIndex())

	if err := o.speaker.Speak(ctx, sess.CallSID, reply); err != nil {
		log.Printf("[%s] playback failed: %v", sess.CallSID, err)
	}
}
