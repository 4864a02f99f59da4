package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chadiek/telecare/internal/redact"
)

// DefaultPlan is the follow-up conversation plan used when no per-patient
// plan is provided. The last step is terminal: the step index never moves
// past it.
var DefaultPlan = []string{
	"Salutation et vérifier l'identité du patient (nom)",
	"Prendre date de RDV pour prochain suivi, avec heure",
	"Se renseigner sur quelque chose de spécifique 1 (s'il mange bien)",
	"Se renseigner sur quelque chose de spécifique 2 (s'il a dormi)",
	"Parler d'un centre d'intérêt du patient 1",
	"Parler d'un centre d'intérêt du patient 2",
	"Au revoir",
}

// Patient identifies the person being called. Its fields seed the per-call
// redaction map.
type Patient struct {
	Name string
	Age  int
}

// Turn is one completed exchange: what the patient said and what was spoken
// back.
type Turn struct {
	Utterance string
	Reply     string
}

// Summary is the structured end-of-call record produced by the summarization
// service. A degraded (zero) Summary is persisted when the service response
// cannot be parsed.
type Summary struct {
	PatientName             string `json:"patient_name,omitempty"`
	Age                     string `json:"age,omitempty"`
	Conditions              string `json:"conditions,omitempty"`
	NextAppointmentDatetime string `json:"next_appointment_datetime,omitempty"`
	ConversationSummary     string `json:"conversation_summary,omitempty"`
	AdditionalNotes         string `json:"additional_notes,omitempty"`
}

// Session holds the per-call conversation state. It is shared by the media
// ingest loop, the turn orchestrator and the status watcher; all mutation
// goes through the session mutex.
type Session struct {
	CallSID string
	Patient Patient
	Redact  *redact.Map

	mu        sync.Mutex
	plan      []string
	stepIndex int
	turns     []Turn
	context   string
	finalized bool
	summary   Summary
	lastTouch time.Time
}

func newSession(callSID string, patient Patient, plan []string) *Session {
	return &Session{
		CallSID:   callSID,
		Patient:   patient,
		Redact:    redact.NewMap(patient.Name, patient.Age),
		plan:      plan,
		lastTouch: time.Now(),
	}
}

// CurrentStep returns the plan step the conversation should address next.
func (s *Session) CurrentStep() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.plan) == 0 {
		return ""
	}
	return s.plan[s.stepIndex]
}

// StepIndex returns the current position in the plan.
func (s *Session) StepIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepIndex
}

// Context returns the running conversational memory fed back to the reply
// service.
func (s *Session) Context() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context
}

// CommitTurn appends a completed exchange to the history, grows the context
// and advances the step index, all under one lock so the step can never move
// out of order relative to the history. The advance is a no-op once the
// index is at the last step.
func (s *Session) CommitTurn(utterance, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Utterance: utterance, Reply: reply})
	s.context += fmt.Sprintf("Question: %s\nRéponse: %s\n", utterance, reply)
	if s.stepIndex < len(s.plan)-1 {
		s.stepIndex++
	}
	s.lastTouch = time.Now()
}

// Turns returns a copy of the turn history in chronological order.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// TranscriptText renders the full conversation for summarization.
func (s *Session) TranscriptText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, t := range s.turns {
		fmt.Fprintf(&b, "Patient: %s\nIA: %s\n", t.Utterance, t.Reply)
	}
	return strings.TrimRight(b.String(), "\n")
}

// BeginFinalize claims the finalized flag. It returns true exactly once per
// session; the caller that wins performs summarization.
func (s *Session) BeginFinalize() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return false
	}
	s.finalized = true
	s.lastTouch = time.Now()
	return true
}

// Finalized reports whether end-of-call processing has been claimed.
func (s *Session) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// AttachSummary records the structured summary on the session.
func (s *Session) AttachSummary(sum Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = sum
}

// Summary returns the attached summary, zero until finalization completes.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Touch refreshes the session's activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastTouch = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouch
}
