package session

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCommitTurn_AdvancesAndCapsAtLastStep(t *testing.T) {
	plan := []string{"step one", "step two", "step three"}
	s := newSession("CA1", Patient{Name: "Paul", Age: 75}, plan)

	if got := s.CurrentStep(); got != "step one" {
		t.Fatalf("expected first step, got %q", got)
	}

	s.CommitTurn("bonjour", "bonjour Paul")
	if got := s.StepIndex(); got != 1 {
		t.Fatalf("expected step 1 after one turn, got %d", got)
	}
	s.CommitTurn("oui", "bien")
	if got := s.StepIndex(); got != 2 {
		t.Fatalf("expected step 2, got %d", got)
	}

	// Further turns never move past the last step.
	s.CommitTurn("encore", "au revoir")
	s.CommitTurn("encore", "au revoir")
	if got := s.StepIndex(); got != 2 {
		t.Fatalf("expected step capped at 2, got %d", got)
	}
	if got := s.CurrentStep(); got != "step three" {
		t.Fatalf("expected last step, got %q", got)
	}
	if got := len(s.Turns()); got != 4 {
		t.Fatalf("expected 4 recorded turns, got %d", got)
	}
}

func TestCommitTurn_BuildsContext(t *testing.T) {
	s := newSession("CA1", Patient{}, DefaultPlan)
	s.CommitTurn("oui je vais bien", "Très bien")

	want := "Question: oui je vais bien\nRéponse: Très bien\n"
	if got := s.Context(); got != want {
		t.Fatalf("context mismatch:\ngot  %q\nwant %q", got, want)
	}

	s.CommitTurn("lundi", "Parfait")
	if got := s.Context(); !strings.HasPrefix(got, want) || !strings.Contains(got, "Question: lundi") {
		t.Fatalf("context did not accumulate: %q", got)
	}
}

func TestTranscriptText(t *testing.T) {
	s := newSession("CA1", Patient{}, DefaultPlan)
	if got := s.TranscriptText(); got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}
	s.CommitTurn("bonjour", "bonjour, comment allez-vous ?")
	s.CommitTurn("bien", "parfait")

	want := "Patient: bonjour\nIA: bonjour, comment allez-vous ?\nPatient: bien\nIA: parfait"
	if got := s.TranscriptText(); got != want {
		t.Fatalf("transcript mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestBeginFinalize_ClaimsExactlyOnce(t *testing.T) {
	s := newSession("CA1", Patient{}, DefaultPlan)
	if s.Finalized() {
		t.Fatal("new session must not be finalized")
	}

	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.BeginFinalize() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one finalize claim, got %d", wins)
	}
	if !s.Finalized() {
		t.Fatal("session should report finalized")
	}
	if s.BeginFinalize() {
		t.Fatal("finalize claimed twice")
	}
}

func TestAttachSummary(t *testing.T) {
	s := newSession("CA1", Patient{}, DefaultPlan)
	if got := s.Summary(); got != (Summary{}) {
		t.Fatalf("expected zero summary before attach, got %+v", got)
	}
	sum := Summary{PatientName: "Paul", NextAppointmentDatetime: "2026-09-01T10:00:00"}
	s.AttachSummary(sum)
	if got := s.Summary(); got != sum {
		t.Fatalf("summary mismatch: got %+v", got)
	}
}

func TestRegistry_GetOrCreateIsIdempotent(t *testing.T) {
	r := NewRegistry(DefaultPlan)
	s1, created := r.GetOrCreate("CA1", Patient{Name: "Paul"})
	if !created {
		t.Fatal("first GetOrCreate should create")
	}
	s2, created := r.GetOrCreate("CA1", Patient{Name: "Jean"})
	if created {
		t.Fatal("second GetOrCreate must not create")
	}
	if s1 != s2 {
		t.Fatal("expected the same session instance")
	}
	if s2.Patient.Name != "Paul" {
		t.Fatalf("patient identity must come from the first registration, got %q", s2.Patient.Name)
	}
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	r := NewRegistry(DefaultPlan)
	const goroutines = 32
	sessions := make([]*Session, goroutines)
	var createdCount int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, created := r.GetOrCreate("CA1", Patient{})
			sessions[i] = s
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if createdCount != 1 {
		t.Fatalf("expected exactly one creation, got %d", createdCount)
	}
	for i := 1; i < goroutines; i++ {
		if sessions[i] != sessions[0] {
			t.Fatal("concurrent callers observed different sessions")
		}
	}
	if r.Len() != 1 {
		t.Fatalf("expected registry length 1, got %d", r.Len())
	}
}

func TestRegistry_SweepEvictsFinalizedAndIdle(t *testing.T) {
	r := NewRegistry(DefaultPlan)
	for i := 0; i < 3; i++ {
		r.GetOrCreate(fmt.Sprintf("CA%d", i), Patient{})
	}
	done, _ := r.Get("CA0")
	done.BeginFinalize()

	if n := r.Sweep(time.Hour); n != 1 {
		t.Fatalf("expected 1 eviction (finalized), got %d", n)
	}
	if _, ok := r.Get("CA0"); ok {
		t.Fatal("finalized session should be evicted")
	}

	// The rest were touched just now, so a generous idle window keeps them.
	if n := r.Sweep(time.Hour); n != 0 {
		t.Fatalf("expected no evictions, got %d", n)
	}
	time.Sleep(10 * time.Millisecond)
	if n := r.Sweep(time.Millisecond); n != 2 {
		t.Fatalf("expected 2 idle evictions, got %d", n)
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}
