package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	mu       sync.Mutex
	schedule map[string]string
	err      error
}

func (f *fakeSource) Schedule() (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]string, len(f.schedule))
	for k, v := range f.schedule {
		out[k] = v
	}
	return out, nil
}

type fakeDialer struct {
	mu     sync.Mutex
	dialed []string
	err    error
}

func (f *fakeDialer) Place(ctx context.Context, number string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialed = append(f.dialed, number)
	if f.err != nil {
		return "", f.err
	}
	return "CA-new", nil
}

func (f *fakeDialer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dialed)
}

func fixedNumber(string) string { return "+33612345678" }

func TestScan_DialsDueEntryOnce(t *testing.T) {
	past := time.Now().Add(-time.Minute).Format("2006-01-02T15:04:05")
	source := &fakeSource{schedule: map[string]string{"CA1": past}}
	dialer := &fakeDialer{}
	s := New(source, dialer, fixedNumber, time.Minute)

	s.scan(context.Background())
	s.scan(context.Background())
	s.scan(context.Background())

	if got := dialer.count(); got != 1 {
		t.Fatalf("due entry must be dialed once, got %d dials", got)
	}
	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	if dialer.dialed[0] != "+33612345678" {
		t.Fatalf("unexpected number dialed: %q", dialer.dialed[0])
	}
}

func TestScan_SkipsFutureEntries(t *testing.T) {
	future := time.Now().Add(time.Hour).Format("2006-01-02T15:04:05")
	source := &fakeSource{schedule: map[string]string{"CA1": future}}
	dialer := &fakeDialer{}
	s := New(source, dialer, fixedNumber, time.Minute)

	s.scan(context.Background())
	if got := dialer.count(); got != 0 {
		t.Fatalf("future entry must not be dialed, got %d dials", got)
	}
}

func TestScan_SkipsMalformedTimestamps(t *testing.T) {
	source := &fakeSource{schedule: map[string]string{"CA1": "next tuesday"}}
	dialer := &fakeDialer{}
	s := New(source, dialer, fixedNumber, time.Minute)

	s.scan(context.Background())
	if got := dialer.count(); got != 0 {
		t.Fatalf("malformed entry must not be dialed, got %d dials", got)
	}
}

func TestScan_SkipsEntriesWithoutNumber(t *testing.T) {
	past := time.Now().Add(-time.Minute).Format("2006-01-02T15:04:05")
	source := &fakeSource{schedule: map[string]string{"CA1": past}}
	dialer := &fakeDialer{}
	s := New(source, dialer, func(string) string { return "" }, time.Minute)

	s.scan(context.Background())
	if got := dialer.count(); got != 0 {
		t.Fatalf("entry without number must not be dialed, got %d dials", got)
	}
}

func TestScan_UpdatedAppointmentIsDialedAgain(t *testing.T) {
	first := time.Now().Add(-time.Hour).Format("2006-01-02T15:04:05")
	source := &fakeSource{schedule: map[string]string{"CA1": first}}
	dialer := &fakeDialer{}
	s := New(source, dialer, fixedNumber, time.Minute)

	s.scan(context.Background())

	// A fresh follow-up time for the same call is a new entry.
	second := time.Now().Add(-time.Minute).Format("2006-01-02T15:04:05")
	source.mu.Lock()
	source.schedule["CA1"] = second
	source.mu.Unlock()

	s.scan(context.Background())
	if got := dialer.count(); got != 2 {
		t.Fatalf("expected 2 dials for 2 distinct appointments, got %d", got)
	}
}

func TestScan_SourceErrorIsTolerated(t *testing.T) {
	source := &fakeSource{err: errors.New("disk gone")}
	dialer := &fakeDialer{}
	s := New(source, dialer, fixedNumber, time.Minute)
	s.scan(context.Background())
	if got := dialer.count(); got != 0 {
		t.Fatalf("expected no dials on source error, got %d", got)
	}
}

func TestParseAppointment(t *testing.T) {
	if _, err := parseAppointment("2026-09-01T10:00:00"); err != nil {
		t.Fatalf("zoneless timestamp: %v", err)
	}
	if _, err := parseAppointment("2026-09-01T10:00:00+02:00"); err != nil {
		t.Fatalf("zoned timestamp: %v", err)
	}
	if _, err := parseAppointment("tomorrow"); err == nil {
		t.Fatal("expected error for free-text timestamp")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s := New(&fakeSource{}, &fakeDialer{}, fixedNumber, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
