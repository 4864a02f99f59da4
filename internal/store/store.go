// Package store persists end-of-call records: one summary JSON per call and
// a single whole-file schedule mapping call SIDs to next appointments.
package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/chadiek/telecare/internal/session"
)

// Archiver uploads a persisted record to off-host storage. Optional and
// best-effort: archive failures never fail the local write.
type Archiver interface {
	Upload(key string, data []byte) error
}

// FileStore writes summaries and the schedule under dir. Schedule updates
// are read-modify-write of the whole file, serialized by the store mutex.
type FileStore struct {
	dir          string
	scheduleFile string
	archive      Archiver

	mu sync.Mutex
}

// NewFileStore creates the directory if needed. archive may be nil.
func NewFileStore(dir, scheduleFile string, archive Archiver) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	if scheduleFile == "" {
		scheduleFile = "call_schedule.json"
	}
	return &FileStore{
		dir:          dir,
		scheduleFile: filepath.Join(dir, scheduleFile),
		archive:      archive,
	}, nil
}

// SaveSummary writes conversation_summary_<callSID>.json and archives it
// when an archiver is configured.
func (s *FileStore) SaveSummary(callSID string, sum session.Summary) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	name := fmt.Sprintf("conversation_summary_%s.json", callSID)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	log.Printf("summary saved to %s", path)

	if s.archive != nil {
		if err := s.archive.Upload(name, data); err != nil {
			log.Printf("summary archive upload failed: %v", err)
		}
	}
	return nil
}

// UpsertSchedule sets the next appointment for callSID, rewriting the whole
// schedule file.
func (s *FileStore) UpsertSchedule(callSID, nextAppointment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, err := s.readSchedule()
	if err != nil {
		return err
	}
	schedule[callSID] = nextAppointment

	data, err := json.MarshalIndent(schedule, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}
	if err := os.WriteFile(s.scheduleFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write schedule: %w", err)
	}
	log.Printf("call schedule updated for call %s", callSID)
	return nil
}

// Schedule returns a copy of the schedule map.
func (s *FileStore) Schedule() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSchedule()
}

func (s *FileStore) readSchedule() (map[string]string, error) {
	data, err := os.ReadFile(s.scheduleFile)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule: %w", err)
	}
	schedule := map[string]string{}
	if err := json.Unmarshal(data, &schedule); err != nil {
		return nil, fmt.Errorf("malformed schedule file: %w", err)
	}
	return schedule, nil
}
