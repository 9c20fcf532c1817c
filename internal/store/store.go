// Package store holds the editable working copy of the selected file's records.
package store

import (
	"sync"
	"time"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/models"
)

// Edit is the single field currently being edited.
type Edit struct {
	Section models.SectionName `json:"section"`
	Key     string             `json:"key"`
	Pending string             `json:"pending"`
}

// DataStore owns a deep copy of one record set. Edits never reach the
// pipeline's cached value.
type DataStore struct {
	mu      sync.Mutex
	records *models.RecordSet
	edit    *Edit
	now     func() time.Time
}

func New() *DataStore {
	return &DataStore{now: time.Now}
}

// Load replaces the working copy with a copy of rs and leaves edit mode.
func (s *DataStore) Load(rs *models.RecordSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = rs.Clone()
	s.edit = nil
}

// Clear drops the working copy.
func (s *DataStore) Clear() {
	s.Load(nil)
}

// Records returns a copy of the working copy, or nil when nothing is loaded.
func (s *DataStore) Records() *models.RecordSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.Clone()
}

func (s *DataStore) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records != nil
}

// ActiveEdit returns the edit in progress, if any.
func (s *DataStore) ActiveEdit() (Edit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.edit == nil {
		return Edit{}, false
	}
	return *s.edit, true
}

// BeginEdit enters edit mode for one field and returns its current value as
// text. A pending edit on another field is discarded.
func (s *DataStore) BeginEdit(section models.SectionName, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec := s.records.Section(section)
	if sec == nil {
		return "", apperr.Validation("section %q is not present", section)
	}
	v, ok := sec[key]
	if !ok {
		return "", apperr.Validation("field %q not found in %s", key, section)
	}
	current := models.FormatValue(v)
	s.edit = &Edit{Section: section, Key: key, Pending: current}
	return current, nil
}

// SetPending updates the value shown in the active edit.
func (s *DataStore) SetPending(value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.edit == nil {
		return apperr.Validation("no field is being edited")
	}
	s.edit.Pending = value
	return nil
}

// CommitEdit writes value into the active field and leaves edit mode. The
// field holds a string afterwards, whatever its type before.
func (s *DataStore) CommitEdit(value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.edit == nil {
		return apperr.Validation("no field is being edited")
	}
	s.records.Section(s.edit.Section)[s.edit.Key] = value
	s.edit = nil
	return nil
}

// CancelEdit leaves edit mode without touching the working copy.
func (s *DataStore) CancelEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edit = nil
}

// Serialize returns the present sections and a fresh UTC timestamp.
func (s *DataStore) Serialize() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := models.Snapshot{Timestamp: s.now().UTC().Format(time.RFC3339)}
	if s.records != nil {
		snap.Metadata = s.records.Metadata.Clone()
		snap.MixingStep = s.records.MixingStep.Clone()
		snap.PHAdjustment = s.records.PHAdjustment.Clone()
	}
	return snap
}
