package storage

import (
	"sync"

	"github.com/suyaash/batchrec/internal/models"
)

// WorkingSet holds the uploaded files of the active workspace, keyed by file id
// and kept in upload order.
type WorkingSet struct {
	files map[string]*models.UploadedFile
	order []string
	mu    sync.RWMutex
}

func NewWorkingSet() *WorkingSet {
	return &WorkingSet{
		files: make(map[string]*models.UploadedFile),
	}
}

func (s *WorkingSet) Get(id string) (*models.UploadedFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, exists := s.files[id]
	return file, exists
}

// Add stores file. Re-adding an existing id replaces it in place.
func (s *WorkingSet) Add(file *models.UploadedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.files[file.ID]; !exists {
		s.order = append(s.order, file.ID)
	}
	s.files[file.ID] = file
}

// List returns the files in upload order.
func (s *WorkingSet) List() []*models.UploadedFile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.UploadedFile, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.files[id])
	}
	return result
}

// FindByName returns the most recently uploaded file called name.
func (s *WorkingSet) FindByName(name string) (*models.UploadedFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		if f := s.files[s.order[i]]; f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Remove deletes the file and returns it so the caller can release its preview.
func (s *WorkingSet) Remove(id string) (*models.UploadedFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, exists := s.files[id]
	if !exists {
		return nil, false
	}
	delete(s.files, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return file, true
}

func (s *WorkingSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Preview is a displayable copy of an image held until released.
type Preview struct {
	ContentType string
	Data        []byte
}

// PreviewStore hands out preview references for images.
type PreviewStore struct {
	previews map[string]Preview
	mu       sync.RWMutex
}

func NewPreviewStore() *PreviewStore {
	return &PreviewStore{
		previews: make(map[string]Preview),
	}
}

func (s *PreviewStore) Put(id string, p Preview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previews[id] = p
}

func (s *PreviewStore) Get(id string) (Preview, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, exists := s.previews[id]
	return p, exists
}

// Release drops the preview. Releasing an unknown id is a no-op.
func (s *PreviewStore) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.previews, id)
}

func (s *PreviewStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.previews)
}
