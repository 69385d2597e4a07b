package api

import (
	"fmt"
	"sync"

	"github.com/sail-lab/intact-server/internal/services"
)

// Store is the persistence surface the server wires at startup. The memory
// implementation below backs development and tests; internal/db provides
// the SQLite and MongoDB implementations.
type Store interface {
	AddStudies(studies []*services.Study) error
	GetStudy(id string) (*services.Study, error)
	ListStudies() ([]*services.Study, error)
	AddTest(t *services.Test) error
	ListTestsByType(tt services.TestType) ([]*services.Test, error)
}

type memoryStore struct {
	mu        sync.RWMutex
	studies   []*services.Study
	studyByID map[string]*services.Study
	tests     []*services.Test
}

func NewMemoryStore() Store {
	return &memoryStore{studyByID: map[string]*services.Study{}}
}

func (s *memoryStore) AddStudies(studies []*services.Study) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// All-or-nothing: reject the whole batch before touching state.
	seen := map[string]bool{}
	for _, st := range studies {
		if _, exists := s.studyByID[st.StudyID]; exists || seen[st.StudyID] {
			return fmt.Errorf("study_id %s already exists", st.StudyID)
		}
		seen[st.StudyID] = true
	}
	for _, st := range studies {
		s.studies = append(s.studies, st)
		s.studyByID[st.StudyID] = st
	}
	return nil
}

func (s *memoryStore) GetStudy(id string) (*services.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.studyByID[id], nil
}

func (s *memoryStore) ListStudies() ([]*services.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*services.Study(nil), s.studies...), nil
}

func (s *memoryStore) AddTest(t *services.Test) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests = append(s.tests, t)
	return nil
}

func (s *memoryStore) ListTestsByType(tt services.TestType) ([]*services.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.Test{}
	for _, t := range s.tests {
		if t.TestType == tt {
			out = append(out, t)
		}
	}
	return out, nil
}
