package services

import (
	"fmt"
	"strings"
)

// maxStudiesPerBatch caps one create call; larger requests are almost
// always a malformed upload rather than a real cohort.
const maxStudiesPerBatch = 1000

// StudyStore abstracts persistence operations required by StudyService.
type StudyStore interface {
	AddStudies(studies []*Study) error
	GetStudy(id string) (*Study, error)
	ListStudies() ([]*Study, error)
}

type StudyService struct {
	store     StudyStore
	urlPrefix string
	newID     func() (string, error)
}

func NewStudyService(store StudyStore, urlPrefix string) *StudyService {
	return &StudyService{
		store:     store,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		newID:     NewStudyID,
	}
}

// ParseParticipantIDs splits raw on newlines, trims whitespace and drops
// blank lines. Pasted text and uploaded file content go through the same
// path.
func ParseParticipantIDs(raw string) []string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

// CreateStudies generates baselines+followups fresh studies per participant
// and persists them as one batch. It returns exactly the studies created by
// this call, in participant order.
//
// Calling it twice for the same participants creates additional studies; it
// is intentionally not idempotent.
func (s *StudyService) CreateStudies(participantIDs []string, baselines, followups int) ([]*Study, error) {
	if baselines < 0 || followups < 0 {
		return nil, NewInvalidError("baselines_per_participant and followups_per_participant must be nonnegative")
	}
	if baselines == 0 && followups == 0 {
		return nil, NewInvalidError("at least one of baselines_per_participant and followups_per_participant must be nonzero")
	}

	pids := make([]string, 0, len(participantIDs))
	for _, pid := range participantIDs {
		pid = strings.TrimSpace(pid)
		if pid == "" {
			continue
		}
		if !isAlphanumeric(pid) {
			return nil, NewInvalidError(fmt.Sprintf("non-alphanumeric participant ID %q is not allowed", pid))
		}
		pids = append(pids, pid)
	}
	if len(pids) == 0 {
		return nil, NewInvalidError("received empty participant list")
	}

	total := len(pids) * (baselines + followups)
	if total > maxStudiesPerBatch {
		return nil, NewInvalidError(fmt.Sprintf("too many studies requested (%d, maximum %d per batch)", total, maxStudiesPerBatch))
	}

	ids, err := s.newStudyIDs(total)
	if err != nil {
		return nil, err
	}

	studies := make([]*Study, 0, total)
	next := func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	for _, pid := range pids {
		for i := 0; i < baselines; i++ {
			studies = append(studies, s.newStudy(next(), pid, StudyBaseline))
		}
		for i := 0; i < followups; i++ {
			studies = append(studies, s.newStudy(next(), pid, StudyFollowup))
		}
	}

	if err := s.store.AddStudies(studies); err != nil {
		return nil, NewUnavailableError(fmt.Sprintf("unable to complete study generation: %v", err))
	}
	return studies, nil
}

func (s *StudyService) newStudy(id, participantID string, st StudyType) *Study {
	return &Study{
		StudyID:       id,
		ParticipantID: participantID,
		URL:           s.urlPrefix + "/" + id,
		StudyType:     st,
	}
}

// newStudyIDs generates n study IDs unique within the batch and against the
// store. Batch creation means a freshly generated ID is not visible in the
// store yet, so in-batch duplicates have to be tracked here.
func (s *StudyService) newStudyIDs(n int) ([]string, error) {
	ids := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for len(ids) < n {
		id, err := s.newID()
		if err != nil {
			return nil, NewUnavailableError(err.Error())
		}
		if !cleanStudyID(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		existing, err := s.store.GetStudy(id)
		if err != nil {
			return nil, NewUnavailableError(err.Error())
		}
		if existing != nil {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetStudy resolves a study_id, for link validation by the front-end and
// for gatekeeping test submissions.
func (s *StudyService) GetStudy(id string) (*Study, error) {
	st, err := s.store.GetStudy(id)
	if err != nil {
		return nil, NewUnavailableError(err.Error())
	}
	if st == nil {
		return nil, NewNotFoundError(fmt.Sprintf("study_id %s does not exist", id))
	}
	return st, nil
}

// ListStudies returns every study in creation order.
func (s *StudyService) ListStudies() ([]*Study, error) {
	studies, err := s.store.ListStudies()
	if err != nil {
		return nil, NewUnavailableError(err.Error())
	}
	return studies, nil
}
