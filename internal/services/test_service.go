package services

import "fmt"

// TestStore abstracts persistence operations required by TestService.
type TestStore interface {
	GetStudy(id string) (*Study, error)
	AddTest(t *Test) error
	ListTestsByType(tt TestType) ([]*Test, error)
}

type TestService struct {
	store TestStore
	newID func() string
}

func NewTestService(store TestStore) *TestService {
	return &TestService{store: store, newID: NewTestID}
}

// SubmitTest validates a submission against the study registry and the
// result schema for its test type, then persists it. The record is stored
// and returned with the payload unmodified.
func (s *TestService) SubmitTest(in TestIn) (*Test, error) {
	if in.StudyID == "" {
		return nil, NewInvalidError("study_id required")
	}
	if _, err := ParseTestType(string(in.TestType)); err != nil {
		return nil, err
	}
	if err := ValidateResult(in.TestType, in.Result); err != nil {
		return nil, err
	}

	study, err := s.store.GetStudy(in.StudyID)
	if err != nil {
		return nil, NewUnavailableError(err.Error())
	}
	if study == nil {
		return nil, NewUnknownStudyError(fmt.Sprintf("could not find study with id %s", in.StudyID))
	}

	t := &Test{
		TestID:                  s.newID(),
		StudyID:                 in.StudyID,
		TestType:                in.TestType,
		TimeStarted:             in.TimeStarted.UTC(),
		TimeElapsedMilliseconds: in.TimeElapsedMilliseconds,
		DeviceInfo:              in.DeviceInfo,
		Result:                  in.Result,
	}
	if err := s.store.AddTest(t); err != nil {
		return nil, NewUnavailableError(fmt.Sprintf("unable to insert test: %v", err))
	}
	return t, nil
}

// QueryTests returns stored tests, optionally restricted to one test type
// and/or to tests whose study belongs to participantID (exact match). Both
// filters combine with AND semantics; no filters returns everything.
func (s *TestService) QueryTests(participantID string, testType *TestType) ([]*Test, error) {
	types := AllTestTypes
	if testType != nil {
		if _, err := ParseTestType(string(*testType)); err != nil {
			return nil, err
		}
		types = []TestType{*testType}
	}

	studies := map[string]*Study{}
	out := []*Test{}
	for _, tt := range types {
		tests, err := s.store.ListTestsByType(tt)
		if err != nil {
			return nil, NewUnavailableError(err.Error())
		}
		for _, t := range tests {
			if participantID != "" {
				study, ok := studies[t.StudyID]
				if !ok {
					var err error
					study, err = s.store.GetStudy(t.StudyID)
					if err != nil {
						return nil, NewUnavailableError(err.Error())
					}
					studies[t.StudyID] = study
				}
				if study == nil || study.ParticipantID != participantID {
					continue
				}
			}
			out = append(out, t)
		}
	}
	return out, nil
}
