package services

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
)

// ExportStore abstracts persistence operations required by ExportService.
// Test records themselves come through TestService.QueryTests; the store is
// only consulted for the study columns merged into each row.
type ExportStore interface {
	ListStudies() ([]*Study, error)
	GetStudy(id string) (*Study, error)
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ExportService struct {
	store ExportStore
	tests *TestService
}

func NewExportService(store ExportStore, tests *TestService) *ExportService {
	return &ExportService{store: store, tests: tests}
}

// StudiesCSV renders the full study registry, creation order.
func (s *ExportService) StudiesCSV() (*ExportResult, error) {
	studies, err := s.store.ListStudies()
	if err != nil {
		return nil, NewUnavailableError(err.Error())
	}
	b, err := ExportStudiesCSV(studies)
	if err != nil {
		return nil, err
	}
	return &ExportResult{Filename: "studies.csv", ContentType: "text/csv; charset=utf-8", Data: b}, nil
}

// SingleTestCSV renders all stored tests of one type, flattened to that
// type's fixed column schema. When participantID is set, only tests whose
// study belongs to that participant are included. A result with no matching
// tests is a header-only CSV, not an error.
func (s *ExportService) SingleTestCSV(tt TestType, participantID string) (*ExportResult, error) {
	if _, err := ParseTestType(string(tt)); err != nil {
		return nil, err
	}
	b, err := s.renderSingleTestCSV(tt, participantID)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		Filename:    string(tt) + ".csv",
		ContentType: "text/csv; charset=utf-8",
		Data:        b,
	}, nil
}

func (s *ExportService) renderSingleTestCSV(tt TestType, participantID string) ([]byte, error) {
	tests, err := s.tests.QueryTests(participantID, &tt)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write(TestCSVHeader(tt))

	studies := map[string]*Study{}
	for _, t := range tests {
		study, ok := studies[t.StudyID]
		if !ok {
			study, err = s.store.GetStudy(t.StudyID)
			if err != nil {
				return nil, NewUnavailableError(err.Error())
			}
			studies[t.StudyID] = study
		}
		if study == nil {
			// Orphaned test; the registry never deletes studies, so this
			// only happens when stores are swapped out underneath the data.
			continue
		}
		rows, err := FlattenTest(t, study)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// AllTestsZip packs one CSV per test type into a single archive. Types with
// zero matching tests still get a header-only CSV so the archive layout is
// predictable for analysis scripts.
func (s *ExportService) AllTestsZip(participantID string) (*ExportResult, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, tt := range AllTestTypes {
		b, err := s.renderSingleTestCSV(tt, participantID)
		if err != nil {
			return nil, err
		}
		f, err := zw.Create(string(tt) + ".csv")
		if err != nil {
			return nil, fmt.Errorf("create zip entry for %s: %w", tt, err)
		}
		if _, err := f.Write(b); err != nil {
			return nil, fmt.Errorf("write zip entry for %s: %w", tt, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return &ExportResult{
		Filename:    "all-tests.zip",
		ContentType: "application/zip",
		Data:        buf.Bytes(),
	}, nil
}
