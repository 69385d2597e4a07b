package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sail-lab/intact-server/internal/services"
)

// SQLiteStore is the durable store used by single-node deployments. The
// unique index on studies.study_id backs up the generator-level collision
// check.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS studies (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    study_id       TEXT NOT NULL UNIQUE,
    participant_id TEXT NOT NULL,
    url            TEXT NOT NULL,
    study_type     TEXT NOT NULL,
    created_at     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tests (
    id                        INTEGER PRIMARY KEY AUTOINCREMENT,
    test_id                   TEXT NOT NULL UNIQUE,
    study_id                  TEXT NOT NULL REFERENCES studies(study_id),
    test_type                 TEXT NOT NULL,
    time_started              TEXT NOT NULL,
    time_elapsed_milliseconds INTEGER NOT NULL,
    device_info               TEXT NOT NULL DEFAULT '',
    result                    TEXT NOT NULL,
    created_at                TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tests_test_type ON tests(test_type);
`

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) logErr(prefix string, err error) {
	if err != nil {
		log.Printf("sqlite store: %s: %v", prefix, err)
	}
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// AddStudies inserts a batch inside one transaction; a unique-index hit on
// any row rolls back the whole batch.
func (s *SQLiteStore) AddStudies(studies []*services.Study) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO studies (study_id, participant_id, url, study_type, created_at)
      VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			s.logErr("AddStudies: stmt.Close", cerr)
		}
	}()
	created := nowRFC3339()
	for _, st := range studies {
		if _, err := stmt.Exec(st.StudyID, st.ParticipantID, st.URL, string(st.StudyType), created); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert study %s: %w", st.StudyID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetStudy(id string) (*services.Study, error) {
	row := s.db.QueryRow(`SELECT study_id, participant_id, url, study_type FROM studies WHERE study_id = ?`, id)
	var st services.Study
	var studyType string
	if err := row.Scan(&st.StudyID, &st.ParticipantID, &st.URL, &studyType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	st.StudyType = services.StudyType(studyType)
	return &st, nil
}

func (s *SQLiteStore) ListStudies() ([]*services.Study, error) {
	rows, err := s.db.Query(`SELECT study_id, participant_id, url, study_type FROM studies ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("ListStudies: rows.Close", cerr)
		}
	}()
	out := []*services.Study{}
	for rows.Next() {
		var st services.Study
		var studyType string
		if err := rows.Scan(&st.StudyID, &st.ParticipantID, &st.URL, &studyType); err != nil {
			return nil, err
		}
		st.StudyType = services.StudyType(studyType)
		out = append(out, &st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddTest(t *services.Test) error {
	_, err := s.db.Exec(`INSERT INTO tests
      (test_id, study_id, test_type, time_started, time_elapsed_milliseconds, device_info, result, created_at)
      VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TestID, t.StudyID, string(t.TestType),
		t.TimeStarted.UTC().Format(time.RFC3339Nano),
		t.TimeElapsedMilliseconds, t.DeviceInfo, string(t.Result), nowRFC3339())
	if err != nil {
		return fmt.Errorf("insert test %s: %w", t.TestID, err)
	}
	return nil
}

func (s *SQLiteStore) ListTestsByType(tt services.TestType) ([]*services.Test, error) {
	rows, err := s.db.Query(`SELECT test_id, study_id, test_type, time_started, time_elapsed_milliseconds, device_info, result
      FROM tests WHERE test_type = ? ORDER BY id ASC`, string(tt))
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("ListTestsByType: rows.Close", cerr)
		}
	}()
	out := []*services.Test{}
	for rows.Next() {
		var t services.Test
		var testType, started, result string
		if err := rows.Scan(&t.TestID, &t.StudyID, &testType, &started, &t.TimeElapsedMilliseconds, &t.DeviceInfo, &result); err != nil {
			return nil, err
		}
		t.TestType = services.TestType(testType)
		if ts, perr := time.Parse(time.RFC3339Nano, started); perr == nil {
			t.TimeStarted = ts
		} else {
			s.logErr("ListTestsByType: parse time_started", perr)
		}
		t.Result = json.RawMessage(result)
		out = append(out, &t)
	}
	return out, rows.Err()
}
