package services

import (
	"encoding/json"
	"testing"
	"time"
)

type stubTestStore struct {
	studies map[string]*Study
	tests   []*Test
}

func newStubTestStore() *stubTestStore {
	return &stubTestStore{studies: map[string]*Study{}}
}

func (s *stubTestStore) GetStudy(id string) (*Study, error) {
	return s.studies[id], nil
}

func (s *stubTestStore) AddTest(t *Test) error {
	s.tests = append(s.tests, t)
	return nil
}

func (s *stubTestStore) ListTestsByType(tt TestType) ([]*Test, error) {
	out := []*Test{}
	for _, t := range s.tests {
		if t.TestType == tt {
			out = append(out, t)
		}
	}
	return out, nil
}

func validDelayedRecall() json.RawMessage {
	return json.RawMessage(`{"dr_rt": 4200, "dr_score": 3}`)
}

func submitIn(studyID string, tt TestType, result json.RawMessage) TestIn {
	return TestIn{
		StudyID:                 studyID,
		TestType:                tt,
		TimeStarted:             time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		TimeElapsedMilliseconds: 90000,
		DeviceInfo:              "Mozilla/5.0",
		Result:                  result,
	}
}

func TestSubmitTestStoresRecord(t *testing.T) {
	store := newStubTestStore()
	store.studies["abcd"] = &Study{StudyID: "abcd", ParticipantID: "p1", StudyType: StudyBaseline}
	svc := NewTestService(store)

	got, err := svc.SubmitTest(submitIn("abcd", TestDelayedRecall, validDelayedRecall()))
	if err != nil {
		t.Fatalf("SubmitTest returned error: %v", err)
	}
	if got.TestID == "" {
		t.Fatalf("expected server-assigned test_id")
	}
	if string(got.Result) != string(validDelayedRecall()) {
		t.Fatalf("payload was modified: %s", got.Result)
	}
	if len(store.tests) != 1 {
		t.Fatalf("expected 1 stored test, got %d", len(store.tests))
	}
}

func TestSubmitTestUnknownStudy(t *testing.T) {
	store := newStubTestStore()
	svc := NewTestService(store)

	_, err := svc.SubmitTest(submitIn("nonexistent", TestDelayedRecall, validDelayedRecall()))
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorUnknownStudy {
		t.Fatalf("expected unknown_study, got %v", err)
	}
	if len(store.tests) != 0 {
		t.Fatalf("record persisted despite unknown study")
	}
}

func TestSubmitTestPayloadValidation(t *testing.T) {
	store := newStubTestStore()
	store.studies["abcd"] = &Study{StudyID: "abcd", ParticipantID: "p1"}
	svc := NewTestService(store)

	cases := []struct {
		name   string
		tt     TestType
		result string
	}{
		{"bad test_type", TestType("recall"), `{"dr_rt": 1, "dr_score": 3}`},
		{"missing field", TestDelayedRecall, `{"dr_rt": 1}`},
		{"extra field", TestDelayedRecall, `{"dr_rt": 1, "dr_score": 3, "dr_notes": "x"}`},
		{"score out of range", TestDelayedRecall, `{"dr_rt": 1, "dr_score": 6}`},
		{"wrong field type", TestDelayedRecall, `{"dr_rt": "fast", "dr_score": 3}`},
		{"single where list expected", TestSpatialMemory, `{"sm_rt": 1, "sm_correct": true}`},
		{"list where single expected", TestImmediateRecall, `[{"ir_rt_first": 1, "ir_score": 2}]`},
		{"ir_score out of range", TestImmediateRecall, `{"ir_rt_first": 1, "ir_score": 3}`},
		{"bad crt_response", TestChoiceReactionTime, `[{"crt_rt": 1, "crt_correct": true, "crt_response": "up", "crt_dwell": 10}]`},
		{"bad dsm_response", TestDigitSymbolMatching, `[{"dsm_rt": 1, "dsm_correct": true, "dsm_response": 4}]`},
		{"spatial memory over cap", TestSpatialMemory, `[{"sm_rt":1,"sm_correct":true},{"sm_rt":1,"sm_correct":true},{"sm_rt":1,"sm_correct":true},{"sm_rt":1,"sm_correct":true},{"sm_rt":1,"sm_correct":true},{"sm_rt":1,"sm_correct":true}]`},
		{"missing result", TestDelayedRecall, ``},
	}
	for _, tc := range cases {
		_, err := svc.SubmitTest(submitIn("abcd", tc.tt, json.RawMessage(tc.result)))
		se, ok := AsServiceError(err)
		if !ok || se.Code != ErrorInvalid {
			t.Fatalf("%s: expected invalid error, got %v", tc.name, err)
		}
	}
	if len(store.tests) != 0 {
		t.Fatalf("invalid payloads were persisted")
	}
}

func TestSubmitTestAcceptsEveryType(t *testing.T) {
	store := newStubTestStore()
	store.studies["abcd"] = &Study{StudyID: "abcd", ParticipantID: "p1"}
	svc := NewTestService(store)

	payloads := map[TestType]string{
		TestImmediateRecall:        `{"ir_rt_first": 3100, "ir_rt_second": 2700, "ir_score": 1}`,
		TestDelayedRecall:          `{"dr_rt": 5000, "dr_score": 5}`,
		TestChoiceReactionTime:     `[{"crt_rt": 310, "crt_correct": true, "crt_response": "left", "crt_dwell": 95}]`,
		TestVisualPairedAssociates: `[{"vpa_rt": 2200, "vpa_correct": false, "vpa_response": "cat.png"}]`,
		TestDigitSymbolMatching:    `[{"dsm_rt": 800, "dsm_correct": true, "dsm_response": 2}]`,
		TestSpatialMemory:          `[{"sm_rt": 1800, "sm_correct": true}]`,
	}
	for tt, payload := range payloads {
		if _, err := svc.SubmitTest(submitIn("abcd", tt, json.RawMessage(payload))); err != nil {
			t.Fatalf("%s: SubmitTest returned error: %v", tt, err)
		}
	}
	if len(store.tests) != len(payloads) {
		t.Fatalf("expected %d stored tests, got %d", len(payloads), len(store.tests))
	}
}

func TestQueryTestsFilters(t *testing.T) {
	store := newStubTestStore()
	store.studies["s1"] = &Study{StudyID: "s1", ParticipantID: "alice"}
	store.studies["s2"] = &Study{StudyID: "s2", ParticipantID: "bob"}
	svc := NewTestService(store)

	mustSubmit := func(studyID string, tt TestType, payload string) {
		t.Helper()
		if _, err := svc.SubmitTest(submitIn(studyID, tt, json.RawMessage(payload))); err != nil {
			t.Fatalf("submit %s/%s: %v", studyID, tt, err)
		}
	}
	mustSubmit("s1", TestDelayedRecall, `{"dr_rt": 1, "dr_score": 2}`)
	mustSubmit("s1", TestSpatialMemory, `[{"sm_rt": 1, "sm_correct": true}]`)
	mustSubmit("s2", TestDelayedRecall, `{"dr_rt": 2, "dr_score": 4}`)

	all, err := svc.QueryTests("", nil)
	if err != nil {
		t.Fatalf("QueryTests all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tests, got %d", len(all))
	}

	dr := TestDelayedRecall
	byType, err := svc.QueryTests("", &dr)
	if err != nil {
		t.Fatalf("QueryTests by type: %v", err)
	}
	if len(byType) != 2 {
		t.Fatalf("expected 2 delayed_recall tests, got %d", len(byType))
	}

	byParticipant, err := svc.QueryTests("alice", nil)
	if err != nil {
		t.Fatalf("QueryTests by participant: %v", err)
	}
	if len(byParticipant) != 2 {
		t.Fatalf("expected 2 tests for alice, got %d", len(byParticipant))
	}

	both, err := svc.QueryTests("alice", &dr)
	if err != nil {
		t.Fatalf("QueryTests combined: %v", err)
	}
	if len(both) != 1 || both[0].StudyID != "s1" {
		t.Fatalf("combined filter returned %+v", both)
	}

	// Participant without studies: empty result, not an error.
	none, err := svc.QueryTests("nobody", nil)
	if err != nil {
		t.Fatalf("QueryTests unknown participant: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty result, got %d", len(none))
	}

	// Filtering is case-sensitive.
	upper, err := svc.QueryTests("Alice", nil)
	if err != nil {
		t.Fatalf("QueryTests case-sensitive: %v", err)
	}
	if len(upper) != 0 {
		t.Fatalf("participant filter should be case-sensitive, got %d rows", len(upper))
	}
}
