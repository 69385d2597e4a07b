package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"
)

var studyCSVHeader = []string{"study_id", "participant_id", "url", "study_type"}

// testCSVBaseHeader holds the test-level columns shared by every test type.
// Each type appends its own result columns, then the study columns, so one
// CSV row is a question joined with its test and study.
var testCSVBaseHeader = []string{"test_id", "test_type", "time_started", "time_elapsed_milliseconds", "device_info"}

var resultCSVColumns = map[TestType][]string{
	TestImmediateRecall:        {"ir_rt_first", "ir_rt_second", "ir_score"},
	TestDelayedRecall:          {"dr_rt", "dr_score"},
	TestChoiceReactionTime:     {"crt_rt", "crt_correct", "crt_response", "crt_dwell"},
	TestVisualPairedAssociates: {"vpa_rt", "vpa_correct", "vpa_response"},
	TestDigitSymbolMatching:    {"dsm_rt", "dsm_correct", "dsm_response"},
	TestSpatialMemory:          {"sm_rt", "sm_correct"},
}

// TestCSVHeader returns the column layout for one test type's export.
func TestCSVHeader(tt TestType) []string {
	header := append([]string{}, testCSVBaseHeader...)
	header = append(header, resultCSVColumns[tt]...)
	header = append(header, studyCSVHeader...)
	return header
}

// ExportStudiesCSV renders every study as one CSV row, creation order.
func ExportStudiesCSV(studies []*Study) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write(studyCSVHeader)
	for _, st := range studies {
		rec := []string{st.StudyID, st.ParticipantID, st.URL, string(st.StudyType)}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// FlattenTest expands a stored test into CSV rows: one row per question for
// list-shaped results, a single row otherwise. Column order matches
// TestCSVHeader for the test's type.
func FlattenTest(t *Test, study *Study) ([][]string, error) {
	base := []string{
		t.TestID,
		string(t.TestType),
		t.TimeStarted.UTC().Format(time.RFC3339),
		strconv.Itoa(t.TimeElapsedMilliseconds),
		t.DeviceInfo,
	}
	tail := []string{study.StudyID, study.ParticipantID, study.URL, string(study.StudyType)}

	resultRows, err := flattenResult(t.TestType, t.Result)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(resultRows))
	for _, rr := range resultRows {
		row := make([]string, 0, len(base)+len(rr)+len(tail))
		row = append(row, base...)
		row = append(row, rr...)
		row = append(row, tail...)
		rows = append(rows, row)
	}
	return rows, nil
}

func flattenResult(tt TestType, raw json.RawMessage) ([][]string, error) {
	switch tt {
	case TestImmediateRecall:
		var q ImmediateRecallResult
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, err
		}
		second := ""
		if q.RTSecond != nil {
			second = strconv.Itoa(*q.RTSecond)
		}
		return [][]string{{strconv.Itoa(q.RTFirst), second, strconv.Itoa(q.Score)}}, nil
	case TestDelayedRecall:
		var q DelayedRecallResult
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, err
		}
		return [][]string{{strconv.Itoa(q.RT), strconv.Itoa(q.Score)}}, nil
	case TestChoiceReactionTime:
		var qs []ChoiceReactionTimeResult
		if err := json.Unmarshal(raw, &qs); err != nil {
			return nil, err
		}
		rows := make([][]string, 0, len(qs))
		for _, q := range qs {
			rows = append(rows, []string{strconv.Itoa(q.RT), strconv.FormatBool(q.Correct), q.Response, strconv.Itoa(q.Dwell)})
		}
		return rows, nil
	case TestVisualPairedAssociates:
		var qs []VisualPairedAssociatesResult
		if err := json.Unmarshal(raw, &qs); err != nil {
			return nil, err
		}
		rows := make([][]string, 0, len(qs))
		for _, q := range qs {
			rows = append(rows, []string{strconv.Itoa(q.RT), strconv.FormatBool(q.Correct), q.Response})
		}
		return rows, nil
	case TestDigitSymbolMatching:
		var qs []DigitSymbolMatchingResult
		if err := json.Unmarshal(raw, &qs); err != nil {
			return nil, err
		}
		rows := make([][]string, 0, len(qs))
		for _, q := range qs {
			rows = append(rows, []string{strconv.Itoa(q.RT), strconv.FormatBool(q.Correct), strconv.Itoa(q.Response)})
		}
		return rows, nil
	case TestSpatialMemory:
		var qs []SpatialMemoryResult
		if err := json.Unmarshal(raw, &qs); err != nil {
			return nil, err
		}
		rows := make([][]string, 0, len(qs))
		for _, q := range qs {
			rows = append(rows, []string{strconv.Itoa(q.RT), strconv.FormatBool(q.Correct)})
		}
		return rows, nil
	}
	return nil, NewInvalidError("unknown test_type " + string(tt))
}
