package services

import (
	"encoding/json"
	"fmt"
	"time"
)

type StudyType string

const (
	StudyBaseline StudyType = "baseline"
	StudyFollowup StudyType = "followup"
)

type TestType string

const (
	TestImmediateRecall        TestType = "immediate_recall"
	TestDelayedRecall          TestType = "delayed_recall"
	TestChoiceReactionTime     TestType = "choice_reaction_time"
	TestVisualPairedAssociates TestType = "visual_paired_associates"
	TestDigitSymbolMatching    TestType = "digit_symbol_matching"
	TestSpatialMemory          TestType = "spatial_memory"
)

// AllTestTypes is the canonical ordering used for exports and ZIP archives.
var AllTestTypes = []TestType{
	TestImmediateRecall,
	TestDelayedRecall,
	TestChoiceReactionTime,
	TestVisualPairedAssociates,
	TestDigitSymbolMatching,
	TestSpatialMemory,
}

func ParseTestType(s string) (TestType, error) {
	for _, tt := range AllTestTypes {
		if string(tt) == s {
			return tt, nil
		}
	}
	return "", NewInvalidError(fmt.Sprintf("unknown test_type %q", s))
}

// Study is one baseline or follow-up assessment instance handed to a
// participant. The study_id token is server-generated and doubles as the
// participant-facing link suffix.
type Study struct {
	StudyID       string    `json:"study_id" bson:"study_id"`
	ParticipantID string    `json:"participant_id" bson:"participant_id"`
	URL           string    `json:"url" bson:"url"`
	StudyType     StudyType `json:"study_type" bson:"study_type"`
}

// TestIn is the subset of Test fields the client supplies on submission.
type TestIn struct {
	StudyID                 string          `json:"study_id"`
	TestType                TestType        `json:"test_type"`
	TimeStarted             time.Time       `json:"time_started"`
	TimeElapsedMilliseconds int             `json:"time_elapsed_milliseconds"`
	DeviceInfo              string          `json:"device_info"`
	Result                  json.RawMessage `json:"result"`
}

// Test is a stored cognitive test submission. Result holds the validated
// payload verbatim; its shape is fixed by TestType (see resultSchemas).
type Test struct {
	TestID                  string          `json:"test_id"`
	StudyID                 string          `json:"study_id"`
	TestType                TestType        `json:"test_type"`
	TimeStarted             time.Time       `json:"time_started"`
	TimeElapsedMilliseconds int             `json:"time_elapsed_milliseconds"`
	DeviceInfo              string          `json:"device_info"`
	Result                  json.RawMessage `json:"result"`
}

// Per-question result records. Each test type carries its own closed field
// set; submissions with missing, extra or out-of-range fields are rejected.

type VisualPairedAssociatesResult struct {
	RT       int    `json:"vpa_rt"`
	Correct  bool   `json:"vpa_correct"`
	Response string `json:"vpa_response"`
}

type ChoiceReactionTimeResult struct {
	RT       int    `json:"crt_rt"`
	Correct  bool   `json:"crt_correct"`
	Response string `json:"crt_response"` // "right" or "left"
	Dwell    int    `json:"crt_dwell"`
}

type DigitSymbolMatchingResult struct {
	RT       int  `json:"dsm_rt"`
	Correct  bool `json:"dsm_correct"`
	Response int  `json:"dsm_response"` // 1, 2 or 3
}

type ImmediateRecallResult struct {
	RTFirst  int  `json:"ir_rt_first"`
	RTSecond *int `json:"ir_rt_second,omitempty"` // set only when a second attempt was made
	Score    int  `json:"ir_score"`               // 0..2
}

type DelayedRecallResult struct {
	RT    int `json:"dr_rt"`
	Score int `json:"dr_score"` // 1..5
}

type SpatialMemoryResult struct {
	RT      int  `json:"sm_rt"`
	Correct bool `json:"sm_correct"`
}

type resultSchema struct {
	list     bool
	maxLen   int // 0 means no cap
	required []string
	optional []string
}

var resultSchemas = map[TestType]resultSchema{
	TestImmediateRecall: {
		required: []string{"ir_rt_first", "ir_score"},
		optional: []string{"ir_rt_second"},
	},
	TestDelayedRecall: {
		required: []string{"dr_rt", "dr_score"},
	},
	TestChoiceReactionTime: {
		list:     true,
		required: []string{"crt_rt", "crt_correct", "crt_response", "crt_dwell"},
	},
	TestVisualPairedAssociates: {
		list:     true,
		maxLen:   20,
		required: []string{"vpa_rt", "vpa_correct", "vpa_response"},
	},
	TestDigitSymbolMatching: {
		list:     true,
		required: []string{"dsm_rt", "dsm_correct", "dsm_response"},
	},
	TestSpatialMemory: {
		list:     true,
		maxLen:   5,
		required: []string{"sm_rt", "sm_correct"},
	},
}

// ValidateResult checks raw against the closed field schema for tt. The
// payload is left untouched on success so it can be persisted verbatim.
func ValidateResult(tt TestType, raw json.RawMessage) error {
	sch, ok := resultSchemas[tt]
	if !ok {
		return NewInvalidError(fmt.Sprintf("unknown test_type %q", tt))
	}
	if len(raw) == 0 {
		return NewInvalidError("result required")
	}
	if sch.list {
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return NewInvalidError(fmt.Sprintf("result for %s must be a list of question records", tt))
		}
		if sch.maxLen > 0 && len(elems) > sch.maxLen {
			return NewInvalidError(fmt.Sprintf("result for %s has %d records, maximum is %d", tt, len(elems), sch.maxLen))
		}
		for i, el := range elems {
			if err := validateQuestion(tt, sch, el); err != nil {
				return NewInvalidError(fmt.Sprintf("result[%d]: %v", i, err))
			}
		}
		return nil
	}
	if err := validateQuestion(tt, sch, raw); err != nil {
		return NewInvalidError(fmt.Sprintf("result: %v", err))
	}
	return nil
}

func validateQuestion(tt TestType, sch resultSchema, raw json.RawMessage) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("expected an object")
	}
	for _, k := range sch.required {
		if _, ok := obj[k]; !ok {
			return fmt.Errorf("missing required field %q", k)
		}
	}
	allowed := map[string]bool{}
	for _, k := range sch.required {
		allowed[k] = true
	}
	for _, k := range sch.optional {
		allowed[k] = true
	}
	for k := range obj {
		if !allowed[k] {
			return fmt.Errorf("unexpected field %q", k)
		}
	}
	return decodeQuestionStrict(tt, raw)
}

func decodeQuestionStrict(tt TestType, raw json.RawMessage) error {
	switch tt {
	case TestVisualPairedAssociates:
		var q VisualPairedAssociatesResult
		if err := json.Unmarshal(raw, &q); err != nil {
			return err
		}
	case TestChoiceReactionTime:
		var q ChoiceReactionTimeResult
		if err := json.Unmarshal(raw, &q); err != nil {
			return err
		}
		if q.Response != "right" && q.Response != "left" {
			return fmt.Errorf("crt_response must be \"right\" or \"left\"")
		}
	case TestDigitSymbolMatching:
		var q DigitSymbolMatchingResult
		if err := json.Unmarshal(raw, &q); err != nil {
			return err
		}
		if q.Response < 1 || q.Response > 3 {
			return fmt.Errorf("dsm_response must be 1, 2 or 3")
		}
	case TestImmediateRecall:
		var q ImmediateRecallResult
		if err := json.Unmarshal(raw, &q); err != nil {
			return err
		}
		if q.Score < 0 || q.Score > 2 {
			return fmt.Errorf("ir_score must be between 0 and 2")
		}
	case TestDelayedRecall:
		var q DelayedRecallResult
		if err := json.Unmarshal(raw, &q); err != nil {
			return err
		}
		if q.Score < 1 || q.Score > 5 {
			return fmt.Errorf("dr_score must be between 1 and 5")
		}
	case TestSpatialMemory:
		var q SpatialMemoryResult
		if err := json.Unmarshal(raw, &q); err != nil {
			return err
		}
	}
	return nil
}
