//go:build integration

package integration_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"
)

func baseURL() string {
	if v := os.Getenv("INTACT_TEST_BASE_URL"); strings.TrimSpace(v) != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:18080"
}

func adminPassword() string {
	if v := os.Getenv("INTACT_TEST_ADMIN_PASSWORD"); v != "" {
		return v
	}
	return "password"
}

func TestStudyFlowIntegration(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}
	base := baseURL()

	participant := fmt.Sprintf("itest%d", time.Now().UnixNano())
	resp, err := client.PostForm(base+"/studies", url.Values{
		"password":                  {adminPassword()},
		"participant_ids":           {participant},
		"baselines_per_participant": {"1"},
		"followups_per_participant": {"2"},
	})
	if err != nil {
		t.Fatalf("create studies: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("create studies status %d body %s", resp.StatusCode, string(body))
	}
	var studies []struct {
		StudyID   string `json:"study_id"`
		StudyType string `json:"study_type"`
		URL       string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&studies); err != nil {
		t.Fatalf("decode studies: %v", err)
	}
	if len(studies) != 3 {
		t.Fatalf("expected 3 studies, got %d", len(studies))
	}

	submission := fmt.Sprintf(`{
		"study_id": %q,
		"test_type": "delayed_recall",
		"time_started": %q,
		"time_elapsed_milliseconds": 7000,
		"device_info": "integration-test",
		"result": {"dr_rt": 4200, "dr_score": 3}
	}`, studies[0].StudyID, time.Now().UTC().Format(time.RFC3339))
	testResp, err := client.Post(base+"/tests", "application/json", strings.NewReader(submission))
	if err != nil {
		t.Fatalf("submit test: %v", err)
	}
	defer testResp.Body.Close()
	if testResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(testResp.Body)
		t.Fatalf("submit test status %d body %s", testResp.StatusCode, string(body))
	}

	csvResp, err := client.PostForm(base+"/tests/single-test-type/download-file", url.Values{
		"password":       {adminPassword()},
		"test_type":      {"delayed_recall"},
		"participant_id": {participant},
	})
	if err != nil {
		t.Fatalf("download csv: %v", err)
	}
	defer csvResp.Body.Close()
	if csvResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(csvResp.Body)
		t.Fatalf("download status %d body %s", csvResp.StatusCode, string(body))
	}
	csvData, err := io.ReadAll(csvResp.Body)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !strings.Contains(string(csvData), studies[0].StudyID) {
		t.Fatalf("csv did not contain submitted study; csv=%s", string(csvData))
	}
}
