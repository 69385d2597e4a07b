package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sail-lab/intact-server/internal/services"
)

// maxUploadBytes bounds participant list uploads; ID lists are tiny.
const maxUploadBytes = 1 << 20

type Router struct {
	studies *services.StudyService
	tests   *services.TestService
	exports *services.ExportService
	gate    *services.AdminGate
}

func NewRouter(studies *services.StudyService, tests *services.TestService, exports *services.ExportService, gate *services.AdminGate) *Router {
	return &Router{studies: studies, tests: tests, exports: exports, gate: gate}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", rt.handleRoot)
	mux.HandleFunc("/studies", rt.handleCreateStudies)
	mux.HandleFunc("/studies/", rt.handleStudyScoped)
	mux.HandleFunc("/tests", rt.handleSubmitTest)
	mux.HandleFunc("/tests/single-test-type/download-file", rt.handleSingleTestCSV)
	mux.HandleFunc("/tests/zip-archive/download-file", rt.handleAllTestsZip)
}

func (rt *Router) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "This is the INTACT backend. Visit /admin if you are a researcher.\n")
}

// POST /studies — participant IDs pasted as newline-separated form text.
func (rt *Router) handleCreateStudies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		if err := r.ParseForm(); err != nil {
			writeMessage(w, http.StatusBadRequest, "could not parse form")
			return
		}
	}
	if !rt.authorized(w, r) {
		return
	}
	pids := services.ParseParticipantIDs(r.FormValue("participant_ids"))
	rt.createStudies(w, r, pids)
}

// POST /studies/upload-file — same contract, participant IDs arrive as an
// uploaded .txt/.csv file.
func (rt *Router) handleCreateStudiesUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeMessage(w, http.StatusBadRequest, "could not parse multipart form")
		return
	}
	if !rt.authorized(w, r) {
		return
	}
	f, _, err := r.FormFile("participant_ids_file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "could not read file; make sure it is a .txt or .csv file containing a newline-separated list of alphanumeric participant IDs")
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "could not read file")
		return
	}
	pids := services.ParseParticipantIDs(string(raw))
	rt.createStudies(w, r, pids)
}

func (rt *Router) createStudies(w http.ResponseWriter, r *http.Request, pids []string) {
	baselines, ok := formCount(w, r, "baselines_per_participant")
	if !ok {
		return
	}
	followups, ok := formCount(w, r, "followups_per_participant")
	if !ok {
		return
	}
	studies, err := rt.studies.CreateStudies(pids, baselines, followups)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, studies)
}

// GET /studies/{study_id} checks that a study link is valid. It reports the
// study type only and never lists study IDs.
func (rt *Router) handleStudyScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/studies/")
	switch rest {
	case "upload-file":
		rt.handleCreateStudiesUpload(w, r)
		return
	case "download-file":
		rt.handleStudiesCSV(w, r)
		return
	}
	if r.Method != http.MethodGet || rest == "" || strings.Contains(rest, "/") {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	study, err := rt.studies.GetStudy(rest)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"study_type": study.StudyType})
}

// POST /studies/download-file — full registry as CSV.
func (rt *Router) handleStudiesCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		if err := r.ParseForm(); err != nil {
			writeMessage(w, http.StatusBadRequest, "could not parse form")
			return
		}
	}
	if !rt.authorized(w, r) {
		return
	}
	res, err := rt.exports.StudiesCSV()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeAttachment(w, res)
}

// POST /tests — participant-facing submission, gated by study_id only.
func (rt *Router) handleSubmitTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var in services.TestIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, "could not parse test submission: "+err.Error())
		return
	}
	test, err := rt.tests.SubmitTest(in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, test)
}

// POST /tests/single-test-type/download-file — one test type as CSV,
// optionally restricted to one participant.
func (rt *Router) handleSingleTestCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		if err := r.ParseForm(); err != nil {
			writeMessage(w, http.StatusBadRequest, "could not parse form")
			return
		}
	}
	if !rt.authorized(w, r) {
		return
	}
	tt, err := services.ParseTestType(r.FormValue("test_type"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	res, err := rt.exports.SingleTestCSV(tt, r.FormValue("participant_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeAttachment(w, res)
}

// POST /tests/zip-archive/download-file — every test type, one CSV per
// type, packed into a ZIP archive.
func (rt *Router) handleAllTestsZip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		if err := r.ParseForm(); err != nil {
			writeMessage(w, http.StatusBadRequest, "could not parse form")
			return
		}
	}
	if !rt.authorized(w, r) {
		return
	}
	res, err := rt.exports.AllTestsZip(r.FormValue("participant_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeAttachment(w, res)
}

// authorized enforces the admin gate; the password travels as a form field
// on every admin call.
func (rt *Router) authorized(w http.ResponseWriter, r *http.Request) bool {
	if err := rt.gate.Authorize(r.FormValue("password")); err != nil {
		writeServiceError(w, err)
		return false
	}
	return true
}

func formCount(w http.ResponseWriter, r *http.Request, field string) (int, bool) {
	v := r.FormValue(field)
	if v == "" {
		return 1, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, field+" must be an integer")
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeAttachment(w http.ResponseWriter, res *services.ExportResult) {
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+res.Filename)
	_, _ = w.Write(res.Data)
}

func writeServiceError(w http.ResponseWriter, err error) {
	if se, ok := services.AsServiceError(err); ok {
		switch se.Code {
		case services.ErrorInvalid, services.ErrorUnknownStudy:
			writeMessage(w, http.StatusBadRequest, se.Message)
		case services.ErrorUnauthorized:
			writeMessage(w, http.StatusUnauthorized, se.Message)
		case services.ErrorNotFound:
			writeMessage(w, http.StatusNotFound, se.Message)
		case services.ErrorUnavailable:
			writeMessage(w, http.StatusServiceUnavailable, se.Message)
		default:
			writeMessage(w, http.StatusInternalServerError, se.Message)
		}
		return
	}
	writeMessage(w, http.StatusInternalServerError, err.Error())
}
