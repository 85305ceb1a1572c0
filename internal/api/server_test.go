package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/ranksense/internal/agent"
	"github.com/fmuoria/ranksense/internal/ingestion"
	"github.com/fmuoria/ranksense/internal/models"
	"github.com/fmuoria/ranksense/internal/scoring"
	"github.com/fmuoria/ranksense/internal/store"
	"github.com/fmuoria/ranksense/internal/topsis"
)

const testToken = "s3cret"

func newTestServer(t *testing.T, token string) http.Handler {
	t.Helper()
	repo, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "api.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	files := ingestion.NewFileHandler(filepath.Join(t.TempDir(), "uploads"), nil)
	a := agent.New(files, scoring.NewHeuristicScorer(nil), repo, agent.Options{})
	return NewServer(a, Options{APIToken: token, Version: "test"}).Router()
}

func do(t *testing.T, h http.Handler, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func auth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testToken}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealthSkipsAuth(t *testing.T) {
	h := newTestServer(t, testToken)

	rec := do(t, h, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"RankSense API"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestBearerAuth(t *testing.T) {
	h := newTestServer(t, testToken)

	rec := do(t, h, http.MethodGet, "/", nil, map[string]string{RequestIDHeader: "req-42"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, ErrCodeUnauthorized, e.Code)
	assert.Equal(t, "req-42", e.RequestID)

	rec = do(t, h, http.MethodGet, "/", nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/", nil, auth())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"POST /rank"`)
}

func TestNoTokenDisablesAuth(t *testing.T) {
	h := newTestServer(t, "")
	rec := do(t, h, http.MethodGet, "/batches", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRank(t *testing.T) {
	h := newTestServer(t, testToken)

	body := `{"candidates":[
		{"id":"low","name":"Low","criteria":[{"name":"Skills","score":40,"weight":60},{"name":"Education","score":40,"weight":40}]},
		{"id":"high","name":"High","criteria":[{"name":"Skills","score":80,"weight":60},{"name":"Education","score":80,"weight":40}]}
	]}`
	rec := do(t, h, http.MethodPost, "/rank", []byte(body), auth())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp rankResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "high", resp.Results[0].CandidateID)
	assert.Equal(t, 1.0, resp.Results[0].Score)
	assert.Equal(t, 1, resp.Results[0].InputIndex)
	assert.Equal(t, "low", resp.Results[1].CandidateID)
	assert.Equal(t, 0.0, resp.Results[1].Score)
}

func TestRank_ValidationError(t *testing.T) {
	h := newTestServer(t, testToken)

	body := `{"candidates":[
		{"id":"a","criteria":[{"name":"Skills","score":50,"weight":60},{"name":"Education","score":50,"weight":40}]},
		{"id":"b","criteria":[{"name":"Skills","score":50,"weight":100}]}
	]}`
	rec := do(t, h, http.MethodPost, "/rank", []byte(body), auth())
	require.Equal(t, http.StatusBadRequest, rec.Code)

	e := decodeError(t, rec)
	assert.Equal(t, ErrCodeValidation, e.Code)

	// the message is the engine error verbatim
	_, rankErr := topsis.Rank(topsis.Batch{Candidates: []topsis.Candidate{
		{ID: "a", Criteria: []topsis.Criterion{{Name: "Skills", Score: 50, Weight: 60}, {Name: "Education", Score: 50, Weight: 40}}},
		{ID: "b", Criteria: []topsis.Criterion{{Name: "Skills", Score: 50, Weight: 100}}},
	}})
	require.Error(t, rankErr)
	assert.Equal(t, rankErr.Error(), e.Message)

	require.Len(t, e.Fields, 1)
	assert.Equal(t, "b", e.Fields[0].CandidateID)
	assert.NotEmpty(t, e.Fields[0].Constraint)
	assert.True(t, strings.HasPrefix(e.Fields[0].Field, "candidates[b]"))
}

func TestRank_BadJSON(t *testing.T) {
	h := newTestServer(t, testToken)

	rec := do(t, h, http.MethodPost, "/rank", []byte(`{"candidates":`), auth())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeInvalidParameter, decodeError(t, rec).Code)

	rec = do(t, h, http.MethodPost, "/rank", []byte(`{"people":[]}`), auth())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/rank", []byte(`{"candidates":[]}`), auth())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeValidation, decodeError(t, rec).Code)
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

type upload struct{ name, content string }

// uploadBody builds a multipart body that may repeat a file name.
func uploadBody(t *testing.T, uploads ...upload) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("job_title", "Backend Engineer"))
	for _, u := range uploads {
		fw, err := mw.CreateFormFile("files", u.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(u.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestAnalyze_EveryUploadIsACandidate(t *testing.T) {
	h := newTestServer(t, testToken)

	tests := []struct {
		name    string
		uploads []upload
	}{
		{"same file name", []upload{
			{"resume.txt", "Ann Kamau\nSkills: Go, SQL"},
			{"resume.txt", "Ben Ochieng\nSkills: Python"},
			{"resume.txt", "Cate Njeri\nSkills: Java"},
		}},
		{"same first name", []upload{
			{"John_Smith_CV.txt", "John Smith\nSkills: Go"},
			{"John_Doe_CV.txt", "John Doe\nSkills: Rust"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ctype := uploadBody(t, tt.uploads...)
			hdr := auth()
			hdr["Content-Type"] = ctype

			rec := do(t, h, http.MethodPost, "/analyze", body, hdr)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp struct {
				models.BatchReport
				Count int `json:"count"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, len(tt.uploads), resp.Count)

			paths := make(map[string]bool)
			for _, c := range resp.Candidates {
				paths[c.CVPath] = true
			}
			assert.Len(t, paths, len(tt.uploads), "each candidate keeps its own file")
		})
	}
}

func TestAnalyzeAndRetrieve(t *testing.T) {
	h := newTestServer(t, testToken)

	body, ctype := multipartBody(t,
		map[string]string{"job_title": "Backend Engineer", "job_desc": "Go and SQL"},
		map[string]string{
			"Ann_CV.txt":   "Ann Kamau\nann@example.com\nEducation: Bachelor of Science, University of Nairobi\nSkills: Go, Docker, SQL\nExperience as software engineer at a company\nProjects: built and implemented an API",
			"Ben_CV.txt":   "Ben Ochieng\nSummary: junior developer",
			"notes.exe":    "binary",
		})
	hdr := auth()
	hdr["Content-Type"] = ctype

	rec := do(t, h, http.MethodPost, "/analyze", body, hdr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		models.BatchReport
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "Backend Engineer", resp.JobTitle)
	assert.Equal(t, models.StatusDone, resp.Status)
	assert.Equal(t, 1, resp.Candidates[0].Rank)
	assert.GreaterOrEqual(t, resp.Candidates[0].Topsis, resp.Candidates[1].Topsis)

	rec = do(t, h, http.MethodGet, "/batches", nil, auth())
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.BatchSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, resp.BatchID, list[0].ID)
	assert.Equal(t, 2, list[0].CandidateCount)

	rec = do(t, h, http.MethodGet, "/batches/"+resp.BatchID, nil, auth())
	require.Equal(t, http.StatusOK, rec.Code)
	var report models.BatchReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, resp.Candidates[0].Name, report.Candidates[0].Name)

	rec = do(t, h, http.MethodGet, "/latest-batch", nil, auth())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), resp.BatchID)

	rec = do(t, h, http.MethodGet, "/batches/"+resp.BatchID+"/export", nil, auth())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	rec = do(t, h, http.MethodGet, "/metrics", nil, auth())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "batches_completed 1\n")
	assert.Contains(t, rec.Body.String(), "resumes_scored 2\n")
}

func TestAnalyze_Rejections(t *testing.T) {
	h := newTestServer(t, testToken)

	body, ctype := multipartBody(t, map[string]string{"job_title": "x"}, nil)
	hdr := auth()
	hdr["Content-Type"] = ctype
	rec := do(t, h, http.MethodPost, "/analyze", body, hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ctype = multipartBody(t, nil, map[string]string{"image.png": "png"})
	hdr["Content-Type"] = ctype
	rec = do(t, h, http.MethodPost, "/analyze", body, hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	many := make(map[string]string, agent.MaxBatchSize+1)
	for i := 0; i <= agent.MaxBatchSize; i++ {
		many["c"+strings.Repeat("x", i)+"_CV.txt"] = "text"
	}
	body, ctype = multipartBody(t, nil, many)
	hdr["Content-Type"] = ctype
	rec = do(t, h, http.MethodPost, "/analyze", body, hdr)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "maximum 25 files")
}

func TestNotFound(t *testing.T) {
	h := newTestServer(t, testToken)

	rec := do(t, h, http.MethodGet, "/batches/nope", nil, auth())
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, decodeError(t, rec).Code)

	rec = do(t, h, http.MethodGet, "/latest-batch", nil, auth())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/batches/nope/export", nil, auth())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestGmail(t *testing.T) {
	h := newTestServer(t, testToken)

	hdr := auth()
	hdr["Content-Type"] = "application/json"
	rec := do(t, h, http.MethodPost, "/ingest/gmail", []byte(`{"job_title":"x"}`), hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/ingest/gmail", []byte(`{"gmail_subject":"Application"}`), hdr)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ErrCodeUnavailable, decodeError(t, rec).Code)
}

func TestListBatchesLimit(t *testing.T) {
	h := newTestServer(t, testToken)
	rec := do(t, h, http.MethodGet, "/batches?limit=0", nil, auth())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/batches?limit=5", nil, auth())
	assert.Equal(t, http.StatusOK, rec.Code)
}
