package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/himanishpuri/AcousticID/internal/testutil"
	"github.com/himanishpuri/AcousticID/pkg/acousticid"
	"github.com/himanishpuri/AcousticID/pkg/logger"
	"github.com/himanishpuri/AcousticID/pkg/models"
)

const acoustidOK = `{"status":"ok","results":[{"id":"r1","score":0.9,"recordings":[{"id":"rec-1","title":"Sandstorm","artists":[{"name":"Darude"}]}]},{"id":"r2","score":0.5}]}`

type stubFingerprinter struct {
	err error
}

func (f stubFingerprinter) Generate(ctx context.Context, path string) (*models.FingerprintResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.FingerprintResult{Fingerprint: "AQAA", DurationSeconds: 1}, nil
}

type testEnv struct {
	handler   http.Handler
	uploadDir string
	server    *Server
}

// setupTestServer wires a real service to a fake AcoustID endpoint that
// answers with status and body.
func setupTestServer(t *testing.T, status int, body string, opts ...acousticid.Option) *testEnv {
	t.Helper()

	acoustid := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(acoustid.Close)

	uploadDir := filepath.Join(t.TempDir(), "uploads")
	base := []acousticid.Option{
		acousticid.WithAPIKey("test-key"),
		acousticid.WithLookupURL(acoustid.URL),
		acousticid.WithUploadDir(uploadDir),
		acousticid.WithMaxUploadBytes(64 << 10),
		acousticid.WithDBPath(filepath.Join(t.TempDir(), "history.sqlite3")),
		acousticid.WithFingerprinter(stubFingerprinter{}),
		acousticid.WithLogger(logger.Discard()),
	}
	svc, err := acousticid.NewService(append(base, opts...)...)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	srv := NewServer(svc, &ServerConfig{
		UploadDir:      uploadDir,
		MaxUploadBytes: 64 << 10,
		AllowedOrigins: []string{"*"},
	})
	srv.log = logger.Discard()

	return &testEnv{handler: srv.setupRoutes(), uploadDir: uploadDir, server: srv}
}

// multipartBody builds a form with one file part.
func multipartBody(t *testing.T, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("note", "ignored"); err != nil {
		t.Fatal(err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)

	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) post(t *testing.T, path, field, filename, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, field, filename, contentType, content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) assertClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.uploadDir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected upload dir to be empty, found %d file(s)", len(entries))
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestRoot(t *testing.T) {
	env := setupTestServer(t, http.StatusOK, acoustidOK)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "AcousticID backend is running" {
		t.Errorf("GET / = %d %q", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t, http.StatusOK, acoustidOK)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Status != "healthy" {
		t.Errorf("unexpected health response %q", rec.Body.String())
	}
}

func TestAnalyzeReturnsCandidates(t *testing.T) {
	for _, path := range []string{"/v1/analyze", "/api/analyze", "/fingerprint"} {
		t.Run(path, func(t *testing.T) {
			env := setupTestServer(t, http.StatusOK, acoustidOK)

			rec := env.post(t, path, "track", "song.wav", "audio/wav", testutil.WAVBytes(t, 1))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}

			var candidates []models.TrackCandidate
			if err := json.Unmarshal(rec.Body.Bytes(), &candidates); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if len(candidates) != 1 || candidates[0].Title != "Sandstorm" || candidates[0].Album != acousticid.UnknownAlbum {
				t.Errorf("unexpected candidates %+v", candidates)
			}
			env.assertClean(t)
		})
	}
}

func TestAnalyzeEmptyResultsIsEmptyArray(t *testing.T) {
	env := setupTestServer(t, http.StatusOK, `{"status":"ok","results":[]}`)

	rec := env.post(t, "/v1/analyze", "audio", "clip.mp3", "audio/mpeg", []byte("fake mp3"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
	env.assertClean(t)
}

func TestAnalyzeNoFile(t *testing.T) {
	env := setupTestServer(t, http.StatusOK, acoustidOK)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("title", "no file here")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "No file uploaded" || resp.Message != "" {
		t.Errorf("unexpected body %+v", resp)
	}
}

func TestAnalyzeNotMultipart(t *testing.T) {
	env := setupTestServer(t, http.StatusOK, acoustidOK)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyzeUnsupportedType(t *testing.T) {
	env := setupTestServer(t, http.StatusOK, acoustidOK)

	rec := env.post(t, "/v1/analyze", "file", "notes.txt", "text/plain", []byte("hello"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); !strings.Contains(resp.Error, "Unsupported file format") {
		t.Errorf("unexpected error %q", resp.Error)
	}
	env.assertClean(t)
}

func TestAnalyzeTooLarge(t *testing.T) {
	env := setupTestServer(t, http.StatusOK, acoustidOK)

	rec := env.post(t, "/v1/analyze", "file", "big.wav", "audio/wav", bytes.Repeat([]byte{1}, 65<<10))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error != "File too large" || !strings.Contains(resp.Message, "64 KiB") {
		t.Errorf("unexpected body %+v", resp)
	}
	env.assertClean(t)
}

func TestAnalyzeFingerprintFailure(t *testing.T) {
	tests := []struct {
		name        string
		debug       bool
		wantDetails bool
	}{
		{"production", false, false},
		{"debug errors", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t, http.StatusOK, acoustidOK,
				acousticid.WithFingerprinter(stubFingerprinter{err: errors.New("fpcalc exited with status 2")}))
			env.server.config.DebugErrors = tt.debug

			rec := env.post(t, "/v1/analyze", "file", "song.wav", "audio/wav", []byte("RIFF...."))
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.Error == "" || resp.Message != "Could not generate audio fingerprint" {
				t.Errorf("unexpected body %+v", resp)
			}
			if got := resp.Details != ""; got != tt.wantDetails {
				t.Errorf("details present = %v, want %v (%q)", got, tt.wantDetails, resp.Details)
			}
			env.assertClean(t)
		})
	}
}

func TestAnalyzeLookupServiceErrorIs500(t *testing.T) {
	env := setupTestServer(t, http.StatusBadRequest, `{"status":"error","error":{"code":3,"message":"invalid fingerprint"}}`)

	rec := env.post(t, "/v1/analyze", "file", "song.wav", "audio/wav", []byte("data"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Message != "invalid fingerprint" {
		t.Errorf("message = %q, want the service's message", resp.Message)
	}
	env.assertClean(t)
}

func TestAnalyzeRawPassthrough(t *testing.T) {
	for _, path := range []string{"/v1/analyze/raw", "/analyze"} {
		t.Run(path, func(t *testing.T) {
			env := setupTestServer(t, http.StatusOK, acoustidOK)

			rec := env.post(t, path, "audioFile", "song.m4a", "", []byte("data"))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}

			var resp struct {
				Result map[string]any `json:"result"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			results, _ := resp.Result["results"].([]any)
			if resp.Result["status"] != "ok" || len(results) != 2 {
				t.Errorf("raw body should be untouched, got %+v", resp.Result)
			}
			env.assertClean(t)
		})
	}
}

func TestAnalyzeRawRequiresAudioFileField(t *testing.T) {
	env := setupTestServer(t, http.StatusOK, acoustidOK)

	rec := env.post(t, "/v1/analyze/raw", "audio", "song.wav", "audio/wav", []byte("data"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "No file uploaded" {
		t.Errorf("unexpected error %q", resp.Error)
	}
}

func TestAnalyzeRawServiceErrorIs400(t *testing.T) {
	env := setupTestServer(t, http.StatusBadRequest, `{"status":"error","error":{"code":3,"message":"invalid fingerprint"}}`)

	rec := env.post(t, "/v1/analyze/raw", "audioFile", "song.wav", "audio/wav", []byte("data"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "invalid fingerprint" {
		t.Errorf("error = %q, want the service's message", resp.Error)
	}
	env.assertClean(t)
}

func TestAnalyzeRawTransportFailureIs500(t *testing.T) {
	env := setupTestServer(t, http.StatusBadGateway, "<html>bad gateway</html>")
	env.server.config.DebugErrors = true

	rec := env.post(t, "/v1/analyze/raw", "audioFile", "song.wav", "audio/wav", []byte("data"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error == "" || resp.Details == "" {
		t.Errorf("expected error and details, got %+v", resp)
	}
	env.assertClean(t)
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestServer(t, http.StatusOK, acoustidOK)

	req := httptest.NewRequest(http.MethodOptions, "/v1/analyze", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing Access-Control-Allow-Origin")
	}
}

func TestCORSRestrictedOrigins(t *testing.T) {
	h := corsMiddleware([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		origin string
		want   string
	}{
		{"https://app.example.com", "https://app.example.com"},
		{"https://evil.example.com", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: allow = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestAnalysesHistory(t *testing.T) {
	env := setupTestServer(t, http.StatusOK, acoustidOK)

	if rec := env.post(t, "/v1/analyze", "file", "song.wav", "audio/wav", []byte("data")); rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d", rec.Code)
	}

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list ListAnalysesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 || list.Analyses[0].Outcome != acousticid.OutcomeOK || list.Analyses[0].TopTitle != "Sandstorm" {
		t.Fatalf("unexpected history %+v", list)
	}
	id := list.Analyses[0].ID

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/analyses/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses/"+id, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestAnalysesBadLimit(t *testing.T) {
	env := setupTestServer(t, http.StatusOK, acoustidOK)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses?limit=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAnalysesHistoryDisabled(t *testing.T) {
	env := setupTestServer(t, http.StatusOK, acoustidOK, acousticid.WithDBPath(""))

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestParseOrigins(t *testing.T) {
	if got := parseOrigins("*"); len(got) != 1 || got[0] != "*" {
		t.Errorf("parseOrigins(*) = %v", got)
	}
	got := parseOrigins(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("parseOrigins = %v", got)
	}
}
