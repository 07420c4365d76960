package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/docstruct/internal/config"
	"github.com/dgallion1/docstruct/internal/layout"
	"github.com/dgallion1/docstruct/internal/metrics"
	"github.com/dgallion1/docstruct/internal/pipeline"
	"github.com/dgallion1/docstruct/internal/recognize"
	"github.com/dgallion1/docstruct/internal/stats"
	"github.com/dgallion1/docstruct/internal/store"
)

const testKey = "test-key"

const notes = "# Methods\nTraps were set in twelve villages overnight.\n" +
	"# Results\nAbout ninety percent of mosquitoes died.\n"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		APIKey:                   testKey,
		WorkerCount:              1,
		MaxQueueSize:             8,
		MaxConcurrentPublish:     1,
		MaxUploadBytes:           1 << 20,
		DefaultChunkMode:         "header",
		DefaultChunkSize:         1024,
		DefaultChunkOverlap:      128,
		DefaultRecognitionPolicy: "skip",
		JobTTL:                   time.Hour,
		Pipeline:                 config.DefaultOptions(),
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "docstruct.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m := metrics.New()
	latency := stats.NewLatency(time.Hour)
	gate := recognize.NewGate(nil, layout.PDF{}, cfg.Pipeline, log,
		recognize.WithTempDir(os.TempDir()), recognize.WithLatency(latency), recognize.WithObserver(m))
	p := pipeline.New(layout.PDF{}, gate, cfg.Pipeline, m, log)
	w := pipeline.NewWorker(p, st, nil, "", log, cfg.MaxConcurrentPublish)
	orch := pipeline.NewOrchestrator(cfg, w, m, log)
	orch.Start(t.Context())
	t.Cleanup(orch.Stop)

	return NewServer(Backends{
		Orchestrator: orch,
		Pipeline:     p,
		Store:        st,
		Latency:      latency,
		Metrics:      m,
		Engine:       gate.EngineName(),
	}, log, cfg)
}

// upload builds an authenticated multipart request.
func upload(t *testing.T, path, field, filename, content string, form map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range form {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testKey)
	return req
}

func authed(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	return req
}

func serve(s *Server, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

// waitForStatus polls a job until cond holds or five seconds pass.
func waitForStatus(t *testing.T, s *Server, jobID string, cond func(map[string]any) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, status := serve(s, authed(http.MethodGet, "/api/ingest/"+jobID+"/status"))
		if cond(status) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s did not reach the expected state, last status %v", jobID, status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	rec, body := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	expectStatus(t, rec, http.StatusOK)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)

	rec, body := serve(s, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	expectStatus(t, rec, http.StatusUnauthorized)
	if body["error"] != "missing authorization" {
		t.Errorf("unexpected error %v", body["error"])
	}

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec, body = serve(s, req)
	expectStatus(t, rec, http.StatusUnauthorized)
	if body["error"] != "invalid api key" {
		t.Errorf("unexpected error %v", body["error"])
	}
}

func TestChunk_Markdown(t *testing.T) {
	s := newTestServer(t)
	rec, body := serve(s, upload(t, "/api/chunk", "file", "notes.md", notes, map[string]string{"doc_id": "notes-1"}))
	expectStatus(t, rec, http.StatusOK)

	if body["doc_id"] != "notes-1" {
		t.Errorf("expected doc_id notes-1, got %v", body["doc_id"])
	}
	if body["rules"] != pipeline.RulesMarkup {
		t.Errorf("expected rules %q, got %v", pipeline.RulesMarkup, body["rules"])
	}
	if w, _ := body["warnings"].([]any); len(w) != 0 {
		t.Errorf("expected no warnings, got %v", w)
	}

	chunks, _ := body["chunks"].([]any)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	first := chunks[0].(map[string]any)
	text, _ := first["text"].(string)
	if !strings.HasPrefix(text, "## Methods\nTraps were set") {
		t.Errorf("unexpected first chunk %q", text)
	}
	if strings.Contains(text, "Results") {
		t.Errorf("first chunk should stop before Results: %q", text)
	}
	meta := first["metadata"].(map[string]any)
	if meta["owning_heading"] != "Methods" {
		t.Errorf("expected owning heading Methods, got %v", meta["owning_heading"])
	}
	if meta["source_document_id"] != "notes-1" {
		t.Errorf("expected source document notes-1, got %v", meta["source_document_id"])
	}
	if meta["chunk_mode"] != "header" {
		t.Errorf("expected header mode, got %v", meta["chunk_mode"])
	}

	assessment := body["assessment"].(map[string]any)
	counts, _ := assessment["level_counts"].(map[string]any)
	if len(counts) != 1 || counts["2"] != float64(2) {
		t.Errorf("expected two level-2 headings, got %v", assessment["level_counts"])
	}
}

func TestChunk_HeaderModeIgnoresWindowSettings(t *testing.T) {
	s := newTestServer(t)
	rec, body := serve(s, upload(t, "/api/chunk", "file", "notes.md", notes,
		map[string]string{"chunk_size": "10", "chunk_overlap": "20"}))
	expectStatus(t, rec, http.StatusOK)
	if chunks, _ := body["chunks"].([]any); len(chunks) != 2 {
		t.Errorf("expected 2 header chunks, got %d", len(chunks))
	}
}

func TestChunk_ConfigErrors(t *testing.T) {
	s := newTestServer(t)
	cases := map[string]map[string]string{
		"overlap not below size": {"chunk_mode": "fixed_window", "chunk_size": "10", "chunk_overlap": "10"},
		"overlap alias":          {"chunk_mode": "fixed_window", "chunk_size": "10", "overlap": "20"},
		"non-numeric size":       {"chunk_size": "big"},
		"unknown mode":           {"chunk_mode": "sentences"},
		"unknown policy":         {"use_ocr": "sometimes"},
		"bad force flag":         {"force": "maybe"},
	}
	for name, form := range cases {
		t.Run(name, func(t *testing.T) {
			rec, body := serve(s, upload(t, "/api/chunk", "file", "notes.md", notes, form))
			expectStatus(t, rec, http.StatusBadRequest)
			if body["error"] == "" || body["error"] == nil {
				t.Error("expected an error message")
			}
		})
	}
}

func TestChunk_InputErrors(t *testing.T) {
	s := newTestServer(t)

	rec, _ := serve(s, upload(t, "/api/chunk", "file", "broken.pdf", "%PDF-1.4 not really a pdf", nil))
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec, _ = serve(s, upload(t, "/api/chunk", "file", "sheet.xlsx", "PK", nil))
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec, body := serve(s, upload(t, "/api/chunk", "file", "", "", nil))
	expectStatus(t, rec, http.StatusBadRequest)
	if msg, _ := body["error"].(string); !strings.Contains(msg, "file is required") {
		t.Errorf("unexpected error %q", msg)
	}
}

func TestIngestLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec, body := serve(s, upload(t, "/api/ingest", "file", "notes.md", notes, map[string]string{"title": "Field notes"}))
	expectStatus(t, rec, http.StatusAccepted)
	jobID := body["job_id"].(string)
	docID := body["doc_id"].(string)
	if body["poll_url"] != "/api/ingest/"+jobID+"/status" {
		t.Errorf("unexpected poll_url %v", body["poll_url"])
	}

	waitForStatus(t, s, jobID, func(status map[string]any) bool {
		return status["status"] == string(pipeline.StatusCompleted)
	})

	rec, body = serve(s, authed(http.MethodGet, "/api/documents"))
	expectStatus(t, rec, http.StatusOK)
	docs, _ := body["documents"].([]any)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if title := docs[0].(map[string]any)["title"]; title != "Field notes" {
		t.Errorf("expected title Field notes, got %v", title)
	}

	rec, body = serve(s, authed(http.MethodGet, "/api/documents/"+docID))
	expectStatus(t, rec, http.StatusOK)
	if body["chunk_count"] != float64(2) {
		t.Errorf("expected chunk_count 2, got %v", body["chunk_count"])
	}

	rec, body = serve(s, authed(http.MethodGet, "/api/documents/"+docID+"/chunks"))
	expectStatus(t, rec, http.StatusOK)
	if chunks, _ := body["chunks"].([]any); len(chunks) != 2 {
		t.Errorf("expected 2 stored chunks, got %d", len(chunks))
	}

	// Same bytes again are skipped as a duplicate.
	_, body = serve(s, upload(t, "/api/ingest", "file", "copy.md", notes, nil))
	dupID := body["job_id"].(string)
	waitForStatus(t, s, dupID, func(status map[string]any) bool {
		return status["status"] == string(pipeline.StatusDupSkipped) && status["duplicate_of"] == docID
	})

	rec, body = serve(s, authed(http.MethodDelete, "/api/documents/"+docID))
	expectStatus(t, rec, http.StatusOK)
	if body["deleted"] != true {
		t.Errorf("expected deleted=true, got %v", body["deleted"])
	}

	rec, _ = serve(s, authed(http.MethodGet, "/api/documents/"+docID))
	expectStatus(t, rec, http.StatusNotFound)
	rec, _ = serve(s, authed(http.MethodDelete, "/api/documents/"+docID))
	expectStatus(t, rec, http.StatusNotFound)
}

func TestIngest_Rejections(t *testing.T) {
	s := newTestServer(t)

	rec, body := serve(s, upload(t, "/api/ingest", "file", "sheet.xlsx", "PK", nil))
	expectStatus(t, rec, http.StatusBadRequest)
	if msg, _ := body["error"].(string); !strings.Contains(msg, "unsupported file type") {
		t.Errorf("unexpected error %q", msg)
	}

	rec, _ = serve(s, upload(t, "/api/ingest", "file", "notes.md", notes, map[string]string{"chunk_mode": "fixed_window", "chunk_size": "0"}))
	expectStatus(t, rec, http.StatusBadRequest)

	rec, _ = serve(s, authed(http.MethodGet, "/api/ingest/nope/status"))
	expectStatus(t, rec, http.StatusNotFound)
}

func TestBatchIngest(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range map[string]string{"a.md": notes, "b.txt": "plain text body for the batch", "c.xlsx": "PK"} {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte(content))
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/batch", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testKey)

	rec, body := serve(s, req)
	expectStatus(t, rec, http.StatusAccepted)
	jobs, _ := body["jobs"].([]any)
	if len(jobs) != 3 {
		t.Fatalf("expected 3 job entries, got %d", len(jobs))
	}

	var queued, rejected int
	for _, j := range jobs {
		if _, ok := j.(map[string]any)["job_id"]; ok {
			queued++
		} else {
			rejected++
		}
	}
	if queued != 2 || rejected != 1 {
		t.Errorf("expected 2 queued and 1 rejected, got %d/%d", queued, rejected)
	}
}

func TestRecognitionStats(t *testing.T) {
	s := newTestServer(t)
	rec, body := serve(s, authed(http.MethodGet, "/api/stats/recognition"))
	expectStatus(t, rec, http.StatusOK)
	if body["engine"] != "noop" {
		t.Errorf("expected noop engine, got %v", body["engine"])
	}
	if _, ok := body["stats"]; !ok {
		t.Error("expected stats in response")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	serve(s, upload(t, "/api/chunk", "file", "notes.md", notes, nil))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	expectStatus(t, rec, http.StatusOK)
	out := rec.Body.String()
	for _, want := range []string{
		`handler="/api/chunk"`,
		`docstruct_pipeline_documents_total{outcome="completed",rules="markup"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":             "report.pdf",
		"../../etc/passwd":       "passwd",
		`C:\Users\me\notes.md`:   "notes.md",
		"..":                     "unnamed",
		"":                       "unnamed",
		"dir/sub/archive..v2.md": "archive_v2.md",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
