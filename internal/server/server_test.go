package server_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raysh454/stagecheck/internal/app"
	"github.com/raysh454/stagecheck/internal/rowio"
	"github.com/raysh454/stagecheck/internal/server"
	"github.com/raysh454/stagecheck/internal/testutil"
)

const sheet = "Theoretical Staging Link,Page Exists?,Scope,Status\n" +
	"https://staging.example.com/a,,,\n" +
	"https://staging.example.com/gone,,In Scope,\n"

func newTestServer(t *testing.T) (*server.Server, *testutil.DummyWebClient) {
	t.Helper()

	logger := &testutil.DummyLogger{}
	wc := testutil.NewDummyWebClient()
	wc.SetStatus("https://staging.example.com/gone", http.StatusNotFound)

	appCfg := app.DefaultConfig()
	comps, err := app.NewComponentsWithClient(appCfg, wc, logger)
	if err != nil {
		t.Fatalf("NewComponentsWithClient: %v", err)
	}

	s, err := server.NewServer(server.Config{
		ListenAddr: ":0",
		AppConfig:  appCfg,
		Logger:     logger,
		Components: comps,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, wc
}

func doJSON(t *testing.T, s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, s http.Handler, filename, data string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte(data)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/jobs/check", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

// waitForStatus polls GET /jobs/{id} until the job reaches a finished state.
func waitForStatus(t *testing.T, s http.Handler, id string) app.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := doJSON(t, s, http.MethodGet, "/jobs/"+id, "")
		var job app.Job
		decodeJSON(t, rec, &job)
		switch job.Status {
		case app.JobDone, app.JobFailed, app.JobCanceled:
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return app.Job{}
}

// ─── CORS / health ─────────────────────────────────────────────────────

func TestServer_CORS_HeaderPresent(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/jobs", "")
	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin *, got %q", origin)
	}
}

func TestServer_OptionsPreflight(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodOptions, "/jobs/check", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "POST" {
		t.Errorf("allow methods = %q", got)
	}
}

func TestServer_Health(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Status   string   `json:"status"`
		Backends []string `json:"backends"`
	}
	decodeJSON(t, rec, &body)
	if body.Status != "ok" || len(body.Backends) == 0 {
		t.Errorf("unexpected health body %+v", body)
	}
}

func TestServer_Swagger(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/swagger/doc.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/jobs/check") {
		t.Error("swagger doc missing /jobs/check")
	}
}

// ─── Check jobs ────────────────────────────────────────────────────────

func TestServer_CheckJob_UploadAndDownload(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := upload(t, s, "plan.csv", sheet)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var job app.Job
	decodeJSON(t, rec, &job)
	if job.ID == "" || job.Type != app.JobCheck {
		t.Fatalf("unexpected job %+v", job)
	}

	final := waitForStatus(t, s, job.ID)
	if final.Status != app.JobDone {
		t.Fatalf("expected done, got %q (%s)", final.Status, final.Error)
	}
	if final.Summary == nil || final.Summary.Yes != 1 || final.Summary.NotFound != 1 {
		t.Errorf("unexpected summary %+v", final.Summary)
	}

	dl := doJSON(t, s, http.MethodGet, "/jobs/"+job.ID+"/download", "")
	if dl.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d", dl.Code)
	}
	if cd := dl.Header().Get("Content-Disposition"); !strings.Contains(cd, "plan-checked-") {
		t.Errorf("content disposition = %q", cd)
	}
	if ct := dl.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	out, err := rowio.ReadCSV(dl.Body)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if got := strings.Join(out.Column("Page Exists?"), ","); got != "Yes,404" {
		t.Errorf("Page Exists? = %s", got)
	}
}

func TestServer_CheckJob_Rejections(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	tests := []struct {
		name     string
		filename string
		data     string
		want     int
	}{
		{"missing columns", "plan.csv", "Theoretical Staging Link\nhttps://x/\n", http.StatusUnprocessableEntity},
		{"unsupported format", "plan.ods", sheet, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, s, tt.filename, tt.data)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			var body server.ErrorResponse
			decodeJSON(t, rec, &body)
			if body.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestServer_CheckJob_MissingFileField(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "x")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/jobs/check", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestServer_Download_NotFinished(t *testing.T) {
	t.Parallel()
	s, wc := newTestServer(t)
	wc.ResponseDelay = 5 * time.Second

	rec := upload(t, s, "plan.csv", sheet)
	var job app.Job
	decodeJSON(t, rec, &job)

	dl := doJSON(t, s, http.MethodGet, "/jobs/"+job.ID+"/download", "")
	if dl.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", dl.Code)
	}

	del := doJSON(t, s, http.MethodDelete, "/jobs/"+job.ID, "")
	if del.Code != http.StatusNoContent {
		t.Fatalf("cancel: expected 204, got %d", del.Code)
	}
	if final := waitForStatus(t, s, job.ID); final.Status != app.JobCanceled {
		t.Errorf("expected canceled, got %q", final.Status)
	}
}

// ─── Generate jobs ─────────────────────────────────────────────────────

func TestServer_GenerateJob(t *testing.T) {
	t.Parallel()
	s, wc := newTestServer(t)
	wc.SetBody("https://www.example.com/sitemap.xml",
		`<urlset><url><loc>https://www.example.com/a</loc></url></urlset>`)

	rec := doJSON(t, s, http.MethodPost, "/jobs/generate", `{"site":"www.example.com","staging_host":"staging.example.com"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var job app.Job
	decodeJSON(t, rec, &job)

	if final := waitForStatus(t, s, job.ID); final.Status != app.JobDone {
		t.Fatalf("expected done, got %q (%s)", final.Status, final.Error)
	}
	dl := doJSON(t, s, http.MethodGet, "/jobs/"+job.ID+"/download", "")
	if !strings.Contains(dl.Body.String(), "https://staging.example.com/a") {
		t.Errorf("download missing staging link:\n%s", dl.Body.String())
	}
}

func TestServer_GenerateJob_BadRequest(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing site", `{"staging_host":"staging.example.com"}`},
		{"missing host", `{"site":"www.example.com"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/jobs/generate", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

// ─── Job lookup ────────────────────────────────────────────────────────

func TestServer_UnknownJob(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/jobs/nope"},
		{http.MethodDelete, "/jobs/nope"},
		{http.MethodGet, "/jobs/nope/download"},
		{http.MethodGet, "/ws/jobs/nope"},
	} {
		rec := doJSON(t, s, tc.method, tc.path, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestServer_ListJobs(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/jobs", "")
	var jobs []app.Job
	decodeJSON(t, rec, &jobs)
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobs))
	}

	up := upload(t, s, "plan.csv", sheet)
	var job app.Job
	decodeJSON(t, up, &job)
	waitForStatus(t, s, job.ID)

	rec = doJSON(t, s, http.MethodGet, "/jobs", "")
	decodeJSON(t, rec, &jobs)
	if len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Errorf("unexpected jobs %+v", jobs)
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────────

func TestServer_JobWebSocket_StreamsUntilDone(t *testing.T) {
	t.Parallel()
	s, wc := newTestServer(t)
	wc.ResponseDelay = 50 * time.Millisecond

	ts := httptest.NewServer(s)
	defer ts.Close()

	rec := upload(t, s, "plan.csv", sheet)
	var job app.Job
	decodeJSON(t, rec, &job)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/jobs/" + job.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first app.Job
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.ID != job.ID {
		t.Errorf("snapshot id = %q", first.ID)
	}

	var last map[string]any
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			t.Fatalf("read: %v", err)
		}
		last = msg
	}
	if last["status"] != string(app.JobDone) || last["id"] != job.ID {
		t.Errorf("expected final done snapshot, got %v", last)
	}
}
