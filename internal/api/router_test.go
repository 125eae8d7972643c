package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	goimage "image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"menu-analyzer/internal/core/analysis"
	"menu-analyzer/internal/core/history"
	"menu-analyzer/internal/core/image"
	"menu-analyzer/internal/core/menu"
	"menu-analyzer/internal/core/preferences"
	"menu-analyzer/internal/infrastructure/config"
	"menu-analyzer/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) Name() string { return "fake" }

func (f *fakeOCR) Recognize(ctx context.Context, img *image.Image) (string, error) {
	return f.text, f.err
}

type testServer struct {
	router *gin.Engine
	store  *history.MemoryStore
	writer *history.Writer
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	cfg.DedupWindow = 0
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, ocr menu.OCRProvider) *testServer {
	t.Helper()
	store := history.NewMemoryStore(100)
	writer := history.NewWriter(store, 1, 16)
	menuSvc := menu.NewService(menu.Options{
		RejectBlankText: cfg.Analysis.RejectBlankText,
		MaxTextLength:   cfg.Analysis.MaxTextLength,
	}, analysis.NewEngine(nil), image.NewService(cfg.Image.MaxSizeBytes), nil, ocr, writer)

	router := SetupRouter(cfg, Services{
		Menu:        menuSvc,
		History:     store,
		Writer:      writer,
		Preferences: preferences.NewMemoryStore(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = writer.Close(ctx)
	})
	return &testServer{router: router, store: store, writer: writer}
}

func (s *testServer) do(method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) postJSON(path, body string) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, path, "application/json", []byte(body))
}

// flush 等待背景寫入完成
func (s *testServer) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.writer.Close(ctx); err != nil {
		t.Fatalf("flush history: %v", err)
	}
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) analysis.AnalysisResult {
	t.Helper()
	var res analysis.AnalysisResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("invalid response body %s: %v", w.Body.String(), err)
	}
	return res
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) common.ErrorResponse {
	t.Helper()
	var res common.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("invalid error body %s: %v", w.Body.String(), err)
	}
	return res
}

func TestAnalyzeEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	for _, path := range []string{"/analyze", "/api/v1/analyze"} {
		w := s.postJSON(path, `{"text":"Spicy Noodles: peanut, soy, chili","preferences":{"allergies":["peanut"]}}`)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, w.Code, w.Body.String())
		}
		res := decodeResult(t, w)
		if res.RiskLevel != analysis.RiskHigh {
			t.Fatalf("%s: expected HIGH, got %s", path, res.RiskLevel)
		}
		if len(res.MenuItems) != 1 || res.MenuItems[0].Name != "Spicy Noodles" {
			t.Fatalf("%s: unexpected items %+v", path, res.MenuItems)
		}
		if w.Header().Get("X-Analysis-ID") == "" {
			t.Fatalf("%s: expected X-Analysis-ID header", path)
		}
		if w.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s: expected X-Request-ID header", path)
		}
	}
}

func TestAnalyzeEndpointWireShape(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := s.postJSON("/analyze", `{"text":"   "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	for _, key := range []string{"menu_items", "hits"} {
		if string(raw[key]) != "[]" {
			t.Fatalf("%s should serialise as [], got %s", key, raw[key])
		}
	}
	if string(raw["risk_level"]) != `"LOW"` {
		t.Fatalf("expected LOW, got %s", raw["risk_level"])
	}
	if len(raw) != 4 {
		t.Fatalf("response should only carry the four contract fields, got %s", w.Body.String())
	}
}

func TestAnalyzeEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"missing text", `{"preferences":{}}`, http.StatusBadRequest, common.ErrCodeInvalidRequest},
		{"malformed json", `{"text":`, http.StatusBadRequest, common.ErrCodeInvalidRequest},
		{"wrong preference type", `{"text":"x","preferences":{"allergies":"peanut"}}`, http.StatusBadRequest, common.ErrCodeInvalidRequest},
		{"binary payload", `{"text":"abc\u0000def"}`, http.StatusBadRequest, common.ErrCodeInvalidInput},
		{"unknown profile", `{"text":"x","profile_id":"nobody"}`, http.StatusNotFound, common.ErrCodeNotFound},
		{"bad profile id", `{"text":"x","profile_id":"a b"}`, http.StatusBadRequest, common.ErrCodeInvalidRequest},
	}

	s := newTestServer(t, testConfig(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.postJSON("/analyze", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if got := decodeError(t, w).Code; got != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, got)
			}
		})
	}
}

func TestAnalyzeEndpointTextLimits(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.RejectBlankText = true
	cfg.Analysis.MaxTextLength = 10
	s := newTestServer(t, cfg, nil)

	if w := s.postJSON("/analyze", `{"text":" "}`); w.Code != http.StatusBadRequest || decodeError(t, w).Code != common.ErrCodeEmptyText {
		t.Fatalf("expected EMPTY_TEXT, got %d: %s", w.Code, w.Body.String())
	}
	if w := s.postJSON("/analyze", `{"text":"this is far too long"}`); w.Code != http.StatusBadRequest || decodeError(t, w).Code != common.ErrCodeTextTooLong {
		t.Fatalf("expected TEXT_TOO_LONG, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPreferencesProfileFlow(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := s.do(http.MethodPut, "/api/v1/preferences/user-1", "application/json",
		[]byte(`{"allergies":[" Peanut ","peanut"],"health_goals":["Low Sugar"]}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var saved struct {
		ProfileID   string                   `json:"profile_id"`
		Preferences analysis.UserPreferences `json:"preferences"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &saved); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(saved.Preferences.Allergies) != 1 || saved.Preferences.HealthGoals[0] != "low_sugar" {
		t.Fatalf("preferences should be normalised, got %+v", saved.Preferences)
	}

	if w := s.do(http.MethodGet, "/api/v1/preferences/user-1", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/v1/preferences/ghost", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w = s.postJSON("/analyze", `{"text":"Pad Thai: rice noodles, peanuts","profile_id":"user-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if res := decodeResult(t, w); res.RiskLevel != analysis.RiskHigh {
		t.Fatalf("stored profile should apply, got %s", res.RiskLevel)
	}

	// 請求中的偏好優先於 profile
	w = s.postJSON("/analyze", `{"text":"Pad Thai: rice noodles, peanuts","profile_id":"user-1","preferences":{}}`)
	if res := decodeResult(t, w); res.RiskLevel == analysis.RiskHigh {
		t.Fatalf("explicit preferences should override the profile")
	}
}

func TestHistoryEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	first := s.postJSON("/analyze", `{"text":"Fruit Tea: sugar, honey","preferences":{"health_goals":["low_sugar"]}}`)
	second := s.postJSON("/analyze", `{"text":"Green Salad: lettuce"}`)
	s.flush(t)

	firstID := first.Header().Get("X-Analysis-ID")
	secondID := second.Header().Get("X-Analysis-ID")

	w := s.do(http.MethodGet, "/api/v1/history?limit=1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var list struct {
		Records []history.Record `json:"records"`
		Limit   int              `json:"limit"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if list.Limit != 1 || len(list.Records) != 1 {
		t.Fatalf("expected one record, got %+v", list)
	}

	w = s.do(http.MethodGet, "/api/v1/history", "", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(list.Records) != 2 || list.Limit != 20 {
		t.Fatalf("expected both records with the default limit, got %+v", list)
	}
	if list.Records[0].CreatedAt.Before(list.Records[1].CreatedAt) {
		t.Fatalf("records should be newest first")
	}
	ids := map[string]bool{list.Records[0].ID: true, list.Records[1].ID: true}
	if !ids[firstID] || !ids[secondID] {
		t.Fatalf("listed ids %v do not match %s and %s", ids, firstID, secondID)
	}

	w = s.do(http.MethodGet, "/api/v1/history/"+firstID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var rec history.Record
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if rec.Result == nil || rec.Result.RiskLevel != analysis.RiskMedium || !strings.Contains(rec.Text, "Fruit Tea") {
		t.Fatalf("unexpected record %+v", rec)
	}

	if w := s.do(http.MethodDelete, "/api/v1/history/"+firstID, "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/v1/history/"+firstID, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/v1/history?limit=abc", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func multipartImage(t *testing.T, data []byte, contentType, prefs string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="image"; filename="menu.png"`}
	header["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if prefs != "" {
		if err := mw.WriteField("preferences", prefs); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, goimage.NewGray(goimage.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestAnalyzeImageEndpoint(t *testing.T) {
	ocr := &fakeOCR{text: "Satay: chicken, peanut sauce"}
	s := newTestServer(t, testConfig(), ocr)

	body, ct := multipartImage(t, pngBytes(t), "image/png", `{"allergies":["peanut"]}`)
	w := s.do(http.MethodPost, "/analyze-image", ct, body.Bytes())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if res := decodeResult(t, w); res.RiskLevel != analysis.RiskHigh {
		t.Fatalf("expected HIGH, got %s", res.RiskLevel)
	}

	// 偏好格式錯誤時視為沒有偏好
	body, ct = multipartImage(t, pngBytes(t), "image/png", `{not json`)
	w = s.do(http.MethodPost, "/api/v1/analyze-image", ct, body.Bytes())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if res := decodeResult(t, w); len(res.Hits) != 1 || res.Hits[0].Level != analysis.RiskLow {
		t.Fatalf("expected only the informational lexicon hit, got %+v", res.Hits)
	}
}

func TestAnalyzeImageEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		ocr    menu.OCRProvider
		data   []byte
		mime   string
		status int
	}{
		{"no ocr provider", nil, nil, "image/png", http.StatusNotImplemented},
		{"ocr failure", &fakeOCR{err: menu.ErrOCRFailed}, nil, "image/png", http.StatusBadGateway},
		{"not an image", &fakeOCR{}, []byte("hello"), "text/plain", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig(), tt.ocr)
			data := tt.data
			if data == nil {
				data = pngBytes(t)
			}
			body, ct := multipartImage(t, data, tt.mime, "")
			w := s.do(http.MethodPost, "/analyze-image", ct, body.Bytes())
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}

	s := newTestServer(t, testConfig(), &fakeOCR{})
	w := s.do(http.MethodPost, "/analyze-image", "application/json", []byte(`{}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing image should be rejected, got %d", w.Code)
	}
}

func TestBodySizeLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxBodyBytes = 64
	s := newTestServer(t, cfg, nil)

	w := s.postJSON("/analyze", `{"text":"`+strings.Repeat("a", 200)+`"}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRateLimitAndDeduplication(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Requests = 2
	cfg.RateLimit.Window = time.Hour
	s := newTestServer(t, cfg, nil)

	for i := 0; i < 2; i++ {
		if w := s.postJSON("/analyze", `{"text":"x"}`); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	if w := s.postJSON("/analyze", `{"text":"x"}`); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	// 其他路由不受限
	if w := s.do(http.MethodGet, "/live", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	cfg = testConfig()
	cfg.DedupWindow = time.Minute
	s = newTestServer(t, cfg, nil)
	if w := s.postJSON("/analyze", `{"text":"same"}`); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := s.postJSON("/analyze", `{"text":"same"}`); w.Code != http.StatusTooManyRequests {
		t.Fatalf("duplicate should be rejected, got %d", w.Code)
	}
	if w := s.postJSON("/analyze", `{"text":"different"}`); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

type failingPinger struct{}

func (failingPinger) Get(ctx context.Context, id string) (analysis.UserPreferences, error) {
	return analysis.UserPreferences{}, errors.New("down")
}

func (failingPinger) Put(ctx context.Context, id string, p analysis.UserPreferences) (analysis.UserPreferences, error) {
	return analysis.UserPreferences{}, errors.New("down")
}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := s.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var health struct {
		Status string          `json:"status"`
		Queue  *history.Status `json:"queue"`
		OCR    string          `json:"ocr"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if health.Status != "ok" || health.Queue == nil || health.Queue.Workers != 1 || health.OCR != "none" {
		t.Fatalf("unexpected health %+v", health)
	}

	if w := s.do(http.MethodGet, "/ready", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d: %s", w.Code, w.Body.String())
	}

	router := SetupRouter(testConfig(), Services{Preferences: failingPinger{}})
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"text":"x","profile_id":"p1"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("store failure should surface as 503, got %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := s.do(http.MethodGet, "/nope", "", nil)
	if w.Code != http.StatusNotFound || decodeError(t, w).Code != common.ErrCodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %d: %s", w.Code, w.Body.String())
	}
	w = s.do(http.MethodGet, "/analyze", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
