package route

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agriscan/internal/config"
	"agriscan/internal/logger"
	"agriscan/internal/middleware"
	"agriscan/internal/model"
	"agriscan/internal/repository/memory"
	"agriscan/internal/service"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// ========================================
// Test Setup Helpers
// ========================================

type fakeDetector struct {
	result *model.AnalysisResult
	err    error
}

func (f *fakeDetector) Analyze(ctx context.Context, source string) (*model.AnalysisResult, error) {
	return f.result, f.err
}

type testEnv struct {
	handler  http.Handler
	manager  *service.Manager
	detector *fakeDetector
	session  string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	staticDir := t.TempDir()
	os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<h1>gallery</h1>"), 0644)
	os.WriteFile(filepath.Join(staticDir, "login.html"), []byte("<form></form>"), 0644)

	cfg := &config.Config{
		Password:           "secret",
		StaticDir:          staticDir,
		DetectorProvider:   config.ProviderBackend,
		DetectorURL:        "http://detector.invalid",
		EncoderMode:        config.EncoderDataURL,
		AnalysisTimeout:    time.Second,
		AnalysisWorkers:    1,
		MaxImageEdge:       800,
		JPEGQuality:        80,
		MaxUploadSize:      10 << 20,
		ProgressClearDelay: time.Hour,
		SessionCacheSize:   8,
	}

	l, err := logger.NewLogger(&config.Config{LogDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	detector := &fakeDetector{result: &model.AnalysisResult{Predictions: []model.Prediction{
		{Class: "Late Blight", Confidence: 0.91, BBox: [4]float64{1, 1, 5, 5}},
	}}}

	repo := memory.New()
	mng, err := service.NewManager(cfg, repo, repo, detector, l)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(mng.Stop)

	return &testEnv{
		handler:  SetupRoutes(mng, cfg, l),
		manager:  mng,
		detector: detector,
		session:  uuid.NewString(),
	}
}

func (e *testEnv) request(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.AddCookie(&http.Cookie{Name: middleware.AuthCookie, Value: "true"})
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: e.session})

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) do(method, path string) *httptest.ResponseRecorder {
	return e.request(method, path, nil, "")
}

func leafPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, imaging.New(32, 24, color.NRGBA{30, 160, 40, 255})); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func (e *testEnv) upload(t *testing.T, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := mw.CreateFormFile("images", name)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		part.Write(data)
	}
	mw.Close()

	return e.request(http.MethodPost, "/api/images", &body, mw.FormDataContentType())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

type galleryPage struct {
	Images []struct {
		ID        string `json:"id"`
		Analyzed  bool   `json:"analyzed"`
		Severity  string `json:"severity"`
		TimeOfDay string `json:"timeOfDay"`
	} `json:"images"`
	Length   int `json:"length"`
	Analyzed int `json:"analyzed"`
	Pending  int `json:"pending"`
}

func (e *testEnv) gallery(t *testing.T, query string) galleryPage {
	t.Helper()
	rec := e.do(http.MethodGet, "/api/images"+query)
	if rec.Code != http.StatusOK {
		t.Fatalf("Gallery returned %d: %s", rec.Code, rec.Body.String())
	}
	var page galleryPage
	decode(t, rec, &page)
	return page
}

func (e *testEnv) seed(t *testing.T, n int) []string {
	t.Helper()
	files := make(map[string][]byte, n)
	for i := 0; i < n; i++ {
		files[string(rune('a'+i))+".png"] = leafPNG(t)
	}
	if rec := e.upload(t, files); rec.Code != http.StatusCreated {
		t.Fatalf("Upload returned %d: %s", rec.Code, rec.Body.String())
	}
	ids, err := e.manager.GetStore().IDs(context.Background())
	if err != nil {
		t.Fatalf("IDs failed: %v", err)
	}
	return ids
}

// ========================================
// Auth Tests
// ========================================

func TestAuth_UnauthenticatedRequests(t *testing.T) {
	env := setupTestEnv(t)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for API without cookie, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Errorf("Expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Login page should be public, got %d", rec.Code)
	}
}

func TestAuth_Login(t *testing.T) {
	env := setupTestEnv(t)

	login := func(password string) *httptest.ResponseRecorder {
		form := url.Values{"password": {password}}
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := login("wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong password, got %d", rec.Code)
	}

	rec := login("secret")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected redirect after login, got %d", rec.Code)
	}
	found := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.AuthCookie && c.Value == "true" {
			found = true
		}
	}
	if !found {
		t.Error("Login should set the auth cookie")
	}
}

func TestDynamicHTML(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(http.MethodGet, "/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "gallery") {
		t.Errorf("Expected index.html, got %d %q", rec.Code, rec.Body.String())
	}

	if rec := env.do(http.MethodGet, "/missing-page"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown page, got %d", rec.Code)
	}
}

// ========================================
// Gallery Tests
// ========================================

func TestUpload_FiltersNonImages(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.upload(t, map[string][]byte{
		"leaf1.png": leafPNG(t),
		"leaf2.png": leafPNG(t),
		"notes.txt": []byte("plain text, not a leaf"),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var result struct {
		Created  int                    `json:"created"`
		Failed   int                    `json:"failed"`
		Progress []model.UploadProgress `json:"progress"`
		Rejected []string               `json:"rejected"`
	}
	decode(t, rec, &result)

	if result.Created != 2 || result.Failed != 0 {
		t.Errorf("Expected 2 created and 0 failed, got %+v", result)
	}
	if len(result.Rejected) != 1 || result.Rejected[0] != "notes.txt" {
		t.Errorf("Expected notes.txt rejected, got %v", result.Rejected)
	}
	for _, p := range result.Progress {
		if p.Status != model.UploadCompleted || p.Progress != 100 {
			t.Errorf("Expected completed at 100, got %+v", p)
		}
	}

	page := env.gallery(t, "")
	if page.Length != 2 || page.Pending != 2 {
		t.Errorf("Expected 2 pending images, got %+v", page)
	}
	if page.Images[0].TimeOfDay == "" {
		t.Error("Gallery cards should carry display time")
	}
}

func TestUpload_NoImages(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.upload(t, map[string][]byte{"notes.txt": []byte("hello")})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestGallery_FiltersAndPagination(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.seed(t, 3)

	if rec := env.do(http.MethodPost, "/api/images/"+ids[0]+"/analyze"); rec.Code != http.StatusOK {
		t.Fatalf("Analyze returned %d: %s", rec.Code, rec.Body.String())
	}

	if page := env.gallery(t, "?status=analyzed"); page.Length != 1 || !page.Images[0].Analyzed {
		t.Errorf("Expected one analyzed image, got %+v", page)
	}
	if page := env.gallery(t, "?status=pending"); page.Length != 2 {
		t.Errorf("Expected two pending images, got %d", page.Length)
	}
	if page := env.gallery(t, "?class=Late%20Blight"); page.Length != 1 || page.Images[0].Severity != "high" {
		t.Errorf("Expected one Late Blight image with high severity, got %+v", page)
	}

	page := env.gallery(t, "?limit=2&page=2")
	if page.Length != 3 || len(page.Images) != 1 {
		t.Errorf("Expected 1 image on page 2 of 3, got %d of %d", len(page.Images), page.Length)
	}

	huge := env.gallery(t, "?limit=200&page=46116860184273881")
	if len(huge.Images) != 0 || huge.Length != 3 {
		t.Errorf("A page far past the end should be empty, got %d of %d", len(huge.Images), huge.Length)
	}

	if rec := env.do(http.MethodGet, "/api/images?status=broken"); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestImageDetail(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.seed(t, 1)

	if rec := env.do(http.MethodGet, "/api/images/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}

	env.do(http.MethodPost, "/api/images/"+ids[0]+"/analyze")

	rec := env.do(http.MethodGet, "/api/images/"+ids[0])
	if rec.Code != http.StatusOK {
		t.Fatalf("Detail returned %d", rec.Code)
	}
	var detail struct {
		Main struct {
			Class string `json:"class"`
			Count int    `json:"count"`
		} `json:"mainPrediction"`
		Disease struct {
			Label string `json:"label"`
			Known bool   `json:"known"`
		} `json:"disease"`
	}
	decode(t, rec, &detail)

	if detail.Main.Class != "Late Blight" || detail.Main.Count != 1 {
		t.Errorf("Unexpected main prediction %+v", detail.Main)
	}
	if !detail.Disease.Known {
		t.Error("Late Blight should be a known disease")
	}
}

func TestAnnotatedImage(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.seed(t, 1)
	env.do(http.MethodPost, "/api/images/"+ids[0]+"/analyze")

	rec := env.do(http.MethodGet, "/api/images/"+ids[0]+"/annotated")
	if rec.Code != http.StatusOK {
		t.Fatalf("Annotated returned %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %q", rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte{0xFF, 0xD8}) {
		t.Error("Body should be a JPEG")
	}
}

func TestRawImage(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.seed(t, 1)

	rec := env.do(http.MethodGet, "/api/images/"+ids[0]+"/raw")
	if rec.Code != http.StatusOK {
		t.Fatalf("Raw returned %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %q", rec.Header().Get("Content-Type"))
	}
	if _, err := imaging.Decode(rec.Body); err != nil {
		t.Errorf("Body should decode as an image: %v", err)
	}

	if rec := env.do(http.MethodGet, "/api/images/missing/raw"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

// ========================================
// Analysis Tests
// ========================================

func TestAnalyze_DetectorFailure(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.seed(t, 1)
	env.detector.err = errors.New("model not loaded")

	rec := env.do(http.MethodPost, "/api/images/"+ids[0]+"/analyze")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "model not loaded") {
		t.Errorf("Expected detector message in body, got %q", rec.Body.String())
	}

	if page := env.gallery(t, "?status=pending"); page.Length != 1 {
		t.Error("A failed analysis should leave the image pending")
	}

	var inflight []string
	decode(t, env.do(http.MethodGet, "/api/analyze/inflight"), &inflight)
	if len(inflight) != 0 {
		t.Errorf("In-flight set should be empty after failure, got %v", inflight)
	}
}

func TestAnalyzePending(t *testing.T) {
	env := setupTestEnv(t)
	env.seed(t, 3)

	rec := env.do(http.MethodPost, "/api/analyze/pending")
	if rec.Code != http.StatusOK {
		t.Fatalf("Analyze pending returned %d", rec.Code)
	}
	var report struct {
		Requested int `json:"requested"`
		Analyzed  int `json:"analyzed"`
	}
	decode(t, rec, &report)
	if report.Requested != 3 || report.Analyzed != 3 {
		t.Errorf("Expected 3 of 3 analyzed, got %+v", report)
	}

	var stats struct {
		AnalyzedImages int            `json:"analyzedImages"`
		MainCounts     map[string]int `json:"mainPredictionCounts"`
	}
	decode(t, env.do(http.MethodGet, "/api/stats"), &stats)
	if stats.AnalyzedImages != 3 || stats.MainCounts["Late Blight"] != 3 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestUploadProgress_Empty(t *testing.T) {
	env := setupTestEnv(t)

	var progress []model.UploadProgress
	decode(t, env.do(http.MethodGet, "/api/uploads/progress"), &progress)
	if len(progress) != 0 {
		t.Errorf("Expected empty progress, got %v", progress)
	}
}

// ========================================
// Disease Catalog Tests
// ========================================

func TestDiseases(t *testing.T) {
	env := setupTestEnv(t)

	var all []map[string]interface{}
	decode(t, env.do(http.MethodGet, "/api/diseases"), &all)
	if len(all) != env.manager.GetCatalog().Len() {
		t.Errorf("Expected %d diseases, got %d", env.manager.GetCatalog().Len(), len(all))
	}

	var info struct {
		Known    bool   `json:"known"`
		Severity string `json:"severity"`
	}
	decode(t, env.do(http.MethodGet, "/api/diseases/late_blight"), &info)
	if !info.Known || info.Severity != "high" {
		t.Errorf("Expected known high severity entry, got %+v", info)
	}

	decode(t, env.do(http.MethodGet, "/api/diseases/Purple%20Spots"), &info)
	if info.Known {
		t.Error("Unknown class should return the fallback entry")
	}
}

func TestClasses(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.seed(t, 1)
	env.do(http.MethodPost, "/api/images/"+ids[0]+"/analyze")

	var classes []string
	decode(t, env.do(http.MethodGet, "/api/classes"), &classes)
	if len(classes) != 1 || classes[0] != "Late Blight" {
		t.Errorf("Expected [Late Blight], got %v", classes)
	}
}

// ========================================
// Session Tests
// ========================================

type sessionState struct {
	SelectionMode bool     `json:"selectionMode"`
	Selected      []string `json:"selected"`
	Detail        string   `json:"detail"`
}

func TestSession_BulkDeleteRequiresConfirmation(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.seed(t, 5)

	env.do(http.MethodPost, "/api/session/toggle/"+ids[0])
	rec := env.do(http.MethodPost, "/api/session/toggle/"+ids[1])
	var state sessionState
	decode(t, rec, &state)
	if !state.SelectionMode || len(state.Selected) != 2 {
		t.Fatalf("Expected selection mode with 2 selected, got %+v", state)
	}

	rec = env.do(http.MethodPost, "/api/session/delete")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}
	var pending struct {
		Token string   `json:"token"`
		IDs   []string `json:"ids"`
	}
	decode(t, rec, &pending)

	if page := env.gallery(t, ""); page.Length != 5 {
		t.Fatalf("Nothing should be deleted before confirmation, got %d", page.Length)
	}

	rec = env.do(http.MethodPost, "/api/session/confirm/"+pending.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("Confirm returned %d", rec.Code)
	}

	if page := env.gallery(t, ""); page.Length != 3 {
		t.Errorf("Expected 3 images after deleting 2 of 5, got %d", page.Length)
	}

	decode(t, env.do(http.MethodGet, "/api/session"), &state)
	if len(state.Selected) != 0 {
		t.Errorf("Selection should be cleared, got %v", state.Selected)
	}

	if rec := env.do(http.MethodPost, "/api/session/confirm/"+pending.Token); rec.Code != http.StatusNotFound {
		t.Errorf("Reusing a token should fail with 404, got %d", rec.Code)
	}
}

func TestSession_CancelKeepsImages(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.seed(t, 2)

	rec := env.do(http.MethodPost, "/api/session/delete/"+ids[0])
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}
	var pending struct {
		Token string `json:"token"`
	}
	decode(t, rec, &pending)

	if rec := env.do(http.MethodPost, "/api/session/cancel/"+pending.Token); rec.Code != http.StatusOK {
		t.Fatalf("Cancel returned %d", rec.Code)
	}
	if page := env.gallery(t, ""); page.Length != 2 {
		t.Errorf("Cancel should keep both images, got %d", page.Length)
	}
}

func TestSession_EmptySelection(t *testing.T) {
	env := setupTestEnv(t)

	if rec := env.do(http.MethodPost, "/api/session/delete"); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for empty bulk delete, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/api/session/analyze"); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for empty bulk analyze, got %d", rec.Code)
	}
}

func TestSession_SelectAllAndModes(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.seed(t, 3)

	var state sessionState
	decode(t, env.do(http.MethodPost, "/api/session/select-all"), &state)
	if len(state.Selected) != 3 {
		t.Errorf("Expected 3 selected, got %d", len(state.Selected))
	}

	decode(t, env.do(http.MethodPost, "/api/session/deselect-all"), &state)
	if len(state.Selected) != 0 || !state.SelectionMode {
		t.Errorf("Deselect all keeps selection mode, got %+v", state)
	}

	env.do(http.MethodPost, "/api/session/toggle/"+ids[0])
	decode(t, env.do(http.MethodDelete, "/api/session/selection-mode"), &state)
	if state.SelectionMode || len(state.Selected) != 0 {
		t.Errorf("Exit should clear the selection, got %+v", state)
	}

	if rec := env.do(http.MethodPost, "/api/session/detail/"+ids[1]); rec.Code != http.StatusOK {
		t.Fatalf("Open detail returned %d", rec.Code)
	}
	decode(t, env.do(http.MethodGet, "/api/session"), &state)
	if state.Detail != ids[1] {
		t.Errorf("Expected detail %s, got %q", ids[1], state.Detail)
	}
	decode(t, env.do(http.MethodDelete, "/api/session/detail"), &state)
	if state.Detail != "" {
		t.Error("Detail should be closed")
	}
}

func TestSession_BulkAnalyzeSkipsAnalyzed(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.seed(t, 2)

	env.do(http.MethodPost, "/api/images/"+ids[0]+"/analyze")
	env.do(http.MethodPost, "/api/session/select-all")

	var report struct {
		Requested int `json:"requested"`
		Analyzed  int `json:"analyzed"`
		Skipped   int `json:"skipped"`
	}
	decode(t, env.do(http.MethodPost, "/api/session/analyze"), &report)
	if report.Requested != 2 || report.Analyzed != 1 || report.Skipped != 1 {
		t.Errorf("Expected 1 analyzed and 1 skipped, got %+v", report)
	}
}

func TestSession_IsolatedPerCookie(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.seed(t, 1)

	env.do(http.MethodPost, "/api/session/toggle/"+ids[0])

	other := *env
	other.session = uuid.NewString()
	var state sessionState
	decode(t, other.do(http.MethodGet, "/api/session"), &state)
	if len(state.Selected) != 0 {
		t.Errorf("Another session should not see the selection, got %v", state.Selected)
	}
}

// ========================================
// Log Tests
// ========================================

func TestLogs(t *testing.T) {
	env := setupTestEnv(t)

	if rec := env.do(http.MethodGet, "/logs/info"); rec.Code != http.StatusOK {
		t.Errorf("Expected info log, got %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/logs/debug"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown level, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/logs/warning/clear"); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 on clear, got %d", rec.Code)
	}
}
