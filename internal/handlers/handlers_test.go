package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/leafscan/internal/advisor"
	"github.com/example/leafscan/internal/auth"
	"github.com/example/leafscan/internal/repository"
	"github.com/example/leafscan/internal/usecase"
)

const testJWTSecret = "test-secret"

type stubService struct {
	identifyErr error
	statsErr    error
	identified  int
	scans       map[string]*usecase.ScanResult
}

func (s *stubService) Identify(ctx context.Context, filename, contentType string, data []byte) (*usecase.ScanResult, error) {
	s.identified++
	if s.identifyErr != nil {
		return nil, s.identifyErr
	}
	return &usecase.ScanResult{
		ScanID:      "scan-1",
		Class:       "Tomato___Late_blight",
		DisplayName: "Tomato: Late blight",
		Confidence:  0.9731,
		ImageURL:    "/static/uploads/leaf.png",
		Details:     advisor.Details{Description: "Spreads fast.", Treatments: []string{"Remove <infected> plants"}},
	}, nil
}

func (s *stubService) GetScan(ctx context.Context, scanID string) (*usecase.ScanResult, error) {
	if scan, ok := s.scans[scanID]; ok {
		return scan, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubService) GetDuplicateReport(ctx context.Context, scanID string) (*usecase.DuplicateReport, error) {
	scan, err := s.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	return &usecase.DuplicateReport{Scan: scan}, nil
}

func (s *stubService) Stats(ctx context.Context) (*usecase.StatsSummary, error) {
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	return &usecase.StatsSummary{TotalScans: 3}, nil
}

func newTestRouter(t *testing.T, svc ScanService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	if err := RegisterRoutes(router, svc, auth.JWTMiddleware(testJWTSecret, ""), Options{MaxUploadBytes: MaxUploadSize}); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	return router
}

func TestAPIErrorsLogAuthenticatedClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	router := gin.New()
	svc := &stubService{statsErr: errors.New("database unavailable")}
	if err := RegisterRoutes(router, svc, auth.JWTMiddleware(testJWTSecret, ""), Options{Logger: zap.New(core)}); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "dashboard"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "database unavailable") {
		t.Fatal("internal errors must not leak to API clients")
	}
	entries := logs.FilterMessage("api request failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one error entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["client"]; got != "dashboard" {
		t.Fatalf("expected client=dashboard, got %v", got)
	}
}

func pngPayload(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func postIdentify(router *gin.Engine, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/identify", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestScannerPageProvidesControllerElements(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	req := httptest.NewRequest(http.MethodGet, "/scanner", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	for _, id := range []string{"dropZone", "fileInput", "preview-img", "hudText", "uploadForm", "loadingOverlay"} {
		if !strings.Contains(resp.Body.String(), `id="`+id+`"`) {
			t.Fatalf("scanner page is missing element %q", id)
		}
	}
	if !strings.Contains(resp.Body.String(), `action="/identify"`) {
		t.Fatal("upload form must post to /identify")
	}
}

func TestStaticPagesRender(t *testing.T) {
	router := newTestRouter(t, &stubService{})
	for _, path := range []string{"/", "/about", "/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestIdentifyRendersResult(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc)
	body, contentType := buildMultipartBody(t, "image", "image/png", pngPayload(t))

	resp := postIdentify(router, body, contentType)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	html := resp.Body.String()
	if !strings.Contains(html, "Tomato: Late blight") || !strings.Contains(html, "97.31%") {
		t.Fatalf("result page missing diagnosis: %s", html)
	}
	if strings.Contains(html, "<infected>") {
		t.Fatal("treatments must be escaped")
	}
}

func TestIdentifyWithoutImage(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc)
	body, contentType := buildMultipartBody(t, "other", "image/png", pngPayload(t))

	resp := postIdentify(router, body, contentType)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "No image uploaded") {
		t.Fatal("expected the scanner page with an error")
	}
	if svc.identified != 0 {
		t.Fatal("service must not be called")
	}
}

func TestIdentifyRejectsLargeUpload(t *testing.T) {
	router := newTestRouter(t, &stubService{})
	body, contentType := buildMultipartBody(t, "image", "image/png", bytes.Repeat([]byte("a"), MaxUploadSize+1))

	resp := postIdentify(router, body, contentType)
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestIdentifyRejectsUnsupportedContentType(t *testing.T) {
	router := newTestRouter(t, &stubService{})
	body, contentType := buildMultipartBody(t, "image", "text/plain", []byte("hello"))

	resp := postIdentify(router, body, contentType)
	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
}

func TestIdentifyMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{usecase.ErrInvalidImage, http.StatusUnprocessableEntity},
		{errors.New("classifier down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		router := newTestRouter(t, &stubService{identifyErr: tc.err})
		body, contentType := buildMultipartBody(t, "image", "image/png", pngPayload(t))
		resp := postIdentify(router, body, contentType)
		if resp.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, resp.Code)
		}
		if strings.Contains(resp.Body.String(), "classifier down") {
			t.Fatal("internal errors must not leak to the page")
		}
	}
}

func TestScanAPIRequiresToken(t *testing.T) {
	svc := &stubService{scans: map[string]*usecase.ScanResult{"scan-1": {ScanID: "scan-1", Class: "Apple___healthy"}}}
	router := newTestRouter(t, svc)
	token := buildTestToken(t, "dashboard")

	get := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp
	}

	if resp := get("/api/scans/scan-1", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	resp := get("/api/scans/scan-1", token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var scan usecase.ScanResult
	if err := json.Unmarshal(resp.Body.Bytes(), &scan); err != nil || scan.Class != "Apple___healthy" {
		t.Fatalf("unexpected body %s (%v)", resp.Body.String(), err)
	}

	if resp := get("/api/scans/missing", token); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if resp := get("/api/scans/scan-1/duplicates", token); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicates, got %d", resp.Code)
	}
	if resp := get("/api/stats", token); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for stats, got %d", resp.Code)
	}
}

func buildMultipartBody(t *testing.T, field, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="leaf.png"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func buildTestToken(t *testing.T, subject string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
