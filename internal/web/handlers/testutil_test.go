package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-registry/internal/cache"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/mock"
	"github.com/kozaktomas/face-registry/internal/recognition"
	"github.com/kozaktomas/face-registry/internal/vision/visiontest"
)

var (
	red   = color.RGBA{R: 220, G: 30, B: 30, A: 255}
	green = color.RGBA{R: 30, G: 220, B: 30, A: 255}
	blue  = color.RGBA{R: 30, G: 30, B: 220, A: 255}
	gray  = color.RGBA{R: 120, G: 120, B: 120, A: 255}
)

var testNow = time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{MaxUploadBytes: 8 << 20},
	}
}

// fixture wires handlers to an in-memory store and a fake vision primitive.
// The cache has a zero TTL so writes are visible to the next read.
type fixture struct {
	store      *mock.MockIdentityStore
	vision     *visiontest.Fake
	identities *IdentitiesHandler
	verify     *VerifyHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()
	store := mock.NewMockIdentityStore()
	fake := visiontest.NewFake()
	opts := recognition.Options{Workers: 2, Now: func() time.Time { return testNow }}

	enroller := recognition.NewEnroller(store, fake, opts)
	verifier := recognition.NewVerifier(cache.New(store, 0), fake, opts)

	return &fixture{
		store:      store,
		vision:     fake,
		identities: NewIdentitiesHandler(cfg, enroller, verifier, nil),
		verify:     NewVerifyHandler(cfg, verifier, nil),
	}
}

// seed stores an identity directly, bypassing enrollment.
func (f *fixture) seed(name string, embedding ...float32) {
	f.store.AddIdentity(database.StoredIdentity{
		Name:         name,
		Embedding:    embedding,
		Description:  name + " description",
		Affiliation:  name + " party",
		ImageSources: []string{name + ".jpg"},
		ImageCount:   1,
		UpdatedAt:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	})
}

type upload struct {
	field    string
	filename string
	data     []byte
}

func photo(field, filename string, c color.RGBA) upload {
	return upload{field: field, filename: filename, data: visiontest.Photo(c)}
}

// multipartRequest builds a multipart/form-data request.
func multipartRequest(t *testing.T, method, target string, fields map[string]string, files ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(f.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
