package web

import (
	"bytes"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-registry/internal/cache"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database/mock"
	"github.com/kozaktomas/face-registry/internal/metrics"
	"github.com/kozaktomas/face-registry/internal/recognition"
	"github.com/kozaktomas/face-registry/internal/vision/visiontest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var red = color.RGBA{R: 220, G: 30, B: 30, A: 255}

func newTestServer(t *testing.T, api config.APIConfig) (*Server, *visiontest.Fake) {
	t.Helper()
	if api.MaxUploadBytes == 0 {
		api.MaxUploadBytes = 8 << 20
	}
	cfg := &config.Config{API: api}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheus(registry)
	store := mock.NewMockIdentityStore()
	fake := visiontest.NewFake()
	opts := recognition.Options{Workers: 2, Metrics: recorder}

	enroller := recognition.NewEnroller(store, fake, opts)
	verifier := recognition.NewVerifier(cache.New(store, 0, cache.WithMetrics(recorder)), fake, opts)
	return NewServer(cfg, enroller, verifier, registry, nil), fake
}

func upload(t *testing.T, method, target, field string, fields map[string]string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile(field, "photo.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestServer_EnrollThenVerify(t *testing.T) {
	s, fake := newTestServer(t, config.APIConfig{})
	fake.Person(red, 0.5, 0.5)

	rec := serve(s, upload(t, "POST", "/api/v1/identities", "images", map[string]string{"name": "Alice"}, visiontest.Photo(red)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Content-Type-Options"))

	rec = serve(s, upload(t, "POST", "/api/v1/verify", "file", nil, visiontest.Photo(red)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"name":"Alice"`)
	assert.Contains(t, rec.Body.String(), `"matched":true`)

	rec = serve(s, httptest.NewRequest("GET", "/api/v1/identities", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"names":["Alice"]`)

	rec = serve(s, httptest.NewRequest("GET", "/api/v1/identities/Alice", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, httptest.NewRequest("DELETE", "/api/v1/identities/Alice", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, httptest.NewRequest("GET", "/api/v1/identities/Alice", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t, config.APIConfig{})

	rec := serve(s, httptest.NewRequest("GET", "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	s, fake := newTestServer(t, config.APIConfig{})
	fake.Person(red, 1, 1)

	serve(s, upload(t, "POST", "/api/v1/verify", "file", nil, visiontest.Photo(red)))

	rec := serve(s, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "face_registry_verifications_total")
	assert.Contains(t, rec.Body.String(), `outcome="no_match"`)
}

func TestServer_WritesRequireToken(t *testing.T) {
	s, fake := newTestServer(t, config.APIConfig{Token: "s3cret"})
	fake.Person(red, 1, 1)

	rec := serve(s, upload(t, "POST", "/api/v1/identities", "images", map[string]string{"name": "Alice"}, visiontest.Photo(red)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := upload(t, "POST", "/api/v1/identities", "images", map[string]string{"name": "Alice"}, visiontest.Photo(red))
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = serve(s, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Reads stay open.
	rec = serve(s, httptest.NewRequest("GET", "/api/v1/identities", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, httptest.NewRequest("DELETE", "/api/v1/identities/Alice", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_VerifyRateLimit(t *testing.T) {
	s, fake := newTestServer(t, config.APIConfig{VerifyRateLimit: 1})
	fake.Person(red, 1, 1)

	rec := serve(s, upload(t, "POST", "/api/v1/verify", "file", nil, visiontest.Photo(red)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(s, upload(t, "POST", "/api/v1/verify", "file", nil, visiontest.Photo(red)))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Other endpoints are not limited.
	rec = serve(s, httptest.NewRequest("GET", "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Addr(t *testing.T) {
	s, _ := newTestServer(t, config.APIConfig{Host: "127.0.0.1", Port: 8123})
	assert.True(t, strings.HasSuffix(s.httpServer.Addr, ":8123"))
}
