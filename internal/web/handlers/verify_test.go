package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestVerifyHandler_Match(t *testing.T) {
	f := newFixture(t)
	f.seed("Alice", 0.1, 0.2, 0.3)
	f.seed("Bob", 0.9, 0.9, 0.9)
	f.vision.Person(red, 0.1, 0.2, 0.4)

	recorder := httptest.NewRecorder()
	f.verify.Verify(recorder, multipartRequest(t, "POST", "/api/v1/verify", nil, photo("file", "query.png", red)))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp VerifyResponse
	parseJSONResponse(t, recorder, &resp)

	if !resp.Matched || resp.Name != "Alice" {
		t.Fatalf("expected a match with Alice, got %+v", resp)
	}
	if resp.Description != "Alice description" || resp.Affiliation != "Alice party" {
		t.Errorf("expected Alice's metadata, got %+v", resp)
	}
	if resp.Distance == nil || *resp.Distance < 0.09 || *resp.Distance > 0.11 {
		t.Errorf("expected distance near 0.1, got %v", resp.Distance)
	}
	if resp.Tolerance != 0.6 {
		t.Errorf("expected tolerance 0.6, got %v", resp.Tolerance)
	}
}

func TestVerifyHandler_Unknown(t *testing.T) {
	f := newFixture(t)
	f.seed("Alice", 0, 0)
	f.vision.Person(blue, 3, 4)

	recorder := httptest.NewRecorder()
	f.verify.Verify(recorder, multipartRequest(t, "POST", "/api/v1/verify", nil, photo("file", "query.png", blue)))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp VerifyResponse
	parseJSONResponse(t, recorder, &resp)

	if resp.Matched || resp.Name != "Unknown" {
		t.Fatalf("expected Unknown, got %+v", resp)
	}
	if resp.Distance == nil || *resp.Distance != 5 {
		t.Errorf("expected distance 5, got %v", resp.Distance)
	}
}

func TestVerifyHandler_EmptyRegistry(t *testing.T) {
	f := newFixture(t)
	f.vision.Person(red, 1, 2)

	recorder := httptest.NewRecorder()
	f.verify.Verify(recorder, multipartRequest(t, "POST", "/api/v1/verify", nil, photo("file", "query.png", red)))

	assertStatusCode(t, recorder, http.StatusOK)
	if !strings.Contains(recorder.Body.String(), `"distance":null`) {
		t.Errorf("expected null distance, got %s", recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), `"name":"Unknown"`) {
		t.Errorf("expected Unknown, got %s", recorder.Body.String())
	}
}

func TestVerifyHandler_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		files  []upload
		status int
	}{
		{"missing file", nil, http.StatusBadRequest},
		{"wrong field", []upload{photo("image", "query.png", red)}, http.StatusBadRequest},
		{"no face", []upload{photo("file", "wall.png", gray)}, http.StatusBadRequest},
		{"not an image", []upload{{field: "file", filename: "notes.txt", data: []byte("hello")}}, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed("Alice", 1, 2)
			f.vision.Person(red, 1, 2)

			recorder := httptest.NewRecorder()
			f.verify.Verify(recorder, multipartRequest(t, "POST", "/api/v1/verify", nil, tc.files...))

			assertStatusCode(t, recorder, tc.status)
		})
	}
}

func TestVerifyHandler_StoreDown(t *testing.T) {
	f := newFixture(t)
	f.vision.Person(red, 1, 2)
	f.store.SetListError(errors.New("connection refused"))

	recorder := httptest.NewRecorder()
	f.verify.Verify(recorder, multipartRequest(t, "POST", "/api/v1/verify", nil, photo("file", "query.png", red)))

	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
	assertJSONError(t, recorder, "identity store unavailable")
}

func TestVerifyHandler_StaleCache(t *testing.T) {
	f := newFixture(t)
	f.seed("Alice", 0, 0)
	f.vision.Person(red, 0, 0)

	recorder := httptest.NewRecorder()
	f.verify.Verify(recorder, multipartRequest(t, "POST", "/api/v1/verify", nil, photo("file", "query.png", red)))
	assertStatusCode(t, recorder, http.StatusOK)
	var resp VerifyResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Stale {
		t.Fatalf("expected a fresh answer, got %+v", resp)
	}

	f.store.SetListError(errors.New("connection reset"))

	recorder = httptest.NewRecorder()
	f.verify.Verify(recorder, multipartRequest(t, "POST", "/api/v1/verify", nil, photo("file", "query.png", red)))
	assertStatusCode(t, recorder, http.StatusOK)
	resp = VerifyResponse{}
	parseJSONResponse(t, recorder, &resp)
	if !resp.Matched || resp.Name != "Alice" {
		t.Fatalf("expected the cached match with Alice, got %+v", resp)
	}
	if !resp.Stale {
		t.Error("expected stale=true while the store is down")
	}
}

func TestVerifyHandler_VisionFailure(t *testing.T) {
	f := newFixture(t)
	f.vision.DetectError = errors.New("face service returned status 502")

	recorder := httptest.NewRecorder()
	f.verify.Verify(recorder, multipartRequest(t, "POST", "/api/v1/verify", nil, photo("file", "query.png", red)))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "internal error")
}

func TestVerifyHandler_CacheStatus(t *testing.T) {
	f := newFixture(t)

	recorder := httptest.NewRecorder()
	f.verify.CacheStatus(recorder, httptest.NewRequest("GET", "/api/v1/cache", nil))

	var before map[string]any
	parseJSONResponse(t, recorder, &before)
	if before["populated"] != false {
		t.Errorf("expected unpopulated cache, got %v", before)
	}

	f.seed("Alice", 1, 2)
	f.identities.List(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/identities", nil))

	recorder = httptest.NewRecorder()
	f.verify.CacheStatus(recorder, httptest.NewRequest("GET", "/api/v1/cache", nil))

	var after map[string]any
	parseJSONResponse(t, recorder, &after)
	if after["populated"] != true {
		t.Errorf("expected populated cache, got %v", after)
	}
	if _, ok := after["age_seconds"]; !ok {
		t.Error("expected age_seconds")
	}
}
