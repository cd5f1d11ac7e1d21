package api

import (
	"net/http"
	"testing"
)

func TestHealthEndpoints(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health: status %d", w.Code)
	}
	var health struct {
		Status      string `json:"status"`
		Version     string `json:"version"`
		ModelLoaded bool   `json:"model_loaded"`
	}
	decodeJSON(t, w, &health)
	if health.Status != "ok" || health.Version != "test" {
		t.Errorf("health = %+v", health)
	}
	if health.ModelLoaded {
		t.Error("no model should be loaded yet")
	}

	w = a.do(t, http.MethodGet, "/api/v1/ready", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ready: status %d, body %s", w.Code, w.Body.String())
	}

	a.loadModel(t)
	w = a.do(t, http.MethodGet, "/api/v1/health", nil)
	decodeJSON(t, w, &health)
	if !health.ModelLoaded {
		t.Error("model_loaded should be true after load")
	}
}

func TestRequestIDHeaderOnResponses(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/api/v1/health", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}
