package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pwa-modeller/overlay/internal/model"
	"github.com/pwa-modeller/overlay/internal/persist"
	"github.com/pwa-modeller/overlay/internal/service"
)

func testLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// testAPI wires a router around a real session over in-memory storage.
type testAPI struct {
	router  http.Handler
	session *service.Session
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := testLog()
	kv := persist.NewMemoryKV()
	session := service.NewSession(kv, persist.NewSaver(log, time.Millisecond), nil, log)
	t.Cleanup(session.Close)

	router := NewRouter(context.Background(), &RouterDeps{
		Log:          log,
		Session:      session,
		KV:           kv,
		CORSOrigins:  []string{"http://localhost:3000"},
		Version:      "test",
		MaxBodyBytes: 1 << 20,
	})
	return &testAPI{router: router, session: session}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) loadModel(t *testing.T) {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/model", modelDoc(t))
	if w.Code != http.StatusOK {
		t.Fatalf("loading model: status %d, body %s", w.Code, w.Body.String())
	}
}

func modelDoc(t *testing.T) []byte {
	t.Helper()
	m := model.NewModel()
	m.Name = "demo"
	m.Elements["e1"] = &model.Element{
		ID: "e1", Type: "ApplicationComponent", Name: "Billing",
		ExternalIDs: []model.ExternalID{{System: "cmdb", ID: "CI100"}},
	}
	m.Elements["e2"] = &model.Element{
		ID: "e2", Type: "ApplicationComponent", Name: "Ledger",
		ExternalIDs: []model.ExternalID{{System: "cmdb", ID: "CI200"}},
	}
	data, err := model.Marshal(m)
	if err != nil {
		t.Fatalf("marshal model: %v", err)
	}
	return data
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}
