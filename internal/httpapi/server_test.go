package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"collectord/pkg/types"
)

type mockService struct {
	mu       sync.Mutex
	status   types.StatusResponse
	ready    bool
	latest   []byte
	pushed   [][]byte
	lastPull string
}

func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }

func (m *mockService) OnEventReceived(raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushed = append(m.pushed, raw)
	m.latest = raw
}

func (m *mockService) OnPullRequest(identifier string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPull = identifier
	if m.latest == nil {
		return types.EmptySentinel
	}
	return m.latest
}

func TestStatusHandler(t *testing.T) {
	n := uint64(41)
	svc := &mockService{status: types.StatusResponse{Collector: "ecal", State: "running", TriggerN: &n}}
	r := NewMux(svc, Mounts{})
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Collector != "ecal" || body.TriggerN == nil || *body.TriggerN != 41 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestReadyz(t *testing.T) {
	svc := &mockService{ready: true}
	r := NewMux(svc, Mounts{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz_NotReady(t *testing.T) {
	svc := &mockService{ready: false}
	r := NewMux(svc, Mounts{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "stopped") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestPullBeforeFirstEventReturnsSentinel(t *testing.T) {
	svc := &mockService{ready: true}
	r := NewMux(svc, Mounts{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/raw?sub=hits", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Body.String() != "EMPTY" {
		t.Fatalf("expected sentinel, got %q", w.Body.String())
	}
	if w.Header().Get(EmptyHeader) != "true" {
		t.Fatalf("missing %s header", EmptyHeader)
	}
	if svc.lastPull != "hits" {
		t.Fatalf("sub not forwarded: %q", svc.lastPull)
	}
}

func TestPushThenPull(t *testing.T) {
	svc := &mockService{ready: true}
	r := NewMux(svc, Mounts{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/events/raw", bytes.NewBufferString(`{"type":"Raw","trigger_n":1}`))
	req.Header.Set("Content-Type", "application/octet-stream")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/raw", nil))
	if w.Body.String() != `{"type":"Raw","trigger_n":1}` {
		t.Fatalf("unexpected pull body %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Fatalf("content-type=%s", ct)
	}
	if w.Header().Get(EmptyHeader) != "" {
		t.Fatalf("unexpected %s header", EmptyHeader)
	}
}

func TestPushRejectedWhenStopped(t *testing.T) {
	svc := &mockService{ready: false}
	r := NewMux(svc, Mounts{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/events/raw", bytes.NewBufferString("x")))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if len(svc.pushed) != 0 {
		t.Fatalf("event reached the service")
	}
	var body types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected error body %q (%v)", w.Body.String(), err)
	}
}

func TestPushEmptyBody(t *testing.T) {
	svc := &mockService{ready: true}
	r := NewMux(svc, Mounts{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/events/raw", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestPushBodyTooLarge(t *testing.T) {
	SetMaxBodyBytes(16)
	defer SetMaxBodyBytes(0)
	svc := &mockService{ready: true}
	r := NewMux(svc, Mounts{})
	w := httptest.NewRecorder()
	big := bytes.Repeat([]byte("a"), 64)
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/events/raw", bytes.NewReader(big)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
	if len(svc.pushed) != 0 {
		t.Fatalf("oversized event reached the service")
	}
}

func TestHealthz(t *testing.T) {
	svc := &mockService{}
	r := NewMux(svc, Mounts{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestMountsAreOptional(t *testing.T) {
	svc := &mockService{}
	r := NewMux(svc, Mounts{})
	for _, p := range []string{"/ws", "/producers", "/swagger/index.html"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		if w.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404 without mount, got %d", p, w.Code)
		}
	}

	hit := ""
	mark := func(name string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hit = name })
	}
	r = NewMux(svc, Mounts{Bus: mark("bus"), Producers: mark("producers")})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws", nil))
	if hit != "bus" {
		t.Fatalf("bus mount not reached")
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/producers?name=a", nil))
	if hit != "producers" {
		t.Fatalf("producers mount not reached")
	}
}

func TestSwaggerDoc(t *testing.T) {
	r := NewMux(&mockService{}, Mounts{Swagger: true})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("doc is not json: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/events/raw"]; !ok {
		t.Fatalf("doc misses /events/raw: %v", doc["paths"])
	}
}

func TestCORSPreflight(t *testing.T) {
	SetCORSOptions(true, []string{"http://dqm.local"}, []string{"GET", "POST"}, []string{"Content-Type"})
	defer SetCORSOptions(false, nil, nil, nil)
	r := NewMux(&mockService{}, Mounts{})
	req := httptest.NewRequest(http.MethodOptions, "/status", nil)
	req.Header.Set("Origin", "http://dqm.local")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://dqm.local" {
		t.Fatalf("allow-origin=%q", got)
	}
}

func TestCORSDefaultsCoverEventPush(t *testing.T) {
	SetCORSOptions(true, []string{"http://dqm.local"}, nil, nil)
	defer SetCORSOptions(false, nil, nil, nil)
	r := NewMux(&mockService{ready: true}, Mounts{})
	req := httptest.NewRequest(http.MethodOptions, "/events/raw", nil)
	req.Header.Set("Origin", "http://dqm.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "X-Log-Level")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "POST" {
		t.Fatalf("allow-methods=%q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got == "" {
		t.Fatalf("expected X-Log-Level to be allowed")
	}
}
