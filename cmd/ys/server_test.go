package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/yaml/yamlscript-go/ys"
)

func setupTestServer(t *testing.T, fake *ys.FakeEngine, maxSessions int) (*server, *httptest.Server) {
	t.Helper()

	metrics, err := ys.NewMetrics("ys_test")
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	open := func() (*ys.Runtime, error) {
		return ys.New(ys.WithFakeEngine(fake), ys.WithMetrics(metrics))
	}

	srv, err := newServer(open, metrics, 15*time.Minute, maxSessions, 1024*1024, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	ts := httptest.NewServer(srv.handler())
	t.Cleanup(func() {
		ts.Close()
		srv.close()
	})
	return srv, ts
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := setupTestServer(t, &ys.FakeEngine{}, 0)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "ok" {
		t.Errorf("expected 'ok', got %q", body)
	}
}

func TestLoadEndpoint(t *testing.T) {
	fake := &ys.FakeEngine{Load: func(code string) string {
		if code != "!yamlscript/v0/data\nkey: ! inc(42)" {
			return ys.FakeError("unexpected "+code, "Exception")
		}
		return ys.FakeData(map[string]any{"key": 43})
	}}
	_, ts := setupTestServer(t, fake, 0)

	resp := post(t, ts.URL+"/load", `{"code": "key: ! inc(42)", "mode": "data"}`)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status 200, got %d: %s", resp.StatusCode, body)
	}

	var got loadResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if m, ok := got.Data.(map[string]any); !ok || m["key"] != 43.0 {
		t.Errorf("unexpected data: %#v", got.Data)
	}
}

func TestLoadEndpointErrors(t *testing.T) {
	fake := &ys.FakeEngine{Load: func(string) string {
		return ys.FakeError("Unexpected token ':'", "clojure.lang.ExceptionInfo")
	}}
	_, ts := setupTestServer(t, fake, 0)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKind string
	}{
		{"invalid json", `{"code":`, http.StatusBadRequest, ""},
		{"missing code", `{}`, http.StatusBadRequest, ""},
		{"bad mode", `{"code":"a","mode":"script"}`, http.StatusBadRequest, ""},
		{"nil byte", `{"code":"a\u0000b"}`, http.StatusBadRequest, "ffi"},
		{"engine error", `{"code":": : : :"}`, http.StatusUnprocessableEntity, "engine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts.URL+"/load", tt.body)
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if tt.wantKind == "" {
				return
			}

			var got errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", got.Kind, tt.wantKind)
			}
			if tt.wantKind == "engine" && (got.Engine == nil || got.Engine.Cause != "Unexpected token ':'") {
				t.Errorf("expected engine details, got %+v", got.Engine)
			}
		})
	}
}

func TestLoadEndpointMethod(t *testing.T) {
	_, ts := setupTestServer(t, &ys.FakeEngine{}, 0)

	resp, err := http.Get(ts.URL + "/load")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestCompileEndpoint(t *testing.T) {
	fake := &ys.FakeEngine{Compile: func(string) string { return `{"clojure":"(inc 41)"}` }}
	_, ts := setupTestServer(t, fake, 0)

	resp := post(t, ts.URL+"/compile", `{"code":"inc(41)","mode":"code"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var got compileResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Clojure != "(inc 41)" {
		t.Errorf("got %q", got.Clojure)
	}
}

func TestCompileEndpointUnsupported(t *testing.T) {
	_, ts := setupTestServer(t, &ys.FakeEngine{}, 0)

	resp := post(t, ts.URL+"/compile", `{"code":"inc(41)"}`)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", resp.StatusCode)
	}
}

func TestSessionLifecycle(t *testing.T) {
	fake := &ys.FakeEngine{Load: func(code string) string { return ys.FakeData(code) }}
	srv, ts := setupTestServer(t, fake, 0)

	resp := post(t, ts.URL+"/sessions", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var created createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.SessionID == "" {
		t.Fatal("expected non-empty session ID")
	}

	resp = post(t, ts.URL+"/sessions/"+created.SessionID+"/load", `{"code":"x: 1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session load: status %d", resp.StatusCode)
	}
	var got loadResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Data != "x: 1" {
		t.Errorf("got %#v", got.Data)
	}

	// Shared runtime plus one session runtime.
	if n, _ := fake.Isolates(); n != 2 {
		t.Errorf("isolates created = %d, want 2", n)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+created.SessionID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", delResp.StatusCode)
	}
	if srv.sessions.count() != 0 {
		t.Errorf("sessions = %d after delete", srv.sessions.count())
	}
	if _, tornDown := fake.Isolates(); tornDown != 1 {
		t.Errorf("isolates torn down = %d, want 1", tornDown)
	}

	resp = post(t, ts.URL+"/sessions/"+created.SessionID+"/load", `{"code":"x: 1"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("load on deleted session: expected 404, got %d", resp.StatusCode)
	}
}

func TestSessionLimit(t *testing.T) {
	_, ts := setupTestServer(t, &ys.FakeEngine{}, 1)

	if resp := post(t, ts.URL+"/sessions", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("first session: status %d", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/sessions", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("second session: expected 503, got %d", resp.StatusCode)
	}
}

func TestSessionLimitConcurrent(t *testing.T) {
	fake := &ys.FakeEngine{}
	sm := newSessionManager(time.Minute, 2)
	defer sm.closeAll()

	open := func() (*ys.Runtime, error) {
		time.Sleep(20 * time.Millisecond)
		return ys.New(ys.WithFakeEngine(fake))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	created, rejected := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sm.create(open)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, errTooManySessions):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 2 || rejected != 8 {
		t.Errorf("created %d, rejected %d; want 2 and 8", created, rejected)
	}
	if n := sm.count(); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
	if made, _ := fake.Isolates(); made != 2 {
		t.Errorf("isolates created = %d, want 2", made)
	}
}

func TestSessionOpenFailureReleasesSlot(t *testing.T) {
	sm := newSessionManager(time.Minute, 1)
	defer sm.closeAll()

	boom := errors.New("boom")
	if _, err := sm.create(func() (*ys.Runtime, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected open error, got %v", err)
	}

	fake := &ys.FakeEngine{}
	if _, err := sm.create(func() (*ys.Runtime, error) { return ys.New(ys.WithFakeEngine(fake)) }); err != nil {
		t.Fatalf("slot was not released: %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	fake := &ys.FakeEngine{}
	sm := newSessionManager(time.Minute, 0)
	defer sm.closeAll()

	open := func() (*ys.Runtime, error) { return ys.New(ys.WithFakeEngine(fake)) }
	oldID, err := sm.create(open)
	if err != nil {
		t.Fatal(err)
	}
	newID, err := sm.create(open)
	if err != nil {
		t.Fatal(err)
	}

	sm.mu.Lock()
	sm.sessions[oldID].lastUsed = time.Now().Add(-2 * time.Minute)
	sm.mu.Unlock()

	if n := sm.expire(time.Now()); n != 1 {
		t.Fatalf("expired %d sessions, want 1", n)
	}
	if _, ok := sm.get(oldID); ok {
		t.Error("expired session still present")
	}
	if _, ok := sm.get(newID); !ok {
		t.Error("fresh session was expired")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	fake := &ys.FakeEngine{Load: func(string) string { return ys.FakeData(1) }}
	_, ts := setupTestServer(t, fake, 0)

	post(t, ts.URL+"/load", `{"code":"a"}`)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{`ys_test_calls_total{operation="load",outcome="ok"} 1`, "ys_test_isolates 1"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
