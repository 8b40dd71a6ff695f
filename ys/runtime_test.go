package ys

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	yserrors "github.com/yaml/yamlscript-go/errors"
)

func newFakeRuntime(t *testing.T, f *FakeEngine, opts ...Option) *Runtime {
	t.Helper()
	rt, err := New(append([]Option{WithFakeEngine(f)}, opts...)...)
	if err != nil {
		t.Fatalf("failed to create runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestRuntimeLoad(t *testing.T) {
	fake := &FakeEngine{
		Load: func(code string) string {
			if code != "key: ! inc(42)" {
				return FakeError("unexpected input "+code, "Exception")
			}
			return FakeData(map[string]any{"key": 43})
		},
	}
	rt := newFakeRuntime(t, fake)

	v, err := rt.Load("key: ! inc(42)")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	m, ok := v.(map[string]any)
	if !ok || m["key"] != int64(43) {
		t.Errorf("expected key=43, got %#v", v)
	}
	if rt.State() != StateReady {
		t.Errorf("state = %s", rt.State())
	}
	if rt.LibraryPath() != FakeEnginePath {
		t.Errorf("library path = %q", rt.LibraryPath())
	}
}

func TestRuntimeLoadAs(t *testing.T) {
	type server struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	}
	fake := &FakeEngine{
		Load: func(string) string {
			return FakeData(map[string]any{"host": "localhost", "port": 8080})
		},
	}
	rt := newFakeRuntime(t, fake)

	got, err := LoadAs[server](rt, "host: localhost")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got != (server{Host: "localhost", Port: 8080}) {
		t.Errorf("got %+v", got)
	}

	if _, err := LoadAs[[]int](rt, "x"); !yserrors.IsKind(err, yserrors.KindDeserialize) {
		t.Errorf("expected deserialize error, got %v", err)
	}
}

func TestRuntimeLoadRaw(t *testing.T) {
	fake := &FakeEngine{Load: func(string) string { return `{"data":[1,2]}` }}
	rt := newFakeRuntime(t, fake)

	raw, err := rt.LoadRaw("- 1\n- 2")
	if err != nil {
		t.Fatalf("load raw failed: %v", err)
	}
	if raw != `{"data":[1,2]}` {
		t.Errorf("got %q", raw)
	}
}

func TestRuntimeEngineError(t *testing.T) {
	fake := &FakeEngine{
		Load: func(string) string { return FakeError("Unexpected token ':'", "clojure.lang.ExceptionInfo") },
	}
	rt := newFakeRuntime(t, fake)

	_, err := rt.Load(": : : :")
	if !yserrors.IsKind(err, yserrors.KindEngine) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Unexpected token") {
		t.Errorf("error should carry the engine cause: %v", err)
	}
}

func TestRuntimeNilByteNeverReachesEngine(t *testing.T) {
	fake := &FakeEngine{}
	rt := newFakeRuntime(t, fake)

	_, err := rt.Load("a: 1\x00b: 2")
	if !yserrors.IsKind(err, yserrors.KindFFI) || !errors.Is(err, yserrors.ErrNilByte) {
		t.Fatalf("expected nil byte error, got %v", err)
	}
	if fake.Calls() != 0 {
		t.Errorf("engine was called %d times", fake.Calls())
	}

	if _, err := rt.Load("a: 1"); err != nil {
		t.Fatalf("runtime should stay usable: %v", err)
	}
	if fake.Calls() != 1 {
		t.Errorf("expected one call, got %d", fake.Calls())
	}
}

func TestRuntimeNullResult(t *testing.T) {
	rt := newFakeRuntime(t, &FakeEngine{NullResult: true})

	_, err := rt.Load("x")
	if !yserrors.IsKind(err, yserrors.KindFFI) || !errors.Is(err, yserrors.ErrNullResult) {
		t.Fatalf("expected null result error, got %v", err)
	}
}

func TestRuntimeCompile(t *testing.T) {
	fake := &FakeEngine{
		Compile: func(code string) string { return `{"clojure":"(say \"hi\")"}` },
	}
	rt := newFakeRuntime(t, fake)

	if caps := rt.Capabilities(); !caps.Compile || !caps.TearDown {
		t.Errorf("unexpected capabilities: %+v", caps)
	}

	clj, err := rt.Compile("say: 'hi'")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if clj != `(say "hi")` {
		t.Errorf("got %q", clj)
	}
}

func TestRuntimeCompileUnsupported(t *testing.T) {
	fake := &FakeEngine{}
	rt := newFakeRuntime(t, fake)

	if rt.Capabilities().Compile {
		t.Error("compile should be unavailable")
	}

	_, err := rt.Compile("x")
	if !yserrors.IsKind(err, yserrors.KindLoad) || !errors.Is(err, yserrors.ErrUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	if fake.Calls() != 0 {
		t.Error("no native call expected")
	}
}

func TestRuntimeInitFailure(t *testing.T) {
	fake := &FakeEngine{CreateRC: 7}

	_, err := New(WithFakeEngine(fake))
	if !yserrors.IsKind(err, yserrors.KindInit) {
		t.Fatalf("expected init error, got %v", err)
	}

	var e *yserrors.Error
	if !errors.As(err, &e) || e.Code != 7 {
		t.Errorf("expected rc 7, got %v", err)
	}
	if fake.LibraryCloses() != 1 {
		t.Errorf("library should be closed after init failure, closes=%d", fake.LibraryCloses())
	}
}

func TestRuntimeCloseIdempotent(t *testing.T) {
	fake := &FakeEngine{}
	rt, err := New(WithFakeEngine(fake))
	if err != nil {
		t.Fatalf("failed to create runtime: %v", err)
	}

	if err := rt.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	created, tornDown := fake.Isolates()
	if created != 1 || tornDown != 1 {
		t.Errorf("created=%d tornDown=%d", created, tornDown)
	}
	if fake.LibraryCloses() != 1 {
		t.Errorf("library closes = %d", fake.LibraryCloses())
	}
	if fake.WrongThread() {
		t.Error("teardown received a foreign thread handle")
	}
	if rt.State() != StateTornDown {
		t.Errorf("state = %s", rt.State())
	}
}

func TestRuntimeCallAfterClose(t *testing.T) {
	fake := &FakeEngine{}
	rt, err := New(WithFakeEngine(fake))
	if err != nil {
		t.Fatalf("failed to create runtime: %v", err)
	}
	rt.Close()

	_, err = rt.Load("a: 1")
	if !yserrors.IsKind(err, yserrors.KindFFI) || !errors.Is(err, yserrors.ErrClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	if _, err := rt.LoadRaw("a: 1"); !errors.Is(err, yserrors.ErrClosed) {
		t.Errorf("expected closed error from LoadRaw, got %v", err)
	}
	if fake.Calls() != 0 {
		t.Errorf("engine called after close: %d", fake.Calls())
	}
}

func TestRuntimeTearDownFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fake := &FakeEngine{TearDownRC: 3}

	rt, err := New(WithFakeEngine(fake), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("failed to create runtime: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("teardown failure must not be returned: %v", err)
	}

	entries := logs.FilterMessage("isolate teardown failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one warning, got %d", len(entries))
	}
	if rc, ok := entries[0].ContextMap()["rc"]; !ok || rc != int32(3) {
		t.Errorf("expected rc=3 field, got %v", entries[0].ContextMap())
	}
}

func TestRuntimeWithoutTearDown(t *testing.T) {
	fake := &FakeEngine{NoTearDown: true}
	rt, err := New(WithFakeEngine(fake))
	if err != nil {
		t.Fatalf("failed to create runtime: %v", err)
	}
	if rt.Capabilities().TearDown {
		t.Error("teardown should be unavailable")
	}

	rt.Close()
	if _, tornDown := fake.Isolates(); tornDown != 0 {
		t.Errorf("teardown called %d times", tornDown)
	}
	if fake.LibraryCloses() != 1 {
		t.Errorf("library closes = %d", fake.LibraryCloses())
	}
}

func TestRuntimeConcurrentCalls(t *testing.T) {
	fake := &FakeEngine{
		Load: func(code string) string { return FakeData(code) },
	}
	rt := newFakeRuntime(t, fake)

	const n = 64
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := strings.Repeat("x", i+1)
			v, err := rt.Load(want)
			if err != nil {
				errs <- err
				return
			}
			if v != want {
				errs <- errors.New("result mixed up between calls")
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if fake.Overlapped() {
		t.Error("calls on one runtime overlapped")
	}
	if fake.WrongThread() {
		t.Error("call received a foreign thread handle")
	}
	if fake.Calls() != n {
		t.Errorf("calls = %d, want %d", fake.Calls(), n)
	}
}

func TestRuntimeCloseWhileCalling(t *testing.T) {
	fake := &FakeEngine{}
	rt, err := New(WithFakeEngine(fake))
	if err != nil {
		t.Fatalf("failed to create runtime: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := rt.Load("a: 1")
				if err != nil && !errors.Is(err, yserrors.ErrClosed) {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}()
	}

	rt.Close()
	wg.Wait()

	if created, tornDown := fake.Isolates(); created != 1 || tornDown != 1 {
		t.Errorf("created=%d tornDown=%d", created, tornDown)
	}
}

func TestRuntimeLoadKeepsIntegersExact(t *testing.T) {
	fake := &FakeEngine{Load: func(string) string {
		return `{"data":{"key":43,"big":9007199254740993,"ratio":0.5}}`
	}}
	rt := newFakeRuntime(t, fake)

	v, err := rt.Load("x")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	m := v.(map[string]any)
	if m["key"] != int64(43) {
		t.Errorf("key = %#v, want int64(43)", m["key"])
	}
	if m["big"] != int64(9007199254740993) {
		t.Errorf("big = %#v, want int64(9007199254740993)", m["big"])
	}
	if m["ratio"] != 0.5 {
		t.Errorf("ratio = %#v, want 0.5", m["ratio"])
	}
}

func TestRuntimeUseNumber(t *testing.T) {
	fake := &FakeEngine{Load: func(string) string { return `{"data":9007199254740993}` }}
	rt := newFakeRuntime(t, fake, WithUseNumber())

	v, err := rt.Load("x")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if n, ok := v.(interface{ String() string }); !ok || n.String() != "9007199254740993" {
		t.Errorf("expected exact number, got %#v", v)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateUninitialized: "uninitialized",
		StateInitializing:  "initializing",
		StateReady:         "ready",
		StateTornDown:      "torn_down",
		State(99):          "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d: got %q, want %q", s, s.String(), want)
		}
	}
}

func TestDefaultSearchDirs(t *testing.T) {
	t.Setenv("LD_LIBRARY_PATH", "/opt/ys/lib")

	dirs := DefaultSearchDirs()
	if len(dirs) < 2 || dirs[0] != "/opt/ys/lib" || dirs[1] != "/usr/local/lib" {
		t.Errorf("dirs = %v", dirs)
	}
}
