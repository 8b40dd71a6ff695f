package ys

import (
	"encoding/json"
	"sync"
	"unsafe"

	"github.com/yaml/yamlscript-go/internal/native"
)

// FakeEnginePath is the LibraryPath reported by runtimes on a FakeEngine.
const FakeEnginePath = "fake:libyamlscript"

// FakeEngine stands in for libyamlscript so code built on this package can be
// tested without the native library. Its entry points run in-process and
// follow the same calling convention as the real ones.
//
//	fake := &ys.FakeEngine{
//	    Load: func(code string) string { return `{"data":{"a":1}}` },
//	}
//	rt, err := ys.New(ys.WithFakeEngine(fake))
type FakeEngine struct {
	// Load returns the raw JSON reply for code. Nil replies {"data":null}.
	Load func(code string) string
	// Compile returns the raw JSON reply for compile_ys_to_clj. Nil means
	// the entry point is not exported.
	Compile func(code string) string
	// NullResult makes every call return a null pointer.
	NullResult bool
	// CreateRC and TearDownRC are the isolate create and teardown return codes.
	CreateRC   int32
	TearDownRC int32
	// NoTearDown leaves graal_tear_down_isolate unexported.
	NoTearDown bool

	// thread is the address handed out as the isolate thread.
	thread byte

	mu        sync.Mutex
	calls     int
	creates   int
	teardowns int
	closes    int
	inflight  int
	overlap   bool
	wrongTh   bool
}

// FakeData returns a reply carrying v as data.
func FakeData(v any) string {
	b, err := json.Marshal(map[string]any{"data": v})
	if err != nil {
		panic(err)
	}
	return string(b)
}

// FakeError returns a structured engine error reply.
func FakeError(cause, typ string) string {
	b, err := json.Marshal(map[string]any{
		"error": map[string]any{
			"cause": cause,
			"type":  typ,
			"trace": [][]any{{"sci.impl.analyzer", "analyze", nil, 1}},
		},
	})
	if err != nil {
		panic(err)
	}
	return string(b)
}

// WithFakeEngine makes the runtime use f instead of opening libyamlscript.
func WithFakeEngine(f *FakeEngine) Option {
	return func(c *config) {
		c.open = f.library
	}
}

func (f *FakeEngine) library() (*native.Library, error) {
	entry := native.EntryPoints{
		CreateIsolate: f.createIsolate,
		LoadYSToJSON: f.entry(func(code string) string {
			if f.Load == nil {
				return `{"data":null}`
			}
			return f.Load(code)
		}),
	}
	if !f.NoTearDown {
		entry.TearDownIsolate = f.tearDown
	}
	if f.Compile != nil {
		entry.CompileYSToClj = f.entry(f.Compile)
	}

	return native.NewLibrary(FakeEnginePath, entry, func() error {
		f.mu.Lock()
		f.closes++
		f.mu.Unlock()
		return nil
	})
}

func (f *FakeEngine) createIsolate(params unsafe.Pointer, isolate, thread *unsafe.Pointer) int32 {
	f.mu.Lock()
	f.creates++
	f.mu.Unlock()

	if f.CreateRC != 0 {
		return f.CreateRC
	}
	*isolate = unsafe.Pointer(&f.thread)
	*thread = unsafe.Pointer(&f.thread)
	return 0
}

func (f *FakeEngine) tearDown(thread unsafe.Pointer) int32 {
	f.mu.Lock()
	f.teardowns++
	if thread != unsafe.Pointer(&f.thread) {
		f.wrongTh = true
	}
	f.mu.Unlock()
	return f.TearDownRC
}

func (f *FakeEngine) entry(reply func(string) string) native.StringFunc {
	return func(thread unsafe.Pointer, input *byte) unsafe.Pointer {
		f.mu.Lock()
		f.calls++
		f.inflight++
		if f.inflight > 1 {
			f.overlap = true
		}
		if thread != unsafe.Pointer(&f.thread) {
			f.wrongTh = true
		}
		f.mu.Unlock()

		defer func() {
			f.mu.Lock()
			f.inflight--
			f.mu.Unlock()
		}()

		if f.NullResult {
			return nil
		}
		out := append([]byte(reply(string(native.GoString(unsafe.Pointer(input))))), 0)
		return unsafe.Pointer(&out[0])
	}
}

// Calls returns the number of native string calls made.
func (f *FakeEngine) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Isolates returns how many isolates were created and torn down.
func (f *FakeEngine) Isolates() (created, tornDown int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.teardowns
}

// LibraryCloses returns how many times a library handle was closed.
func (f *FakeEngine) LibraryCloses() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Overlapped reports whether two calls ever ran at the same time.
func (f *FakeEngine) Overlapped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlap
}

// WrongThread reports whether any call received a thread handle the fake
// did not hand out.
func (f *FakeEngine) WrongThread() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wrongTh
}
