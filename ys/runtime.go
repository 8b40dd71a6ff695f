package ys

import (
	"runtime"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/zap"

	yserrors "github.com/yaml/yamlscript-go/errors"
	"github.com/yaml/yamlscript-go/internal/native"
)

// Version is the libyamlscript release this package binds to. Only
// libyamlscript.<so|dylib>.<Version> is ever opened.
const Version = "0.1.95"

// Operation names used in errors and metrics.
const (
	OpLoad    = "load"
	OpLoadRaw = "load_raw"
	OpCompile = "compile"
)

// State is the lifecycle state of a Runtime.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

// Capabilities reports which optional entry points the library exports.
type Capabilities struct {
	Compile  bool `json:"compile"`
	TearDown bool `json:"teardown"`
}

// Runtime owns an opened libyamlscript and one isolate on it.
type Runtime struct {
	lib       *native.Library
	log       *zap.Logger
	metrics   *Metrics
	useNumber bool
	shared    bool

	calls chan call
	done  chan struct{}

	mu    sync.RWMutex
	state State
}

type call struct {
	op    string
	fn    native.StringFunc
	input string
	reply chan<- callResult
}

type callResult struct {
	out string
	err error
}

// New opens libyamlscript and creates an isolate on it.
func New(opts ...Option) (*Runtime, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	log := cfg.logger
	if log == nil {
		log = Logger()
	}

	r := &Runtime{
		log:       log,
		metrics:   cfg.metrics,
		useNumber: cfg.useNumber,
		calls:     make(chan call),
		done:      make(chan struct{}),
		state:     StateInitializing,
	}

	lib, err := cfg.openLibrary()
	if err != nil {
		return nil, err
	}
	r.lib = lib
	log.Debug("opened libyamlscript",
		zap.String("path", lib.Path()),
		zap.Bool("compile", lib.Entry().CompileYSToClj != nil),
		zap.Bool("teardown", lib.Entry().TearDownIsolate != nil))

	ready := make(chan error, 1)
	go r.serve(ready)

	if err := <-ready; err != nil {
		if cerr := lib.Close(); cerr != nil {
			log.Warn("close library", zap.String("path", lib.Path()), zap.Error(cerr))
		}
		return nil, err
	}

	r.state = StateReady
	r.metrics.isolateCreated()
	log.Debug("isolate ready", zap.String("path", lib.Path()))
	return r, nil
}

// serve owns the isolate. It runs on a locked OS thread for the isolate's
// whole life and never unlocks it: the thread stays attached to the isolate
// and is discarded when the goroutine exits.
func (r *Runtime) serve(ready chan<- error) {
	runtime.LockOSThread()
	defer close(r.done)

	entry := r.lib.Entry()

	var isolate, thread unsafe.Pointer
	if rc := entry.CreateIsolate(nil, &isolate, &thread); rc != 0 {
		ready <- yserrors.Init(native.SymCreateIsolate, int(rc))
		return
	}
	ready <- nil

	for c := range r.calls {
		out, err := native.Call(c.op, c.fn, thread, c.input)
		c.reply <- callResult{out: out, err: err}
	}

	if entry.TearDownIsolate == nil {
		return
	}
	if rc := entry.TearDownIsolate(thread); rc != 0 {
		r.log.Warn("isolate teardown failed",
			zap.String("symbol", native.SymTearDownIsolate),
			zap.Int32("rc", rc))
	}
}

// invoke hands input to the worker and waits for the native result.
func (r *Runtime) invoke(symbol string, fn native.StringFunc, input string) (string, error) {
	reply := make(chan callResult, 1)

	r.mu.RLock()
	if r.state != StateReady {
		r.mu.RUnlock()
		return "", yserrors.FFI(symbol, yserrors.ErrClosed)
	}
	r.calls <- call{op: symbol, fn: fn, input: input, reply: reply}
	r.mu.RUnlock()

	res := <-reply
	return res.out, res.err
}

// LoadRaw evaluates code and returns the engine's JSON reply undecoded.
func (r *Runtime) LoadRaw(code string) (string, error) {
	start := time.Now()
	out, err := r.invoke(native.SymLoadYSToJSON, r.lib.Entry().LoadYSToJSON, code)
	r.metrics.RecordCall(OpLoadRaw, err, time.Since(start))
	return out, err
}

// LoadInto evaluates code and decodes the result into v, which must be a
// non-nil pointer.
func (r *Runtime) LoadInto(code string, v any) error {
	start := time.Now()
	err := r.loadInto(code, v)
	r.metrics.RecordCall(OpLoad, err, time.Since(start))
	return err
}

func (r *Runtime) loadInto(code string, v any) error {
	raw, err := r.invoke(native.SymLoadYSToJSON, r.lib.Entry().LoadYSToJSON, code)
	if err != nil {
		return err
	}
	return decodeLoad(native.SymLoadYSToJSON, raw, v, r.useNumber)
}

// Load evaluates code and returns the result as generic Go values: maps,
// slices, strings, bools and nil. Integers come back as int64 (uint64 past
// the int64 range) and other numbers as float64. With WithUseNumber every
// number is a json.Number.
func (r *Runtime) Load(code string) (any, error) {
	var v any
	if err := r.LoadInto(code, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// LoadAs evaluates code and decodes the result into a T.
func LoadAs[T any](r *Runtime, code string) (T, error) {
	var v T
	if err := r.LoadInto(code, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Compile returns the Clojure code the engine compiles code to. It fails
// with ErrUnsupported when the library does not export compile_ys_to_clj.
func (r *Runtime) Compile(code string) (string, error) {
	start := time.Now()
	clj, err := r.compile(code)
	r.metrics.RecordCall(OpCompile, err, time.Since(start))
	return clj, err
}

func (r *Runtime) compile(code string) (string, error) {
	fn := r.lib.Entry().CompileYSToClj
	if fn == nil {
		return "", yserrors.Load(native.SymCompileYSToClj, r.lib.Path(), yserrors.ErrUnsupported)
	}
	raw, err := r.invoke(native.SymCompileYSToClj, fn, code)
	if err != nil {
		return "", err
	}
	return decodeCompile(native.SymCompileYSToClj, raw)
}

// Capabilities reports the optional entry points available.
func (r *Runtime) Capabilities() Capabilities {
	entry := r.lib.Entry()
	return Capabilities{
		Compile:  entry.CompileYSToClj != nil,
		TearDown: entry.TearDownIsolate != nil,
	}
}

// LibraryPath returns the file the library was opened from.
func (r *Runtime) LibraryPath() string {
	return r.lib.Path()
}

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Close tears down the isolate and closes the library. Calls in flight
// complete first; later calls fail with ErrClosed. Teardown failures are
// logged, not returned. Close is a no-op on the shared runtime and after the
// first call.
func (r *Runtime) Close() error {
	if r.shared {
		return nil
	}

	r.mu.Lock()
	if r.state != StateReady {
		r.mu.Unlock()
		return nil
	}
	r.state = StateTornDown
	close(r.calls)
	r.mu.Unlock()

	<-r.done

	if err := r.lib.Close(); err != nil {
		r.log.Warn("close library", zap.String("path", r.lib.Path()), zap.Error(err))
	}
	r.metrics.isolateClosed()
	r.log.Debug("isolate torn down", zap.String("path", r.lib.Path()))
	return nil
}
