// Package native opens libyamlscript and exposes its entry points as typed Go
// functions. It is the only package that deals with raw symbol addresses.
package native

import (
	"sync"
	"unsafe"

	yserrors "github.com/yaml/yamlscript-go/errors"
)

// Exported symbol names of libyamlscript.
const (
	SymCreateIsolate   = "graal_create_isolate"
	SymTearDownIsolate = "graal_tear_down_isolate"
	SymLoadYSToJSON    = "load_ys_to_json"
	SymCompileYSToClj  = "compile_ys_to_clj"
)

// Native signatures. These are the binding's ABI contract with the library:
//
//	int   graal_create_isolate(graal_create_isolate_params_t*, graal_isolate_t**, graal_isolatethread_t**)
//	int   graal_tear_down_isolate(graal_isolatethread_t*)
//	char* load_ys_to_json(graal_isolatethread_t*, const char*)
//	char* compile_ys_to_clj(graal_isolatethread_t*, const char*)
type (
	CreateIsolateFunc   func(params unsafe.Pointer, isolate, thread *unsafe.Pointer) int32
	TearDownIsolateFunc func(thread unsafe.Pointer) int32
	StringFunc          func(thread unsafe.Pointer, input *byte) unsafe.Pointer
)

// EntryPoints holds the resolved functions. Optional entries are nil when the
// library build does not export them.
type EntryPoints struct {
	CreateIsolate   CreateIsolateFunc
	TearDownIsolate TearDownIsolateFunc // optional
	LoadYSToJSON    StringFunc
	CompileYSToClj  StringFunc // optional
}

// Library is an opened libyamlscript with all required entry points resolved.
// It must outlive every call made through its entry points.
type Library struct {
	path   string
	entry  EntryPoints
	closer func() error

	once     sync.Once
	closeErr error
}

// NewLibrary wraps already-resolved entry points. closer may be nil.
func NewLibrary(path string, entry EntryPoints, closer func() error) (*Library, error) {
	if entry.CreateIsolate == nil {
		return nil, yserrors.Load(SymCreateIsolate, path, yserrors.ErrNullSymbol)
	}
	if entry.LoadYSToJSON == nil {
		return nil, yserrors.Load(SymLoadYSToJSON, path, yserrors.ErrNullSymbol)
	}
	return &Library{path: path, entry: entry, closer: closer}, nil
}

// Path returns the file the library was opened from.
func (l *Library) Path() string {
	return l.path
}

// Entry returns the resolved entry points.
func (l *Library) Entry() EntryPoints {
	return l.entry
}

// Close releases the library handle. Only the first call has an effect.
func (l *Library) Close() error {
	l.once.Do(func() {
		if l.closer != nil {
			l.closeErr = l.closer()
		}
	})
	return l.closeErr
}

type symbolSource interface {
	Lookup(name string) (uintptr, error)
}
