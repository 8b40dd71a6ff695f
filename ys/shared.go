package ys

import "sync"

// lazyRuntime creates a runtime on first use and remembers the outcome.
type lazyRuntime struct {
	once sync.Once
	opts []Option
	rt   *Runtime
	err  error
}

func (l *lazyRuntime) get() (*Runtime, error) {
	l.once.Do(func() {
		l.rt, l.err = New(l.opts...)
		if l.err == nil {
			l.rt.shared = true
		}
	})
	return l.rt, l.err
}

var sharedRuntime = &lazyRuntime{}

// Shared returns the process-wide runtime, creating it with default options
// on first use. A creation failure is remembered and returned by every call.
// The shared runtime is never torn down; its Close is a no-op.
func Shared() (*Runtime, error) {
	return sharedRuntime.get()
}

// Load evaluates code on the shared runtime.
func Load(code string) (any, error) {
	rt, err := Shared()
	if err != nil {
		return nil, err
	}
	return rt.Load(code)
}

// LoadInto evaluates code on the shared runtime and decodes the result into v.
func LoadInto(code string, v any) error {
	rt, err := Shared()
	if err != nil {
		return err
	}
	return rt.LoadInto(code, v)
}

// Compile compiles code to Clojure on the shared runtime.
func Compile(code string) (string, error) {
	rt, err := Shared()
	if err != nil {
		return "", err
	}
	return rt.Compile(code)
}
