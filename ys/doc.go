// Package ys evaluates YAMLScript through libyamlscript, the engine's native
// shared library, without cgo.
//
// # Overview
//
// A [Runtime] opens the library, creates one engine isolate and evaluates
// scripts on it. Each evaluation returns the engine's result decoded from
// JSON into Go values, or an error from package
// [github.com/yaml/yamlscript-go/errors].
//
// # Basic Usage
//
//	rt, err := ys.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	v, err := rt.Load("!yamlscript/v0\nsay: inc(41)")
//	fmt.Println(v) // map[say:42]
//
// Results can be decoded into a concrete type:
//
//	type Config struct{ Port int }
//	cfg, err := ys.LoadAs[Config](rt, src)
//
// # Shared Runtime
//
// Programs that only need one isolate can use the package-level functions,
// which lazily create a process-wide runtime on first use:
//
//	v, err := ys.Load(src)
//
// The shared runtime is never torn down and a failure to create it is
// returned by every later call.
//
// # Threads
//
// An isolate is bound to the OS thread that created it. Each Runtime runs a
// worker goroutine locked to its own OS thread and hands every call to it,
// so a Runtime is safe for concurrent use and calls on it never overlap.
// Use several runtimes for parallel evaluation.
//
// # Library Location
//
// The library file is libyamlscript.so.<Version> (.dylib on macOS). It is
// searched for in every LD_LIBRARY_PATH entry, then /usr/local/lib, then
// ~/.local/lib. Use [WithLibraryPath] or [WithSearchDirs] to override.
package ys
