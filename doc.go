// Package yamlscript binds Go programs to libyamlscript, the native shared
// library build of the YAMLScript engine.
//
// # Overview
//
// The library is loaded at run time with dlopen, so building this module
// needs no C toolchain. Each evaluation passes a YAMLScript source string to
// the engine and decodes the JSON reply into Go values.
//
// # Basic Usage
//
//	rt, _ := ys.New()
//	defer rt.Close()
//
//	// Generic values
//	v, err := rt.Load("!yamlscript/v0/data\nkey: ! inc(42)")
//	fmt.Println(v) // map[key:43]
//
//	// Typed values
//	cfg, err := ys.LoadAs[Config](rt, src)
//
//	// Process-wide runtime
//	v, err := ys.Load(src)
//
// # Errors
//
// Every failure is an *errors.Error with a Kind. Engine diagnostics are
// available through errors.AsEngine:
//
//	if ee, ok := errors.AsEngine(err); ok {
//	    fmt.Println(ee.Cause)
//	}
//
// See the [ys], [errors], [mode], and [format] packages for detailed API
// documentation, and cmd/ys for the command line tool.
package yamlscript
