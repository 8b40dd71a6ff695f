// Package errors provides the structured error type returned by every
// yamlscript-go operation.
//
// Errors are categorized by Kind, which tells the caller what went wrong and
// what to fix:
//
//   - [KindNotFound]: libyamlscript is not installed in any search directory
//   - [KindLoad]: the library exists but could not be opened, or a required
//     symbol is missing
//   - [KindInit]: creating the GraalVM isolate returned a non-zero code
//   - [KindFFI]: the native call contract was violated (NUL byte in input,
//     null result, malformed response, call after Close)
//   - [KindEngine]: the YAMLScript engine evaluated the input and rejected it
//   - [KindDeserialize]: the result does not fit the requested Go type
//   - [KindDecode]: the engine returned bytes that are not valid UTF-8
//
// Use [IsKind] or errors.Is with an [Error] carrying only a Kind to branch on
// the category, and [AsEngine] to reach the engine's structured diagnostics:
//
//	data, err := rt.Load(src)
//	if ee, ok := errors.AsEngine(err); ok {
//		fmt.Println(ee.Cause)
//		for _, f := range ee.Trace {
//			fmt.Println(f)
//		}
//	}
package errors
