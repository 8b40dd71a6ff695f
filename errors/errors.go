package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound    Kind = "not_found"   // library absent from every search dir
	KindLoad        Kind = "load"        // open or symbol resolution failed
	KindInit        Kind = "init"        // isolate creation failed
	KindFFI         Kind = "ffi"         // native call contract violated
	KindEngine      Kind = "engine"      // engine reported an evaluation error
	KindDeserialize Kind = "deserialize" // payload does not fit target type
	KindDecode      Kind = "decode"      // native bytes are not valid text
)

// Sentinel causes. Match them with errors.Is.
var (
	ErrNilByte           = stderrors.New("input contains a nil byte")
	ErrNullResult        = stderrors.New("returned a null pointer")
	ErrNullSymbol        = stderrors.New("symbol resolved to a null address")
	ErrMalformedEnvelope = stderrors.New("response is neither {\"data\": ...} nor {\"error\": ...}")
	ErrClosed            = stderrors.New("runtime is closed")
	ErrUnsupported       = stderrors.New("entry point not provided by this library build")
)

// Error is the structured error type used throughout yamlscript-go
type Error struct {
	Kind Kind
	// Op is the native entry point or step that failed, e.g. "load_ys_to_json".
	Op string
	// Path is the library file involved, when known.
	Path string
	// Code is the native return code for KindInit.
	Code   int
	Detail string
	// Engine is set for KindEngine.
	Engine *EngineError
	Cause  error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Kind))
	b.WriteByte(']')

	if e.Op != "" {
		b.WriteByte(' ')
		b.WriteString(e.Op)
	}

	switch {
	case e.Engine != nil:
		b.WriteString(": ")
		b.WriteString(e.Engine.Message())
	case e.Detail != "":
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Kind == KindInit {
		fmt.Fprintf(&b, " (rc=%d)", e.Code)
	}

	if e.Path != "" {
		b.WriteString(" [")
		b.WriteString(e.Path)
		b.WriteByte(']')
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind. A target with an
// empty Kind never matches.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Kind != "" && e.Kind == t.Kind
	}
	return false
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there
// is none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// AsEngine returns the engine diagnostics carried by err, if any.
func AsEngine(err error) (*EngineError, bool) {
	var e *Error
	if stderrors.As(err, &e) && e.Engine != nil {
		return e.Engine, true
	}
	return nil, false
}

// Convenience constructors

// NotFound reports that filename is absent from every searched directory.
// The message carries install guidance.
func NotFound(filename, version string, dirs []string) *Error {
	return &Error{
		Kind: KindNotFound,
		Detail: fmt.Sprintf(
			"shared library file %q not found in %s\n"+
				"Try: curl https://yamlscript.org/install | VERSION=%s LIB=1 bash\n"+
				"See: https://github.com/yaml/yamlscript/wiki/Installing-YAMLScript",
			filename, strings.Join(dirs, ", "), version),
	}
}

// Load wraps a failure to open the library or resolve one of its symbols.
func Load(op, path string, cause error) *Error {
	return &Error{
		Kind:  KindLoad,
		Op:    op,
		Path:  path,
		Cause: cause,
	}
}

// Init reports a non-zero return code from isolate creation.
func Init(op string, code int) *Error {
	return &Error{
		Kind:   KindInit,
		Op:     op,
		Code:   code,
		Detail: "failed to create isolate",
	}
}

// FFI reports a violation of the native call contract.
func FFI(op string, cause error) *Error {
	return &Error{
		Kind:  KindFFI,
		Op:    op,
		Cause: cause,
	}
}

// Engine wraps an error reported by the YAMLScript engine.
func Engine(op string, ee *EngineError) *Error {
	return &Error{
		Kind:   KindEngine,
		Op:     op,
		Engine: ee,
	}
}

// Deserialize reports that a success payload did not fit the target type.
func Deserialize(op, goType string, cause error) *Error {
	return &Error{
		Kind:   KindDeserialize,
		Op:     op,
		Detail: "decode data into " + goType,
		Cause:  cause,
	}
}

// Decode reports invalid UTF-8 in a native result.
func Decode(op string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Kind:   KindDecode,
		Op:     op,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}
