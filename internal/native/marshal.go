package native

import (
	"runtime"
	"strings"
	"unicode/utf8"
	"unsafe"

	yserrors "github.com/yaml/yamlscript-go/errors"
)

// CString returns s as a NUL-terminated buffer. Interior NUL bytes are
// rejected because the library would silently truncate the input.
func CString(s string) ([]byte, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, yserrors.ErrNilByte
	}
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return buf, nil
}

// GoString copies the NUL-terminated string at p. The memory stays owned by
// the library and is never freed here.
func GoString(p unsafe.Pointer) []byte {
	if p == nil {
		return nil
	}
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return append([]byte(nil), unsafe.Slice((*byte)(p), n)...)
}

// Call passes input to fn on the given isolate thread and returns the text it
// produced. No native call is made when input contains a NUL byte.
func Call(op string, fn StringFunc, thread unsafe.Pointer, input string) (string, error) {
	buf, err := CString(input)
	if err != nil {
		return "", yserrors.FFI(op, err)
	}

	p := fn(thread, &buf[0])
	runtime.KeepAlive(buf)

	if p == nil {
		return "", yserrors.FFI(op, yserrors.ErrNullResult)
	}

	out := GoString(p)
	if !utf8.Valid(out) {
		return "", yserrors.Decode(op, out)
	}
	return string(out), nil
}
