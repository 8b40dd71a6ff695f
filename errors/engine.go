package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// EngineError is the diagnostic record returned by libyamlscript when it
// evaluates input and rejects it.
//
// Library builds that report the structured record populate Cause, Trace and
// Type. Other builds report an arbitrary JSON value; then only Raw is set.
// Raw always holds the error value exactly as the library sent it.
type EngineError struct {
	Cause string          `json:"cause,omitempty"`
	Trace []Frame         `json:"trace,omitempty"`
	Type  string          `json:"type,omitempty"`
	Raw   json.RawMessage `json:"raw"`

	structured bool
}

// Frame is one entry of an engine stack trace, sent by the library as the
// tuple [name, kind, detail|null, line].
type Frame struct {
	Name   string
	Kind   string
	Detail *string
	Line   int
}

// UnmarshalJSON decodes the four-element tuple form.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 4 {
		return fmt.Errorf("trace frame: expected 4 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &f.Name); err != nil {
		return fmt.Errorf("trace frame name: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &f.Kind); err != nil {
		return fmt.Errorf("trace frame kind: %w", err)
	}
	if err := json.Unmarshal(tuple[2], &f.Detail); err != nil {
		return fmt.Errorf("trace frame detail: %w", err)
	}
	if err := json.Unmarshal(tuple[3], &f.Line); err != nil {
		return fmt.Errorf("trace frame line: %w", err)
	}
	return nil
}

// MarshalJSON encodes the frame back into its tuple form.
func (f Frame) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.Name, f.Kind, f.Detail, f.Line})
}

func (f Frame) String() string {
	detail := "?"
	if f.Detail != nil {
		detail = *f.Detail
	}
	return f.Name + "." + f.Kind + " (" + detail + ":" + strconv.Itoa(f.Line) + ")"
}

type structuredEngineError struct {
	Cause *string `json:"cause"`
	Trace []Frame `json:"trace"`
	Type  string  `json:"type"`
}

// ParseEngineError decodes the value of an envelope's "error" member. The
// structured record is tried first; anything else is kept opaque.
func ParseEngineError(raw json.RawMessage) *EngineError {
	ee := &EngineError{Raw: append(json.RawMessage(nil), raw...)}

	var s structuredEngineError
	if err := json.Unmarshal(raw, &s); err == nil && s.Cause != nil {
		ee.Cause = *s.Cause
		ee.Trace = s.Trace
		ee.Type = s.Type
		ee.structured = true
	}
	return ee
}

// Structured reports whether the library sent the structured record.
func (e *EngineError) Structured() bool {
	return e.structured
}

// Message returns a one-line description: the cause when structured,
// otherwise the opaque value (unquoted if it is a JSON string).
func (e *EngineError) Message() string {
	if e.Structured() {
		return e.Cause
	}
	var s string
	if err := json.Unmarshal(e.Raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, e.Raw); err != nil {
		return string(e.Raw)
	}
	return buf.String()
}

func (e *EngineError) Error() string {
	if e.Type != "" {
		return e.Type + ": " + e.Message()
	}
	return e.Message()
}
