package ys

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	yserrors "github.com/yaml/yamlscript-go/errors"
)

// envelope is the engine's reply: exactly one of data or error. Compile
// replies carry the Clojure source under "clojure" instead of "data".
type envelope struct {
	fields map[string]json.RawMessage
}

func parseEnvelope(op, raw string) (envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return envelope{}, yserrors.FFI(op, fmt.Errorf("%w: %v", yserrors.ErrMalformedEnvelope, err))
	}
	return envelope{fields: fields}, nil
}

// get returns the value under key. A JSON null error counts as absent.
func (e envelope) get(key string) (json.RawMessage, bool) {
	v, ok := e.fields[key]
	if ok && key == "error" && bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, ok
}

// decode stores the payload under dataKey in v, or returns the engine error.
func (e envelope) decode(op, dataKey string, v any, useNumber bool) error {
	data, hasData := e.get(dataKey)
	errRaw, hasErr := e.get("error")

	switch {
	case hasData && hasErr:
		return yserrors.FFI(op, fmt.Errorf("%w: both %q and \"error\" present", yserrors.ErrMalformedEnvelope, dataKey))
	case hasErr:
		return yserrors.Engine(op, yserrors.ParseEngineError(errRaw))
	case !hasData:
		return yserrors.FFI(op, fmt.Errorf("%w: neither %q nor \"error\" present", yserrors.ErrMalformedEnvelope, dataKey))
	}

	// Generic targets always see exact numbers; integers must not pass
	// through float64.
	generic, isGeneric := v.(*any)
	dec := json.NewDecoder(bytes.NewReader(data))
	if useNumber || isGeneric {
		dec.UseNumber()
	}
	if err := dec.Decode(v); err != nil {
		return yserrors.Deserialize(op, fmt.Sprintf("%T", v), err)
	}
	if isGeneric && !useNumber {
		*generic = exactNumbers(*generic)
	}
	return nil
}

// exactNumbers replaces each json.Number in v with an int64 (or uint64 above
// the int64 range) when it is integral, otherwise with a float64.
func exactNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(x.String(), 10, 64); err == nil {
			return u
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, e := range x {
			x[k] = exactNumbers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = exactNumbers(e)
		}
		return x
	default:
		return v
	}
}

// decodeLoad decodes a load_ys_to_json reply into v.
func decodeLoad(op, raw string, v any, useNumber bool) error {
	env, err := parseEnvelope(op, raw)
	if err != nil {
		return err
	}
	return env.decode(op, "data", v, useNumber)
}

// decodeCompile decodes a compile_ys_to_clj reply. Library builds differ in
// whether the source is under "clojure" or "data".
func decodeCompile(op, raw string) (string, error) {
	env, err := parseEnvelope(op, raw)
	if err != nil {
		return "", err
	}
	key := "data"
	if _, ok := env.get("clojure"); ok {
		key = "clojure"
	}
	var clj string
	if err := env.decode(op, key, &clj, false); err != nil {
		return "", err
	}
	return clj, nil
}
