//go:build linux || darwin

package native

import (
	"github.com/ebitengine/purego"

	yserrors "github.com/yaml/yamlscript-go/errors"
)

// resolve binds every entry point. Missing required symbols fail the whole
// resolution; missing optional ones leave their field nil.
func resolve(src symbolSource, path string) (EntryPoints, error) {
	var entry EntryPoints

	if err := bind(src, path, SymCreateIsolate, &entry.CreateIsolate); err != nil {
		return EntryPoints{}, err
	}
	if err := bind(src, path, SymLoadYSToJSON, &entry.LoadYSToJSON); err != nil {
		return EntryPoints{}, err
	}

	if err := bind(src, path, SymTearDownIsolate, &entry.TearDownIsolate); err != nil {
		entry.TearDownIsolate = nil
	}
	if err := bind(src, path, SymCompileYSToClj, &entry.CompileYSToClj); err != nil {
		entry.CompileYSToClj = nil
	}

	return entry, nil
}

// bind looks up name and makes fn call it. F must be a func type matching the
// native signature exactly; a mismatch is undefined behavior, not an error.
func bind[F any](src symbolSource, path, name string, fn *F) error {
	addr, err := src.Lookup(name)
	if err != nil {
		return yserrors.Load(name, path, err)
	}
	if addr == 0 {
		return yserrors.Load(name, path, yserrors.ErrNullSymbol)
	}
	purego.RegisterFunc(fn, addr)
	return nil
}
