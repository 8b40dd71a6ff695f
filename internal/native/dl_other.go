//go:build !linux && !darwin

package native

import (
	"fmt"
	"runtime"
)

var errUnsupportedOS = fmt.Errorf("loading libyamlscript is not supported on %s", runtime.GOOS)

func dlopen(path string) (uintptr, error) {
	return 0, errUnsupportedOS
}

func dlclose(handle uintptr) error {
	return nil
}

type dlSymbols uintptr

func (h dlSymbols) Lookup(name string) (uintptr, error) {
	return 0, errUnsupportedOS
}

func resolve(src symbolSource, path string) (EntryPoints, error) {
	return EntryPoints{}, errUnsupportedOS
}
