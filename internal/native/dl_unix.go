//go:build linux || darwin

package native

import (
	"github.com/ebitengine/purego"
)

func dlopen(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
}

func dlclose(handle uintptr) error {
	return purego.Dlclose(handle)
}

type dlSymbols uintptr

func (h dlSymbols) Lookup(name string) (uintptr, error) {
	return purego.Dlsym(uintptr(h), name)
}
