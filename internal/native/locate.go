package native

import (
	"os"
	"path/filepath"
	"runtime"

	yserrors "github.com/yaml/yamlscript-go/errors"
)

// Filename returns the versioned library file name for this platform,
// e.g. "libyamlscript.so.0.1.95".
func Filename(version string) string {
	ext := "so"
	if runtime.GOOS == "darwin" {
		ext = "dylib"
	}
	return "libyamlscript." + ext + "." + version
}

// SearchDirs returns the directories probed for the library, in order:
// every entry of LD_LIBRARY_PATH, then /usr/local/lib, then ~/.local/lib.
func SearchDirs() []string {
	var dirs []string
	for _, dir := range filepath.SplitList(os.Getenv("LD_LIBRARY_PATH")) {
		if dir != "" {
			dirs = append(dirs, dir)
		}
	}
	dirs = append(dirs, "/usr/local/lib")
	if home := os.Getenv("HOME"); home != "" {
		dirs = append(dirs, filepath.Join(home, ".local", "lib"))
	}
	return dirs
}

// Opener opens a shared library file and returns its handle.
type Opener func(path string) (uintptr, error)

// Locate opens the first dirs[i]/filename that exists as a regular file.
//
// If no directory holds the file the error is KindNotFound. If some did but
// every open failed, the error is KindLoad wrapping the first failure, since
// later failures are usually consequences of the same problem.
func Locate(dirs []string, filename, version string, open Opener) (uintptr, string, error) {
	var firstErr error

	for _, dir := range dirs {
		path := filepath.Join(dir, filename)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		handle, err := open(path)
		if err == nil {
			return handle, path, nil
		}
		if firstErr == nil {
			firstErr = yserrors.Load("dlopen", path, err)
		}
	}

	if firstErr != nil {
		return 0, "", firstErr
	}
	return 0, "", yserrors.NotFound(filename, version, dirs)
}

// Find locates, opens and resolves libyamlscript.
func Find(dirs []string, version string) (*Library, error) {
	handle, path, err := Locate(dirs, Filename(version), version, dlopen)
	if err != nil {
		return nil, err
	}
	return open(handle, path)
}

// Open opens the library at an explicit path, bypassing the search.
func Open(path, version string) (*Library, error) {
	handle, path, err := Locate([]string{filepath.Dir(path)}, filepath.Base(path), version, dlopen)
	if err != nil {
		return nil, err
	}
	return open(handle, path)
}

func open(handle uintptr, path string) (*Library, error) {
	entry, err := resolve(dlSymbols(handle), path)
	if err != nil {
		_ = dlclose(handle)
		return nil, err
	}
	return NewLibrary(path, entry, func() error {
		return dlclose(handle)
	})
}
