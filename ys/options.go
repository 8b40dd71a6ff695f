package ys

import (
	"go.uber.org/zap"

	"github.com/yaml/yamlscript-go/internal/native"
)

// Option configures a Runtime at creation time.
type Option func(*config)

type config struct {
	libraryPath string
	searchDirs  []string
	logger      *zap.Logger
	metrics     *Metrics
	useNumber   bool
	// open replaces the library search, used by WithFakeEngine.
	open func() (*native.Library, error)
}

func defaultConfig() config {
	return config{}
}

func (c *config) openLibrary() (*native.Library, error) {
	switch {
	case c.open != nil:
		return c.open()
	case c.libraryPath != "":
		return native.Open(c.libraryPath, Version)
	case c.searchDirs != nil:
		return native.Find(c.searchDirs, Version)
	default:
		return native.Find(native.SearchDirs(), Version)
	}
}

// WithLibraryPath opens the library file at path instead of searching for it.
func WithLibraryPath(path string) Option {
	return func(c *config) {
		c.libraryPath = path
	}
}

// WithSearchDirs replaces the default search directories. The file name is
// still libyamlscript.<so|dylib>.<Version>.
//
// Examples:
//
//	ys.New(ys.WithSearchDirs("/opt/yamlscript/lib"))
//	ys.New(ys.WithSearchDirs(append([]string{"./lib"}, ys.DefaultSearchDirs()...)...))
func WithSearchDirs(dirs ...string) Option {
	return func(c *config) {
		c.searchDirs = append([]string{}, dirs...)
	}
}

// DefaultSearchDirs returns the directories searched when neither
// WithLibraryPath nor WithSearchDirs is given: each LD_LIBRARY_PATH entry,
// then /usr/local/lib, then ~/.local/lib.
func DefaultSearchDirs() []string {
	return native.SearchDirs()
}

// WithLogger sets the logger for this runtime. Defaults to the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMetrics records call counts, latencies and live isolates in m.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithUseNumber makes Load return numbers as json.Number instead of int64
// and float64.
func WithUseNumber() Option {
	return func(c *config) {
		c.useNumber = true
	}
}
