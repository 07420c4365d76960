// Package recognize routes documents through an external text-recognition
// engine when they need it.
package recognize

import (
	"context"
	"errors"
)

var (
	// ErrEngineUnavailable is returned by engines that cannot run here.
	ErrEngineUnavailable = errors.New("recognition engine unavailable")
	// ErrTimeout is returned when the engine does not finish in time.
	ErrTimeout = errors.New("recognition timed out")
)

// Options is the parameter set passed to an engine.
type Options struct {
	Languages   []string
	RotatePages bool
	Deskew      bool
	Clean       bool
	// Force re-recognizes pages that already carry text. When false the
	// engine must leave such pages alone.
	Force    bool
	Optimize int
}

// Option mutates engine options.
type Option func(*Options)

// WithLanguages sets the recognition languages, e.g. "eng", "deu".
func WithLanguages(langs ...string) Option {
	return func(o *Options) { o.Languages = append([]string(nil), langs...) }
}

func WithRotatePages(on bool) Option { return func(o *Options) { o.RotatePages = on } }
func WithDeskew(on bool) Option      { return func(o *Options) { o.Deskew = on } }
func WithClean(on bool) Option       { return func(o *Options) { o.Clean = on } }
func WithForce(on bool) Option       { return func(o *Options) { o.Force = on } }
func WithOptimize(level int) Option  { return func(o *Options) { o.Optimize = level } }

// NewOptions returns the conservative defaults with opts applied.
func NewOptions(opts ...Option) Options {
	o := Options{
		Languages:   []string{"eng"},
		RotatePages: true,
		Deskew:      true,
		Clean:       true,
		Optimize:    1,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Engine converts the document at inputPath into a text-bearing document at
// outputPath. Implementations may be slow and may fail.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, inputPath, outputPath string, opts Options) error
}

// Noop is used when no engine is installed. It always fails, so the gate
// falls back to the original document.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Recognize(ctx context.Context, inputPath, outputPath string, opts Options) error {
	return ErrEngineUnavailable
}
