package loader

import (
	"runtime"

	"github.com/deepnoodle-ai/pycode/errz"
	"github.com/deepnoodle-ai/pycode/marshal"
	"github.com/deepnoodle-ai/pycode/op"
	"github.com/deepnoodle-ai/pycode/pyc"
	"github.com/rs/zerolog"
)

// Option describes a function used to configure loading.
type Option func(*config)

type config struct {
	version     *op.Version
	versionName string
	bigInts     bool
	logger      zerolog.Logger
	concurrency int
	maxDepth    int
	maxNodes    int
}

func newConfig(opts []Option) *config {
	cfg := &config{
		logger:      zerolog.Nop(),
		concurrency: runtime.GOMAXPROCS(0),
		maxDepth:    marshal.DefaultMaxDepth,
		maxNodes:    marshal.DefaultMaxNodes,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.concurrency < 1 {
		cfg.concurrency = 1
	}
	return cfg
}

// WithVersion pins the opcode table. The container magic must match it.
func WithVersion(v *op.Version) Option {
	return func(cfg *config) {
		cfg.version = v
	}
}

// WithVersionName pins the opcode table by name, for example "3.9". An
// unknown name makes every load fail with errz.UnsupportedVersion.
func WithVersionName(name string) Option {
	return func(cfg *config) {
		cfg.versionName = name
	}
}

// WithBigInts decodes integer constants outside the int64 range as
// bytecode.BigInt instead of failing with errz.IntegerOverflow.
func WithBigInts() Option {
	return func(cfg *config) {
		cfg.bigInts = true
	}
}

// WithLogger sets the logger for debug events. The default discards
// everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithConcurrency sets how many files LoadAll decodes at once. It defaults
// to GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(cfg *config) {
		cfg.concurrency = n
	}
}

// WithMaxDepth bounds the nesting depth of marshal values.
func WithMaxDepth(n int) Option {
	return func(cfg *config) {
		cfg.maxDepth = n
	}
}

// WithMaxNodes bounds the number of marshal values one file may expand
// to, counting back-references as copies.
func WithMaxNodes(n int) Option {
	return func(cfg *config) {
		cfg.maxNodes = n
	}
}

// resolveVersion returns the pinned version, or the one whose magic starts
// data when nothing is pinned.
func (cfg *config) resolveVersion(data []byte) (*op.Version, error) {
	switch {
	case cfg.version != nil:
		return cfg.version, nil
	case cfg.versionName != "":
		v, err := op.Lookup(cfg.versionName)
		if err != nil {
			return nil, errz.New(errz.UnsupportedVersion, -1, err.Error())
		}
		return v, nil
	default:
		return pyc.DetectVersion(data)
	}
}

// lookupVersion resolves the version for in-memory code, preferring the
// pinned version over the name the compiler reported.
func (cfg *config) lookupVersion(reported string) (*op.Version, error) {
	if cfg.version != nil {
		return cfg.version, nil
	}
	name := cfg.versionName
	if name == "" {
		name = reported
	}
	v, err := op.Lookup(name)
	if err != nil {
		return nil, errz.New(errz.UnsupportedVersion, -1, err.Error())
	}
	return v, nil
}

func (cfg *config) decoderOptions(v *op.Version) []marshal.Option {
	opts := []marshal.Option{
		marshal.WithVersion(v),
		marshal.WithCodeBuilder(NewBuilder(v, cfg.logger)),
		marshal.WithMaxDepth(cfg.maxDepth),
		marshal.WithMaxNodes(cfg.maxNodes),
	}
	if cfg.bigInts {
		opts = append(opts, marshal.WithBigInts())
	}
	return opts
}
