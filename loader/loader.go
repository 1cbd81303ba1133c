// Package loader turns compiled Python code into the bytecode model.
//
// The usual entry point is Load, which validates the container header,
// decodes the marshal payload and disassembles every code object. FromHandle
// and CompileSource accept code that was compiled in memory instead.
//
// Every error is fatal to the call that produced it: there are no partial
// results. Errors can be classified with errors.Is against the errz kinds.
package loader

import (
	"context"
	"fmt"
	"os"

	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/deepnoodle-ai/pycode/compiler"
	"github.com/deepnoodle-ai/pycode/errz"
	"github.com/deepnoodle-ai/pycode/internal/cursor"
	"github.com/deepnoodle-ai/pycode/marshal"
	"github.com/deepnoodle-ai/pycode/pyc"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of loading one file.
type Result struct {
	Path   string
	Header *pyc.Header
	Code   *bytecode.CodeObject
	Err    error
}

// Load decodes a compiled Python file held in memory.
func Load(data []byte, opts ...Option) (*bytecode.CodeObject, error) {
	r := load(data, newConfig(opts))
	return r.Code, r.Err
}

// LoadHeader decodes data like Load and also returns its header.
func LoadHeader(data []byte, opts ...Option) (*pyc.Header, *bytecode.CodeObject, error) {
	r := load(data, newConfig(opts))
	return r.Header, r.Code, r.Err
}

func load(data []byte, cfg *config) Result {
	if len(data) < pyc.HeaderSize {
		return Result{Err: errz.Newf(errz.TruncatedInput, 0,
			"container header needs %d bytes, have %d", pyc.HeaderSize, len(data))}
	}
	v, err := cfg.resolveVersion(data)
	if err != nil {
		return Result{Err: err}
	}
	c := cursor.New(data)
	header, err := pyc.ReadHeader(c, v.Magic())
	if err != nil {
		return Result{Err: err}
	}
	cfg.logger.Debug().
		Str("version", v.Name()).
		Stringer("mode", header.Mode()).
		Msg("read header")

	value, err := marshal.NewCursorDecoder(c, cfg.decoderOptions(v)...).Decode()
	if err != nil {
		return Result{Header: header, Err: err}
	}
	code, ok := value.(bytecode.Code)
	if !ok || code.Object == nil {
		return Result{Header: header, Err: errz.Newf(errz.MalformedInput, pyc.HeaderSize,
			"payload is a %s, not a code object", value.Kind())}
	}
	if c.Remaining() > 0 {
		cfg.logger.Debug().Int("trailing_bytes", c.Remaining()).Msg("ignoring data after payload")
	}
	return Result{Header: header, Code: code.Object}
}

// LoadFile reads and decodes the compiled Python file at path.
func LoadFile(path string, opts ...Option) (*bytecode.CodeObject, error) {
	r := loadFile(path, newConfig(opts))
	return r.Code, r.Err
}

func loadFile(path string, cfg *config) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Path: path, Err: err}
	}
	r := load(data, cfg)
	r.Path = path
	if r.Err != nil {
		r.Err = fmt.Errorf("%s: %w", path, r.Err)
	}
	return r
}

// LoadAll loads many files concurrently. Results are returned in the order
// of paths, one per path. The error aggregates the per-file errors; files
// that loaded successfully are still returned. Once ctx is done, files not
// yet started fail with the context's error.
func LoadAll(ctx context.Context, paths []string, opts ...Option) ([]Result, error) {
	cfg := newConfig(opts)
	results := make([]Result, len(paths))

	var g errgroup.Group
	g.SetLimit(cfg.concurrency)
	for i, path := range paths {
		if ctx.Err() != nil {
			results[i] = Result{Path: path, Err: fmt.Errorf("%s: %w", path, ctx.Err())}
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Path: path, Err: fmt.Errorf("%s: %w", path, err)}
				return nil
			}
			results[i] = loadFile(path, cfg)
			if results[i].Err != nil {
				cfg.logger.Debug().Err(results[i].Err).Str("path", path).Msg("load failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	var errs *multierror.Error
	for _, r := range results {
		if r.Err != nil {
			errs = multierror.Append(errs, r.Err)
		}
	}
	return results, errs.ErrorOrNil()
}

// FromHandle builds a code object tree from in-memory compiler output,
// bypassing the container and marshal layers. The version is taken from the
// handle unless one is pinned.
func FromHandle(h *compiler.Handle, opts ...Option) (*bytecode.CodeObject, error) {
	if h == nil {
		return nil, fmt.Errorf("loader: nil handle")
	}
	cfg := newConfig(opts)
	v, err := cfg.lookupVersion(h.Version)
	if err != nil {
		return nil, err
	}
	return fromHandle(h, v, cfg, &handleState{seen: map[*compiler.Handle]bool{}})
}

// CompileSource compiles source with c and builds the result. Compiler
// errors are returned unchanged.
func CompileSource(ctx context.Context, c compiler.Compiler, source, filename string, opts ...Option) (*bytecode.CodeObject, error) {
	h, err := c.Compile(ctx, source, filename)
	if err != nil {
		return nil, err
	}
	return FromHandle(h, opts...)
}
