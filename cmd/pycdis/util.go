package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/deepnoodle-ai/pycode/compiler"
	"github.com/deepnoodle-ai/pycode/loader"
	"github.com/fatih/color"
	"github.com/hokaccha/go-prettyjson"
	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"
)

var (
	red  = color.New(color.FgRed).SprintFunc()
	bold = color.New(color.Bold).SprintFunc()
)

func printError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", red(err.Error()))
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// loaderOptions translates the global flags into loader options.
func loaderOptions() []loader.Option {
	opts := []loader.Option{loader.WithLogger(newLogger())}
	if name := viper.GetString("python-version"); name != "" {
		opts = append(opts, loader.WithVersionName(name))
	}
	if viper.GetBool("big-ints") {
		opts = append(opts, loader.WithBigInts())
	}
	if n := viper.GetInt("concurrency"); n > 0 {
		opts = append(opts, loader.WithConcurrency(n))
	}
	return opts
}

func newCompiler(python string) compiler.Compiler {
	opts := []compiler.ExecOption{compiler.WithLogger(newLogger())}
	if python != "" {
		opts = append(opts, compiler.WithPython(python))
	}
	return compiler.NewExec(opts...)
}

func isSource(path string) bool {
	return strings.HasSuffix(path, ".py")
}

var outputFormatsCompletion = []string{"json", "cbor", "text"}

func getOutputJSON(v any) ([]byte, error) {
	if color.NoColor {
		return json.MarshalIndent(v, "", "  ")
	}
	return prettyjson.Marshal(v)
}
