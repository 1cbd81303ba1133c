package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/deepnoodle-ai/pycode/dis"
	"github.com/deepnoodle-ai/pycode/loader"
	"github.com/spf13/cobra"
)

func newDisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dis FILE...",
		Short: "Disassemble compiled Python files",
		Long: `Disassemble one or more .pyc files. A .py file is compiled first with
the interpreter selected by --python.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fn, _ := cmd.Flags().GetString("func")
			recursive, _ := cmd.Flags().GetBool("recursive")
			python, _ := cmd.Flags().GetString("python")
			codes, err := loadCodes(cmd.Context(), args, python)
			for i, code := range codes {
				if code == nil {
					continue
				}
				if len(args) > 1 {
					if i > 0 {
						fmt.Fprintln(cmd.OutOrStdout())
					}
					fmt.Fprintf(cmd.OutOrStdout(), "==> %s <==\n", args[i])
				}
				if perr := printCode(cmd.OutOrStdout(), code, fn, recursive); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().String("func", "", "disassemble only the named code object")
	cmd.Flags().BoolP("recursive", "r", false, "also disassemble nested code objects")
	cmd.Flags().String("python", "", "interpreter used to compile .py input (default python3)")
	return cmd
}

func printCode(w io.Writer, code *bytecode.CodeObject, fn string, recursive bool) error {
	if fn != "" {
		found, ok := code.Find(fn)
		if !ok {
			return fmt.Errorf("code object %q not found", fn)
		}
		code = found
	}
	return dis.PrintCode(code, w, recursive)
}

// loadCodes loads every path, keeping the order of paths. Entries that
// failed are nil and their errors are aggregated into the returned error.
func loadCodes(ctx context.Context, paths []string, python string) ([]*bytecode.CodeObject, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := loaderOptions()
	codes := make([]*bytecode.CodeObject, len(paths))
	var pycPaths []string
	var pycIndex []int
	for i, path := range paths {
		if !isSource(path) {
			pycPaths = append(pycPaths, path)
			pycIndex = append(pycIndex, i)
			continue
		}
		code, err := compileFile(ctx, path, python, opts)
		if err != nil {
			return codes, err
		}
		codes[i] = code
	}
	results, err := loader.LoadAll(ctx, pycPaths, opts...)
	for j, r := range results {
		codes[pycIndex[j]] = r.Code
	}
	return codes, err
}

func compileFile(ctx context.Context, path, python string, opts []loader.Option) (*bytecode.CodeObject, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return loader.CompileSource(ctx, newCompiler(python), string(source), path, opts...)
}
