package main

import (
	"fmt"
	"os"

	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/deepnoodle-ai/pycode/dis"
	"github.com/deepnoodle-ai/pycode/marshal"
	"github.com/deepnoodle-ai/pycode/op"
	"github.com/deepnoodle-ai/pycode/pyc"
	"github.com/spf13/cobra"
)

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile FILE.py",
		Short: "Compile Python source and disassemble or save the result",
		Long: `Compile a source file with an external Python interpreter. The result is
disassembled, or written as a timestamp-based .pyc file with --write.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			python, _ := cmd.Flags().GetString("python")
			out, _ := cmd.Flags().GetString("write")
			path := args[0]
			code, err := compileFile(cmd.Context(), path, python, loaderOptions())
			if err != nil {
				return err
			}
			if out == "" {
				return dis.PrintCode(code, cmd.OutOrStdout(), true)
			}
			return writePyc(out, path, code)
		},
	}
	cmd.Flags().String("python", "", "interpreter used to compile (default python3)")
	cmd.Flags().StringP("write", "w", "", "write a .pyc file to this path")
	return cmd
}

// writePyc stores code in a container whose header records the source's
// modification time and size.
func writePyc(out, source string, code *bytecode.CodeObject) error {
	v, err := op.Lookup(code.Version())
	if err != nil {
		return err
	}
	st, err := os.Stat(source)
	if err != nil {
		return err
	}
	payload, err := marshal.Encode(v, bytecode.Code{Object: code})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", code.Name(), err)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	header := pyc.NewTimestampHeader(v.Magic(), st.ModTime(), uint32(st.Size()))
	if err := pyc.WriteHeader(f, header); err != nil {
		return err
	}
	if _, err := f.Write(payload); err != nil {
		return err
	}
	return f.Close()
}
