package main

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"
)

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump FILE",
		Short: "Print the decoded code object tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("output")
			fn, _ := cmd.Flags().GetString("func")
			python, _ := cmd.Flags().GetString("python")
			codes, err := loadCodes(cmd.Context(), args, python)
			if err != nil {
				return err
			}
			code := codes[0]
			if fn != "" {
				found, ok := code.Find(fn)
				if !ok {
					return fmt.Errorf("code object %q not found", fn)
				}
				code = found
			}
			out, err := getOutput(code, format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringP("output", "o", "json", "output format (json, cbor, text)")
	cmd.Flags().String("func", "", "dump only the named code object")
	cmd.Flags().String("python", "", "interpreter used to compile .py input (default python3)")
	_ = cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return outputFormatsCompletion, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func getOutput(code *bytecode.CodeObject, format string) ([]byte, error) {
	view := bytecode.NewCodeView(code)
	switch strings.ToLower(format) {
	case "", "json":
		out, err := getOutputJSON(view)
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case "cbor":
		return cbor.Marshal(view)
	case "text":
		return []byte(textSummary(code)), nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// textSummary lists every code object with its counts, one per line,
// indented by nesting depth.
func textSummary(code *bytecode.CodeObject) string {
	var sb strings.Builder
	var walk func(c *bytecode.CodeObject, depth int)
	walk = func(c *bytecode.CodeObject, depth int) {
		fmt.Fprintf(&sb, "%s%s (line %d) args=%d locals=%d stack=%d instructions=%d constants=%d flags=%s\n",
			strings.Repeat("  ", depth), c.Name(), c.FirstLineNumber(), c.ArgCount(),
			c.LocalCount(), c.StackSize(), c.InstructionCount(), c.ConstantCount(), c.Flags())
		for _, child := range c.Children() {
			walk(child, depth+1)
		}
	}
	walk(code, 0)
	return sb.String()
}
