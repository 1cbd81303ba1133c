package dis

import (
	"fmt"
	"io"
	"strconv"

	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/deepnoodle-ai/pycode/internal/table"
	"github.com/deepnoodle-ai/pycode/op"
	"github.com/fatih/color"
)

var (
	bold    = color.New(color.Bold).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
	cyan    = color.New(color.FgHiCyan).SprintFunc()
	italic  = color.New(color.Italic).SprintFunc()
)

const maxString = 80

// Print writes the instructions as a table. Colours follow
// color.NoColor.
func Print(instructions []bytecode.Instruction, writer io.Writer) error {
	var lines [][]string
	for _, instr := range instructions {
		offset := strconv.Itoa(instr.Offset)
		if instr.IsJumpTarget {
			offset = ">> " + offset
		}
		var line, arg string
		if instr.StartsLine {
			line = strconv.Itoa(instr.Line)
		}
		if instr.Kind != op.None {
			arg = strconv.Itoa(instr.RawArg)
		}
		lines = append(lines, []string{offset, line, bold(instr.Mnemonic), arg, info(instr)})
	}
	return table.NewTable(writer).
		WithHeader([]string{"OFFSET", "LINE", "OPCODE", "ARG", "INFO"}).
		WithColumnAlignment([]table.Alignment{
			table.AlignRight,
			table.AlignRight,
			table.AlignLeft,
			table.AlignRight,
			table.AlignLeft,
		}).
		WithHeaderAlignment([]table.Alignment{
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
		}).
		WithRows(lines).
		Render()
}

func info(instr bytecode.Instruction) string {
	switch instr.Kind {
	case op.None, op.RawInt:
		return ""
	case op.RelativeJump, op.AbsoluteJump:
		return cyan(fmt.Sprintf("to %s", instr.Operand))
	case op.Local, op.Name, op.FreeOrCell, op.Comparator:
		if s, ok := instr.Operand.(bytecode.Str); ok {
			return cyan(string(s))
		}
		return ""
	}
	switch c := instr.Operand.(type) {
	case bytecode.Int, bytecode.BigInt, bytecode.Float, bytecode.Complex:
		return yellow(c.String())
	case bytecode.Str, bytecode.Bytes:
		s := c.String()
		if len(s) > maxString {
			s = s[:maxString-3] + "..."
		}
		return green(s)
	case bytecode.Code:
		if c.Object == nil {
			return magenta(italic("<code>"))
		}
		return magenta("code:" + c.Object.Name())
	case nil:
		return ""
	default:
		return bold(c.String())
	}
}

// PrintCode writes a heading and the instruction table for code, followed
// by those of every nested code object when recursive is set.
func PrintCode(code *bytecode.CodeObject, writer io.Writer, recursive bool) error {
	if _, err := fmt.Fprintf(writer, "Disassembly of %s:\n", bytecode.Code{Object: code}); err != nil {
		return err
	}
	if err := Print(code.Instructions(), writer); err != nil {
		return err
	}
	if !recursive {
		return nil
	}
	for _, child := range code.Children() {
		if _, err := fmt.Fprintln(writer); err != nil {
			return err
		}
		if err := PrintCode(child, writer, true); err != nil {
			return err
		}
	}
	return nil
}
