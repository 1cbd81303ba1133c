package loader

import (
	"testing"
	"time"

	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/deepnoodle-ai/pycode/compiler"
	"github.com/deepnoodle-ai/pycode/marshal"
	"github.com/deepnoodle-ai/pycode/op"
	"github.com/deepnoodle-ai/pycode/pyc"
	"github.com/stretchr/testify/require"
)

func py39(t *testing.T) *op.Version {
	t.Helper()
	v, err := op.Lookup("3.9")
	require.NoError(t, err)
	return v
}

// branchModule is
//
//	def f(x):
//	    if x < 10:
//	        return x
//	    return 0
func branchModule() *compiler.Handle {
	f := &compiler.Handle{
		Version:    "3.9",
		Name:       "f",
		Filename:   "branch.py",
		ArgCount:   1,
		LocalCount: 1,
		StackSize:  2,
		Flags:      uint32(bytecode.FlagOptimized | bytecode.FlagNewLocals | bytecode.FlagNoFree),
		FirstLine:  1,
		Code: []byte{
			124, 0, 100, 1, 107, 0, 114, 12,
			124, 0, 83, 0, 100, 2, 83, 0,
		},
		Constants: []any{nil, int64(10), int64(0)},
		VarNames:  []string{"x"},
		LineTable: []byte{0, 1, 8, 1, 4, 1},
	}
	return &compiler.Handle{
		Version:   "3.9",
		Name:      "<module>",
		Filename:  "branch.py",
		StackSize: 2,
		Flags:     uint32(bytecode.FlagNoFree),
		FirstLine: 1,
		Code:      []byte{100, 0, 100, 1, 132, 0, 90, 0, 100, 2, 83, 0},
		Constants: []any{f, "f", nil},
		Names:     []string{"f"},
	}
}

// closureModule is
//
//	def outer():
//	    y = 1
//	    def inner():
//	        return y
//	    return inner
func closureModule() *compiler.Handle {
	inner := &compiler.Handle{
		Version:   "3.9",
		Name:      "inner",
		Filename:  "closure.py",
		StackSize: 1,
		Flags:     uint32(bytecode.FlagOptimized | bytecode.FlagNewLocals | bytecode.FlagNested),
		FirstLine: 3,
		Code:      []byte{136, 0, 83, 0},
		Constants: []any{nil},
		FreeVars:  []string{"y"},
		LineTable: []byte{0, 1},
	}
	outer := &compiler.Handle{
		Version:    "3.9",
		Name:       "outer",
		Filename:   "closure.py",
		LocalCount: 1,
		StackSize:  3,
		Flags:      uint32(bytecode.FlagOptimized | bytecode.FlagNewLocals),
		FirstLine:  1,
		Code: []byte{
			100, 1, 137, 0, 135, 0, 102, 1, 100, 2,
			100, 3, 132, 8, 125, 0, 124, 0, 83, 0,
		},
		Constants: []any{nil, int64(1), inner, "outer.<locals>.inner"},
		VarNames:  []string{"inner"},
		CellVars:  []string{"y"},
		LineTable: []byte{4, 1, 14, 2},
	}
	return &compiler.Handle{
		Version:   "3.9",
		Name:      "<module>",
		Filename:  "closure.py",
		StackSize: 2,
		Flags:     uint32(bytecode.FlagNoFree),
		FirstLine: 1,
		Code:      []byte{100, 0, 100, 1, 132, 0, 90, 0, 100, 2, 83, 0},
		Constants: []any{outer, "outer", nil},
		Names:     []string{"outer"},
	}
}

// container encodes code as a timestamp-based compiled file.
func container(t *testing.T, v *op.Version, code *bytecode.CodeObject) []byte {
	t.Helper()
	payload, err := marshal.Encode(v, bytecode.Code{Object: code})
	require.NoError(t, err)
	header := pyc.NewTimestampHeader(v.Magic(), time.Unix(1700000000, 0), 123)
	return append(header.Bytes(), payload...)
}

func mustFromHandle(t *testing.T, h *compiler.Handle) *bytecode.CodeObject {
	t.Helper()
	code, err := FromHandle(h)
	require.NoError(t, err)
	return code
}
