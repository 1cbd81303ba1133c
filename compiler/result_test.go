package compiler

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/deepnoodle-ai/pycode/errz"
	"github.com/stretchr/testify/require"
)

const moduleJSON = `{
  "version": "3.9",
  "magic": "610d0d0a",
  "code": {
    "name": "<module>", "filename": "m.py",
    "argcount": 0, "posonlyargcount": 0, "kwonlyargcount": 0,
    "nlocals": 0, "stacksize": 2, "flags": 64, "firstlineno": 1,
    "code": "ZABkAYQAWgBkAlMA",
    "consts": [
      {"type": "code", "code": {
        "name": "f", "filename": "m.py",
        "argcount": 1, "posonlyargcount": 0, "kwonlyargcount": 0,
        "nlocals": 1, "stacksize": 1, "flags": 67, "firstlineno": 1,
        "code": "fABTAA==",
        "consts": [{"type": "none"}],
        "names": [], "varnames": ["x"], "freevars": [], "cellvars": [],
        "linetable": "AAE="
      }},
      {"type": "str", "value": "f"},
      {"type": "none"},
      {"type": "tuple", "items": [
        {"type": "int", "value": "1"},
        {"type": "int", "value": "1180591620717411303424"},
        {"type": "float", "value": "0x1.8000000000000p+0"},
        {"type": "float", "value": "-inf"},
        {"type": "complex", "real": "0x0.0p+0", "imag": "0x1.0000000000000p+1"},
        {"type": "bool", "value": true},
        {"type": "bytes", "value": "eHk="},
        {"type": "ellipsis"},
        {"type": "frozenset", "items": [{"type": "str", "value": "a"}]}
      ]}
    ],
    "names": ["f"], "varnames": [], "freevars": [], "cellvars": [],
    "linetable": ""
  }
}`

func TestDecodeResult(t *testing.T) {
	h, err := DecodeResult([]byte(moduleJSON))
	require.NoError(t, err)
	require.Equal(t, "3.9", h.Version)
	require.Equal(t, [4]byte{0x61, 0x0d, 0x0d, 0x0a}, h.Magic)
	require.Equal(t, "<module>", h.Name)
	require.Equal(t, uint32(64), h.Flags)
	require.Equal(t, []byte{100, 0, 100, 1, 132, 0, 90, 0, 100, 2, 83, 0}, h.Code)
	require.Empty(t, h.LineTable)
	require.Len(t, h.Constants, 4)

	children := h.Children()
	require.Len(t, children, 1)
	fn := children[0]
	require.Equal(t, "f", fn.Name)
	require.Equal(t, "3.9", fn.Version)
	require.Equal(t, []string{"x"}, fn.VarNames)
	require.Equal(t, []byte{124, 0, 83, 0}, fn.Code)
	require.Equal(t, []byte{0, 1}, fn.LineTable)
	require.Equal(t, []any{nil}, fn.Constants)

	require.Equal(t, "f", h.Constants[1])
	require.Nil(t, h.Constants[2])

	tuple := h.Constants[3].([]any)
	require.Equal(t, int64(1), tuple[0])
	want := new(big.Int).Lsh(big.NewInt(1), 70)
	require.Equal(t, 0, want.Cmp(tuple[1].(*big.Int)))
	require.Equal(t, 1.5, tuple[2])
	require.True(t, math.IsInf(tuple[3].(float64), -1))
	require.Equal(t, complex(0, 2), tuple[4])
	require.Equal(t, true, tuple[5])
	require.Equal(t, []byte("xy"), tuple[6])
	require.Equal(t, Ellipsis{}, tuple[7])
	require.Equal(t, FrozenSet{"a"}, tuple[8])
}

func TestDecodeResultSyntaxError(t *testing.T) {
	_, err := DecodeResult([]byte(`{
		"version": "3.9", "magic": "610d0d0a",
		"error": {"kind": "SyntaxError", "msg": "invalid syntax",
		          "filename": "bad.py", "lineno": 2, "offset": 5, "text": "def ("}
	}`))
	require.True(t, errors.Is(err, errz.CompileError))

	var serr *errz.StructuredError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, "invalid syntax", serr.Message)
	require.Equal(t, "bad.py", serr.Location.Filename)
	require.Equal(t, 2, serr.Location.Line)
	require.Equal(t, 5, serr.Location.Column)
	require.Equal(t, -1, serr.Offset)
}

func TestDecodeResultIndentationError(t *testing.T) {
	_, err := DecodeResult([]byte(`{"version": "3.9", "magic": "610d0d0a",
		"error": {"kind": "IndentationError", "msg": "unexpected indent", "lineno": 1}}`))
	require.True(t, errors.Is(err, errz.CompileError))
	require.Contains(t, err.Error(), "IndentationError: unexpected indent")
}

func TestDecodeResultInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "Traceback"},
		{"empty document", `{"version": "3.9", "magic": "610d0d0a"}`},
		{"bad magic", `{"version": "3.9", "magic": "61", "code": {"name": "m"}}`},
		{"bad code bytes", `{"version": "3.9", "magic": "610d0d0a", "code": {"name": "m", "code": "!"}}`},
		{"unknown constant", `{"version": "3.9", "magic": "610d0d0a",
			"code": {"name": "m", "consts": [{"type": "list"}]}}`},
		{"bad int", `{"version": "3.9", "magic": "610d0d0a",
			"code": {"name": "m", "consts": [{"type": "int", "value": "x"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResult([]byte(tt.data))
			require.Error(t, err)
			require.False(t, errors.Is(err, errz.CompileError))
		})
	}
}
