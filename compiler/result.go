package compiler

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/deepnoodle-ai/pycode/errz"
)

// result is the document printed by the embedded compile script.
type result struct {
	Version string     `json:"version"`
	Magic   string     `json:"magic"`
	Code    *codeDef   `json:"code,omitempty"`
	Error   *syntaxDef `json:"error,omitempty"`
}

type syntaxDef struct {
	Kind     string `json:"kind"`
	Msg      string `json:"msg"`
	Filename string `json:"filename"`
	Lineno   int    `json:"lineno"`
	Offset   int    `json:"offset"`
	Text     string `json:"text"`
}

type codeDef struct {
	Name            string        `json:"name"`
	Filename        string        `json:"filename"`
	ArgCount        int           `json:"argcount"`
	PosOnlyArgCount int           `json:"posonlyargcount"`
	KwOnlyArgCount  int           `json:"kwonlyargcount"`
	LocalCount      int           `json:"nlocals"`
	StackSize       int           `json:"stacksize"`
	Flags           uint32        `json:"flags"`
	FirstLine       int           `json:"firstlineno"`
	Code            string        `json:"code"`
	Constants       []constantDef `json:"consts"`
	Names           []string      `json:"names"`
	VarNames        []string      `json:"varnames"`
	FreeVars        []string      `json:"freevars"`
	CellVars        []string      `json:"cellvars"`
	LineTable       string        `json:"linetable"`
}

type constantDef struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
	Real  string          `json:"real,omitempty"`
	Imag  string          `json:"imag,omitempty"`
	Items []constantDef   `json:"items,omitempty"`
	Code  *codeDef        `json:"code,omitempty"`
}

// DecodeResult parses the JSON document printed by the compile script.
func DecodeResult(data []byte) (*Handle, error) {
	var r result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("compiler: invalid output: %w", err)
	}
	if r.Error != nil {
		e := r.Error
		msg := e.Msg
		if e.Kind != "" && e.Kind != "SyntaxError" {
			msg = e.Kind + ": " + msg
		}
		return nil, errz.NewCompileError(msg, errz.SourceLocation{
			Filename: e.Filename,
			Line:     e.Lineno,
			Column:   e.Offset,
			Source:   e.Text,
		})
	}
	if r.Code == nil {
		return nil, fmt.Errorf("compiler: output has neither code nor error")
	}
	raw, err := hex.DecodeString(r.Magic)
	if err != nil || len(raw) != 4 {
		return nil, fmt.Errorf("compiler: invalid magic %q", r.Magic)
	}
	var magic [4]byte
	copy(magic[:], raw)
	return r.Code.handle(r.Version, magic)
}

func (d *codeDef) handle(version string, magic [4]byte) (*Handle, error) {
	code, err := base64.StdEncoding.DecodeString(d.Code)
	if err != nil {
		return nil, fmt.Errorf("compiler: code %q: invalid code bytes: %w", d.Name, err)
	}
	table, err := base64.StdEncoding.DecodeString(d.LineTable)
	if err != nil {
		return nil, fmt.Errorf("compiler: code %q: invalid line table: %w", d.Name, err)
	}
	h := &Handle{
		Version:         version,
		Magic:           magic,
		Name:            d.Name,
		Filename:        d.Filename,
		ArgCount:        d.ArgCount,
		PosOnlyArgCount: d.PosOnlyArgCount,
		KwOnlyArgCount:  d.KwOnlyArgCount,
		LocalCount:      d.LocalCount,
		StackSize:       d.StackSize,
		Flags:           d.Flags,
		FirstLine:       d.FirstLine,
		Code:            code,
		Names:           d.Names,
		VarNames:        d.VarNames,
		FreeVars:        d.FreeVars,
		CellVars:        d.CellVars,
		LineTable:       table,
	}
	h.Constants = make([]any, len(d.Constants))
	for i, c := range d.Constants {
		v, err := c.value(version, magic)
		if err != nil {
			return nil, fmt.Errorf("compiler: code %q: constant %d: %w", d.Name, i, err)
		}
		h.Constants[i] = v
	}
	return h, nil
}

func (c *constantDef) value(version string, magic [4]byte) (any, error) {
	switch c.Type {
	case "none":
		return nil, nil
	case "ellipsis":
		return Ellipsis{}, nil
	case "bool":
		var b bool
		err := json.Unmarshal(c.Value, &b)
		return b, err
	case "int":
		var s string
		if err := json.Unmarshal(c.Value, &s); err != nil {
			return nil, err
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		return n, nil
	case "float":
		var s string
		if err := json.Unmarshal(c.Value, &s); err != nil {
			return nil, err
		}
		return parseFloat(s)
	case "complex":
		re, err := parseFloat(c.Real)
		if err != nil {
			return nil, err
		}
		im, err := parseFloat(c.Imag)
		if err != nil {
			return nil, err
		}
		return complex(re, im), nil
	case "str":
		var s string
		err := json.Unmarshal(c.Value, &s)
		return s, err
	case "bytes":
		var s string
		if err := json.Unmarshal(c.Value, &s); err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(s)
	case "tuple", "frozenset":
		items := make([]any, len(c.Items))
		for i := range c.Items {
			v, err := c.Items[i].value(version, magic)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		if c.Type == "frozenset" {
			return FrozenSet(items), nil
		}
		return items, nil
	case "code":
		if c.Code == nil {
			return nil, fmt.Errorf("code constant without body")
		}
		return c.Code.handle(version, magic)
	default:
		return nil, fmt.Errorf("unknown constant type %q", c.Type)
	}
}

// parseFloat accepts the output of Python's float.hex, including inf and nan.
func parseFloat(s string) (float64, error) {
	switch s {
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
