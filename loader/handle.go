package loader

import (
	"math"
	"math/big"

	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/deepnoodle-ai/pycode/compiler"
	"github.com/deepnoodle-ai/pycode/errz"
	"github.com/deepnoodle-ai/pycode/marshal"
	"github.com/deepnoodle-ai/pycode/op"
)

// handleState tracks the handles on the current conversion path so that a
// handle nested inside itself is rejected instead of recursing forever.
type handleState struct {
	seen map[*compiler.Handle]bool
}

func fromHandle(h *compiler.Handle, v *op.Version, cfg *config, st *handleState) (*bytecode.CodeObject, error) {
	if st.seen[h] {
		return nil, errz.Newf(errz.MalformedInput, -1, "code object %q contains itself", h.Name)
	}
	st.seen[h] = true
	defer delete(st.seen, h)

	consts := make([]bytecode.Constant, len(h.Constants))
	for i, c := range h.Constants {
		k, err := convertConstant(c, v, cfg, st)
		if err != nil {
			return nil, err
		}
		consts[i] = k
	}
	f := &marshal.CodeFields{
		Offset:    -1,
		Code:      h.Code,
		Constants: consts,
		Names:     h.Names,
		VarNames:  h.VarNames,
		FreeVars:  h.FreeVars,
		CellVars:  h.CellVars,
		Filename:  h.Filename,
		Name:      h.Name,
		LineTable: h.LineTable,
		Flags:     int32(h.Flags),
		Version:   v,
	}
	counts := []struct {
		dst *int32
		src int
	}{
		{&f.ArgCount, h.ArgCount},
		{&f.PosOnlyArgCount, h.PosOnlyArgCount},
		{&f.KwOnlyArgCount, h.KwOnlyArgCount},
		{&f.LocalCount, h.LocalCount},
		{&f.StackSize, h.StackSize},
		{&f.FirstLine, h.FirstLine},
	}
	for _, c := range counts {
		if c.src < math.MinInt32 || c.src > math.MaxInt32 {
			return nil, errz.Newf(errz.MalformedInput, -1, "code object %q: count %d out of range", h.Name, c.src)
		}
		*c.dst = int32(c.src)
	}
	return NewBuilder(v, cfg.logger).BuildCode(f)
}

func convertConstant(c any, v *op.Version, cfg *config, st *handleState) (bytecode.Constant, error) {
	switch c := c.(type) {
	case nil:
		return bytecode.None{}, nil
	case bool:
		return bytecode.Bool(c), nil
	case int:
		return bytecode.Int(c), nil
	case int64:
		return bytecode.Int(c), nil
	case *big.Int:
		if c.IsInt64() {
			return bytecode.Int(c.Int64()), nil
		}
		if !cfg.bigInts {
			return nil, errz.Newf(errz.IntegerOverflow, -1,
				"integer literal of %d bits does not fit in 64 bits", c.BitLen())
		}
		return bytecode.BigInt{Value: new(big.Int).Set(c)}, nil
	case float64:
		return bytecode.Float(c), nil
	case complex128:
		return bytecode.Complex(c), nil
	case string:
		return bytecode.Str(c), nil
	case []byte:
		return bytecode.Bytes(append([]byte{}, c...)), nil
	case compiler.Ellipsis:
		return bytecode.Ellipsis{}, nil
	case []any:
		items, err := convertItems(c, v, cfg, st)
		if err != nil {
			return nil, err
		}
		return bytecode.Tuple(items), nil
	case compiler.FrozenSet:
		items, err := convertItems(c, v, cfg, st)
		if err != nil {
			return nil, err
		}
		return bytecode.FrozenSet(items), nil
	case *compiler.Handle:
		code, err := fromHandle(c, v, cfg, st)
		if err != nil {
			return nil, err
		}
		return bytecode.Code{Object: code}, nil
	case bytecode.Constant:
		return bytecode.Clone(c), nil
	default:
		return nil, errz.Newf(errz.UnsupportedConstantKind, -1, "constant of Go type %T", c)
	}
}

func convertItems(items []any, v *op.Version, cfg *config, st *handleState) ([]bytecode.Constant, error) {
	out := make([]bytecode.Constant, len(items))
	for i, item := range items {
		k, err := convertConstant(item, v, cfg, st)
		if err != nil {
			return nil, err
		}
		out[i] = k
	}
	return out, nil
}
