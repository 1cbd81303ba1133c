package dis

import (
	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/deepnoodle-ai/pycode/op"
)

// noLine is the 3.10 line delta that marks an address range without a line.
const noLine = -128

// LineStarts decodes a line table into the offsets at which a new source
// line begins, in the format the version uses. Starts at or past codeLen
// are dropped.
func LineStarts(v *op.Version, table []byte, firstLine, codeLen int) []bytecode.LineStart {
	if v.LineTable() == op.LineTable {
		return lineTableStarts(table, firstLine, codeLen)
	}
	return lnotabStarts(table, firstLine, codeLen)
}

// lnotabStarts decodes co_lnotab: pairs of an unsigned byte increment and a
// signed line increment. A line is reported once the address moves past it,
// so several pairs may accumulate into one start.
func lnotabStarts(table []byte, firstLine, codeLen int) []bytecode.LineStart {
	var starts []bytecode.LineStart
	line, lastLine, seen := firstLine, 0, false
	addr := 0
	for i := 0; i+1 < len(table); i += 2 {
		if byteIncr := int(table[i]); byteIncr != 0 {
			if !seen || line != lastLine {
				starts = append(starts, bytecode.LineStart{Offset: addr, Line: line})
				lastLine, seen = line, true
			}
			addr += byteIncr
			if addr >= codeLen {
				return starts
			}
		}
		line += int(int8(table[i+1]))
	}
	if (!seen || line != lastLine) && addr < codeLen {
		starts = append(starts, bytecode.LineStart{Offset: addr, Line: line})
	}
	return starts
}

// lineRange is one address range of a 3.10 line table.
type lineRange struct {
	start, end int
	line       int
	hasLine    bool
}

// lineRanges decodes co_linetable into its non-empty address ranges.
func lineRanges(table []byte, firstLine int) []lineRange {
	var ranges []lineRange
	line, end := firstLine, 0
	for i := 0; i+1 < len(table); i += 2 {
		r := lineRange{start: end}
		end += int(table[i])
		r.end = end
		if ldelta := int(int8(table[i+1])); ldelta != noLine {
			line += ldelta
			r.line, r.hasLine = line, true
		}
		if r.start == r.end {
			continue
		}
		ranges = append(ranges, r)
	}
	return ranges
}

func lineTableStarts(table []byte, firstLine, codeLen int) []bytecode.LineStart {
	var starts []bytecode.LineStart
	lastLine, seen := 0, false
	for _, r := range lineRanges(table, firstLine) {
		if !r.hasLine || (seen && r.line == lastLine) {
			continue
		}
		lastLine, seen = r.line, true
		if r.start < codeLen {
			starts = append(starts, bytecode.LineStart{Offset: r.start, Line: r.line})
		}
	}
	return starts
}
