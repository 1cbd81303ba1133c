package bytecode

import "fmt"

// LineStart marks the byte offset at which a new source line begins.
type LineStart struct {
	Offset int
	Line   int // 1-based line number
}

// String returns a formatted string representation of the line start.
func (l LineStart) String() string {
	return fmt.Sprintf("%d:%d", l.Offset, l.Line)
}
