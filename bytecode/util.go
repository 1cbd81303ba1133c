package bytecode

// copyStrings returns a copy of the given string slice.
func copyStrings(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}

// copyBytes returns a copy of the given byte slice.
func copyBytes(src []byte) []byte {
	if src == nil {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}

// copyConstants returns a shallow copy of the given constant slice.
// Constants are immutable so sharing the elements is safe.
func copyConstants(src []Constant) []Constant {
	if src == nil {
		return nil
	}
	dst := make([]Constant, len(src))
	copy(dst, src)
	return dst
}

// copyInstructions returns a copy of the given instruction slice.
func copyInstructions(src []Instruction) []Instruction {
	if src == nil {
		return nil
	}
	dst := make([]Instruction, len(src))
	copy(dst, src)
	return dst
}

// copyLineStarts returns a copy of the given line start slice.
func copyLineStarts(src []LineStart) []LineStart {
	if src == nil {
		return nil
	}
	dst := make([]LineStart, len(src))
	copy(dst, src)
	return dst
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
