package diff

import "github.com/pmezard/go-difflib/difflib"

// Minimize splits a block into the smallest set of blocks that express
// the same change, stripping lines the old and new text share. Each
// produced block is re-anchored in original-file coordinates. Blocks
// that cannot be narrowed come back unchanged.
func Minimize(b Block) []Block {
	if b.Unanchored || len(b.OldLines) == 0 {
		return []Block{b}
	}

	matcher := difflib.NewMatcher(b.OldLines, b.NewLines)
	var out []Block
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			continue
		case 'r', 'd':
			out = append(out, Block{
				StartLine: b.StartLine + op.I1,
				EndLine:   b.StartLine + op.I2 - 1,
				OldLines:  append([]string(nil), b.OldLines[op.I1:op.I2]...),
				NewLines:  append([]string(nil), b.NewLines[op.J1:op.J2]...),
			})
		case 'i':
			out = append(out, Block{
				StartLine: b.StartLine + op.I1,
				EndLine:   b.StartLine + op.I1 - 1,
				NewLines:  append([]string(nil), b.NewLines[op.J1:op.J2]...),
			})
		}
	}

	// Identical old and new text still describes an edit the agent sent;
	// keep the original block rather than returning nothing.
	if len(out) == 0 {
		return []Block{b}
	}
	return out
}
