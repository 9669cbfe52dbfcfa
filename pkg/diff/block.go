package diff

import "sort"

// Block is a contiguous edit region expressed in original-file lines.
// StartLine and EndLine are 1-indexed and inclusive. A pure insertion
// carries no OldLines and has EndLine == StartLine-1, meaning the new
// lines go in front of StartLine without consuming any existing line.
type Block struct {
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	OldLines  []string `json:"old_lines"`
	NewLines  []string `json:"new_lines"`

	// Unanchored marks a block whose old text could not be located in
	// the current file. The edit is preserved at the top of the file
	// rather than dropped, so the caller can still present it.
	Unanchored bool `json:"unanchored,omitempty"`
}

// IsInsertion reports whether the block adds lines without replacing any.
func (b Block) IsInsertion() bool {
	return len(b.OldLines) == 0 && b.EndLine == b.StartLine-1
}

// LineDelta is the net change in file length this block causes.
func (b Block) LineDelta() int {
	return len(b.NewLines) - len(b.OldLines)
}

func sortBlocks(blocks []Block) {
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].StartLine < blocks[j].StartLine
	})
}
