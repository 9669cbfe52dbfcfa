package diff

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tiancaiamao/acp/pkg/acp"
	"github.com/tiancaiamao/acp/pkg/logger"
	"github.com/tiancaiamao/acp/pkg/workspace"
)

// Edit is one requested change to a file. A nil OldText means the agent
// sent no anchor at all; an empty OldText means file creation.
type Edit struct {
	Path       string
	OldText    *string
	NewText    string
	ReplaceAll bool
}

// FileDiff is the reconciled result for one file.
type FileDiff struct {
	Path   string
	Blocks []Block
}

// Reconciler turns agent-reported edits into precise line blocks against
// the file content the editor actually has, which may have drifted from
// what the agent last saw.
type Reconciler struct {
	fs  workspace.FileAccessor
	log *logger.Logger
}

func NewReconciler(fs workspace.FileAccessor, log *logger.Logger) *Reconciler {
	return &Reconciler{fs: fs, log: log}
}

// EditsFromToolCall extracts the edits a tool call describes. Structured
// diff content items win; when a call carries none, its raw input is
// parsed as editor-tool arguments.
func EditsFromToolCall(tc *acp.ToolCall) []Edit {
	var edits []Edit
	for _, c := range tc.Content {
		if !c.IsDiff() {
			continue
		}
		edits = append(edits, Edit{
			Path:    c.Path,
			OldText: c.OldText,
			NewText: c.NewText,
		})
	}
	if len(edits) > 0 {
		return edits
	}
	if e, ok := ParseEditInput(tc.RawInput); ok {
		edits = append(edits, e)
	}
	return edits
}

// ParseEditInput decodes tool input that names a file and a replacement.
// Agents disagree on field names, so the common spellings are accepted.
func ParseEditInput(raw json.RawMessage) (Edit, bool) {
	if len(raw) == 0 {
		return Edit{}, false
	}
	var in struct {
		Path      string `json:"path"`
		FilePath  string `json:"file_path"`
		FilePath2 string `json:"filePath"`

		OldText    *string `json:"old_text"`
		OldText2   *string `json:"oldText"`
		OldString  *string `json:"old_string"`
		OldString2 *string `json:"old_str"`

		NewText    *string `json:"new_text"`
		NewText2   *string `json:"newText"`
		NewString  *string `json:"new_string"`
		NewString2 *string `json:"new_str"`

		ReplaceAll  bool `json:"replace_all"`
		ReplaceAll2 bool `json:"replaceAll"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return Edit{}, false
	}

	e := Edit{
		Path:       firstNonEmpty(in.Path, in.FilePath, in.FilePath2),
		OldText:    firstSet(in.OldText, in.OldText2, in.OldString, in.OldString2),
		ReplaceAll: in.ReplaceAll || in.ReplaceAll2,
	}
	if nt := firstSet(in.NewText, in.NewText2, in.NewString, in.NewString2); nt != nil {
		e.NewText = *nt
	} else if e.Path == "" || e.OldText == nil {
		return Edit{}, false
	}
	if e.Path == "" {
		return Edit{}, false
	}
	return e, true
}

// Reconcile resolves one edit into sorted, non-overlapping, minimized
// blocks. An edit is never silently dropped: when its anchor cannot be
// found the result is a single unanchored block at the top of the file.
func (r *Reconciler) Reconcile(e Edit) (FileDiff, error) {
	fd := FileDiff{Path: e.Path}
	if e.Path == "" {
		return fd, fmt.Errorf("edit has no file path")
	}

	newLines := workspace.SplitLines(e.NewText)

	// No anchor, or an empty one: the file is being created or wholly
	// replaced with fresh content.
	if e.OldText == nil || *e.OldText == "" {
		content, err := r.fs.ReadFile(e.Path, 0, 0)
		if err != nil || content == "" {
			fd.Blocks = []Block{{
				StartLine: 1,
				EndLine:   len(newLines),
				OldLines:  []string{},
				NewLines:  newLines,
			}}
			return fd, nil
		}
		// The file exists and is non-empty; treat as full replacement.
		old := workspace.SplitLines(content)
		b := Block{StartLine: 1, EndLine: len(old), OldLines: old, NewLines: newLines}
		fd.Blocks = Minimize(b)
		sortBlocks(fd.Blocks)
		return fd, nil
	}

	content, err := r.fs.ReadFile(e.Path, 0, 0)
	if err != nil {
		return fd, fmt.Errorf("read %s: %w", e.Path, err)
	}
	fileLines := workspace.SplitLines(content)
	oldLines := workspace.SplitLines(*e.OldText)

	blocks := r.anchor(fileLines, oldLines, newLines, *e.OldText, e.NewText, e.ReplaceAll)
	if blocks == nil {
		r.log.Notify(logger.WARN, "could not locate old text in %s, keeping edit unanchored", e.Path)
		blocks = []Block{{
			StartLine:  1,
			EndLine:    0,
			OldLines:   oldLines,
			NewLines:   newLines,
			Unanchored: true,
		}}
	}

	var minimized []Block
	for _, b := range blocks {
		minimized = append(minimized, Minimize(b)...)
	}
	sortBlocks(minimized)
	fd.Blocks = minimized
	return fd, nil
}

// anchor runs the location strategies in order and returns nil when all
// of them fail.
func (r *Reconciler) anchor(fileLines, oldLines, newLines []string, oldText, newText string, replaceAll bool) []Block {
	if replaceAll {
		if len(oldLines) == 1 && len(newLines) <= 1 {
			if blocks := replaceAllInLines(fileLines, oldText, newText); blocks != nil {
				return blocks
			}
			return nil
		}
		spans := FindAllMatches(fileLines, oldLines)
		if len(spans) == 0 {
			return nil
		}
		var blocks []Block
		for _, s := range spans {
			blocks = append(blocks, spanBlock(fileLines, s, newLines))
		}
		return blocks
	}

	if spans := FindAllMatches(fileLines, oldLines); len(spans) > 0 {
		return []Block{spanBlock(fileLines, spans[0], newLines)}
	}

	// A short anchor may sit inside a longer line the matcher can't see
	// as a whole-line match.
	if len(oldLines) == 1 && oldText != "" {
		for i, line := range fileLines {
			if strings.Contains(line, oldText) {
				replaced := strings.Replace(line, oldText, newText, 1)
				return []Block{{
					StartLine: i + 1,
					EndLine:   i + 1,
					OldLines:  []string{line},
					NewLines:  workspace.SplitLines(replaced + "\n"),
				}}
			}
		}
	}

	return nil
}

// replaceAllInLines substitutes every literal occurrence of old within
// each line, producing one single-line block per affected line. The
// replacement is literal text, never a pattern.
func replaceAllInLines(fileLines []string, old, new string) []Block {
	old = strings.TrimSuffix(old, "\n")
	new = strings.TrimSuffix(new, "\n")
	var blocks []Block
	for i, line := range fileLines {
		if !strings.Contains(line, old) {
			continue
		}
		blocks = append(blocks, Block{
			StartLine: i + 1,
			EndLine:   i + 1,
			OldLines:  []string{line},
			NewLines:  []string{strings.ReplaceAll(line, old, new)},
		})
	}
	return blocks
}

// spanBlock builds a block whose old side is the file's current content
// for the span, not the agent's possibly stale view of it.
func spanBlock(fileLines []string, s Span, newLines []string) Block {
	return Block{
		StartLine: s.StartLine,
		EndLine:   s.EndLine,
		OldLines:  append([]string(nil), fileLines[s.StartLine-1:s.EndLine]...),
		NewLines:  newLines,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstSet(vals ...*string) *string {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
