package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileAccessor reads and writes workspace files on behalf of the agent.
// Implementations must prefer an open, possibly unsaved editor buffer over
// the on-disk version when one exists.
type FileAccessor interface {
	// ReadFile returns file content. startLine is 1-indexed; startLine 0
	// means the whole file. limit caps the number of lines returned; 0
	// means no cap.
	ReadFile(path string, startLine, limit int) (string, error)
	// WriteFile replaces the file content, creating parent directories
	// as needed.
	WriteFile(path string, content string) error
}

// DiskFS is the plain filesystem accessor.
type DiskFS struct{}

// NewDiskFS creates a disk-backed accessor.
func NewDiskFS() *DiskFS { return &DiskFS{} }

// ReadFile reads from disk, applying the optional line window.
func (fs *DiskFS) ReadFile(path string, startLine, limit int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return LineWindow(string(data), startLine, limit), nil
}

// WriteFile writes content to disk, creating parent directories.
func (fs *DiskFS) WriteFile(path string, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Overlay layers in-memory open-file content over a fallback accessor.
// Reads prefer the overlay so the agent sees unsaved editor edits; writes
// go to both the overlay and the fallback so open buffers stay current.
type Overlay struct {
	mu       sync.RWMutex
	open     map[string]string
	fallback FileAccessor
}

// NewOverlay creates an overlay over the given fallback accessor.
func NewOverlay(fallback FileAccessor) *Overlay {
	return &Overlay{
		open:     make(map[string]string),
		fallback: fallback,
	}
}

// Open registers path as an open buffer with the given content.
func (o *Overlay) Open(path, content string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.open[path] = content
}

// Close removes path from the overlay; later reads fall through to disk.
func (o *Overlay) Close(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.open, path)
}

// IsOpen reports whether path currently has an open buffer.
func (o *Overlay) IsOpen(path string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.open[path]
	return ok
}

// ReadFile returns the open-buffer content when present, otherwise the
// fallback's view.
func (o *Overlay) ReadFile(path string, startLine, limit int) (string, error) {
	o.mu.RLock()
	content, ok := o.open[path]
	o.mu.RUnlock()
	if ok {
		return LineWindow(content, startLine, limit), nil
	}
	return o.fallback.ReadFile(path, startLine, limit)
}

// WriteFile updates the open buffer (when present) and the fallback.
func (o *Overlay) WriteFile(path string, content string) error {
	o.mu.Lock()
	if _, ok := o.open[path]; ok {
		o.open[path] = content
	}
	o.mu.Unlock()
	return o.fallback.WriteFile(path, content)
}

// LineWindow applies the fs/read_text_file line/limit semantics to
// content: startLine is 1-indexed (0 or 1 = from the top), limit 0 means
// unlimited. A window past the end of the file yields an empty string.
func LineWindow(content string, startLine, limit int) string {
	if startLine <= 1 && limit <= 0 {
		return content
	}
	lines := SplitLines(content)
	if startLine < 1 {
		startLine = 1
	}
	if startLine > len(lines) {
		return ""
	}
	end := len(lines)
	if limit > 0 && startLine-1+limit < end {
		end = startLine - 1 + limit
	}
	return strings.Join(lines[startLine-1:end], "\n")
}

// SplitLines splits content on newlines. A trailing newline does not
// produce a phantom empty last line.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}

// JoinLines is the inverse of SplitLines, with a trailing newline.
func JoinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
