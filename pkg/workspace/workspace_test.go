package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskFSRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := NewDiskFS()

	path := filepath.Join(dir, "sub", "file.txt")
	if err := fs.WriteFile(path, "one\ntwo\nthree\n"); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	content, err := fs.ReadFile(path, 0, 0)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if content != "one\ntwo\nthree\n" {
		t.Errorf("content = %q", content)
	}

	// Line window.
	content, err = fs.ReadFile(path, 2, 1)
	if err != nil {
		t.Fatalf("windowed read failed: %v", err)
	}
	if content != "two\n" {
		t.Errorf("window = %q, want %q", content, "two\n")
	}
}

func TestDiskFSMissingFile(t *testing.T) {
	fs := NewDiskFS()
	if _, err := fs.ReadFile(filepath.Join(t.TempDir(), "nope.txt"), 0, 0); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestOverlayPrefersOpenBuffer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("disk\n"), 0644); err != nil {
		t.Fatal(err)
	}

	o := NewOverlay(NewDiskFS())

	content, err := o.ReadFile(path, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if content != "disk\n" {
		t.Errorf("closed file should read from disk, got %q", content)
	}

	o.Open(path, "buffer\n")
	content, _ = o.ReadFile(path, 0, 0)
	if content != "buffer\n" {
		t.Errorf("open file should read from the buffer, got %q", content)
	}

	// Writes land in both places.
	if err := o.WriteFile(path, "written\n"); err != nil {
		t.Fatal(err)
	}
	content, _ = o.ReadFile(path, 0, 0)
	if content != "written\n" {
		t.Errorf("buffer not updated by write, got %q", content)
	}
	onDisk, _ := os.ReadFile(path)
	if string(onDisk) != "written\n" {
		t.Errorf("disk not updated by write, got %q", onDisk)
	}

	o.Close(path)
	if o.IsOpen(path) {
		t.Error("file still open after Close")
	}
}

func TestLineWindow(t *testing.T) {
	content := "a\nb\nc\nd\n"
	cases := []struct {
		name            string
		startLine, limit int
		want            string
	}{
		{"whole file", 0, 0, content},
		{"from line 2", 2, 0, "b\nc\nd\n"},
		{"limit only", 0, 2, "a\nb\n"},
		{"window", 3, 1, "c\n"},
		{"past the end", 9, 0, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := LineWindow(content, tc.startLine, tc.limit); got != tc.want {
				t.Errorf("LineWindow(%d, %d) = %q, want %q", tc.startLine, tc.limit, got, tc.want)
			}
		})
	}
}

func TestSplitJoinLines(t *testing.T) {
	if got := SplitLines(""); got != nil {
		t.Errorf("SplitLines(empty) = %v", got)
	}
	if got := SplitLines("a\nb\n"); len(got) != 2 {
		t.Errorf("SplitLines = %v", got)
	}
	// No trailing newline still yields the last line.
	if got := SplitLines("a\nb"); len(got) != 2 || got[1] != "b" {
		t.Errorf("SplitLines without trailing newline = %v", got)
	}
	if got := JoinLines([]string{"a", "b"}); got != "a\nb\n" {
		t.Errorf("JoinLines = %q", got)
	}
	if got := JoinLines(nil); got != "" {
		t.Errorf("JoinLines(nil) = %q", got)
	}
}
