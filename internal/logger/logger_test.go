package logger

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var lineRe = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[(INFO|ERROR)\] .+$`)

func TestLogger_FormatsFixedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	l.Info("registry built with 3 tools")
	l.Error("provider /tools/broken failed: exit 1")

	if err := l.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), string(data))
	}

	for _, line := range lines {
		if !lineRe.MatchString(line) {
			t.Errorf("line %q does not match expected format", line)
		}
	}

	if !strings.Contains(lines[0], "[INFO]") || !strings.Contains(lines[0], "registry built with 3 tools") {
		t.Errorf("info line malformed: %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR]") || !strings.Contains(lines[1], "provider /tools/broken failed") {
		t.Errorf("error line malformed: %q", lines[1])
	}
}

func TestLogger_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	l1, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	l1.Info("first line")
	if err := l1.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	l2.Info("second line")
	if err := l2.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (append, not truncate): %q", len(lines), string(data))
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nonexistent-dir", "server.log"))
	if err == nil {
		t.Error("Open() error = nil, want error for unwritable path")
	}
}
