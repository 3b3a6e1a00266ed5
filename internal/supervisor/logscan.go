package supervisor

import (
	"io"
	"os"
	"regexp"
	"strings"
)

const (
	tailBytes = 2048
	tailLines = 10
)

var conflictMarkers = []string{
	"Address already in use",
	"address already in use",
	"BindException",
	"EADDRINUSE",
	"端口",
}

var portWord = regexp.MustCompile(`(?i)\b(port|bind)\b.*\b(in use|conflict|occupied|failed|unavailable|denied)\b`)

// logSize returns the current size of path, or 0 when it cannot be read.
func logSize(path string) int64 {
	if path == "" {
		return 0
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// readTailFrom returns the last non-empty lines of the final tailBytes of
// path at or after offset from, trimmed and joined by spaces. A missing file
// yields "". A file now shorter than from was truncated and is read from the
// start.
func readTailFrom(path string, from int64) string {
	if path == "" {
		return ""
	}
	f, err := os.Open(path) // #nosec G304 -- resolved log path
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return ""
	}
	if from > fi.Size() {
		from = 0
	}
	off := fi.Size() - tailBytes
	if off < from {
		off = from
	}
	buf, err := io.ReadAll(io.NewSectionReader(f, off, fi.Size()-off))
	if err != nil {
		return ""
	}

	var lines []string
	for _, l := range strings.Split(string(buf), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > tailLines {
		lines = lines[len(lines)-tailLines:]
	}
	return strings.Join(lines, " ")
}

// hasBindConflict reports whether an error log tail points at a port or
// address that could not be bound.
func hasBindConflict(tail string) bool {
	if tail == "" {
		return false
	}
	for _, m := range conflictMarkers {
		if strings.Contains(tail, m) {
			return true
		}
	}
	return portWord.MatchString(tail)
}
