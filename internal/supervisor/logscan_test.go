package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error.log")
	assert.Equal(t, "", readTailFrom(path, 0), "missing file")
	assert.Equal(t, "", readTailFrom("", 0))

	var b strings.Builder
	for i := 1; i <= 15; i++ {
		fmt.Fprintf(&b, "  line %d  \n\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	assert.Equal(t, "line 6 line 7 line 8 line 9 line 10 line 11 line 12 line 13 line 14 line 15", readTailFrom(path, 0))
}

func TestReadTailOnlyLastBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error.log")
	content := "Address already in use\n" + strings.Repeat("x", 4096) + "\nok\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	tail := readTailFrom(path, 0)
	assert.NotContains(t, tail, "Address")
	assert.True(t, strings.HasSuffix(tail, "ok"))
}

func TestReadTailFromOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error.log")
	old := "java.net.BindException: Address already in use\n"
	require.NoError(t, os.WriteFile(path, []byte(old), 0o600))
	from := logSize(path)
	assert.Equal(t, int64(len(old)), from)
	assert.Equal(t, "", readTailFrom(path, from))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("listening on :8080\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "listening on :8080", readTailFrom(path, from))

	// truncated since the offset was taken
	require.NoError(t, os.WriteFile(path, []byte("fresh\n"), 0o600))
	assert.Equal(t, "fresh", readTailFrom(path, from))

	assert.Equal(t, int64(0), logSize(filepath.Join(t.TempDir(), "missing.log")))
}

func TestHasBindConflict(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"Server started", false},
		{"Error: listen EADDRINUSE: :::3000", true},
		{"java.net.BindException: in use", true},
		{"bind: address already in use", true},
		{"Web server failed to start. Port 8080 was already in use.", true},
		{"端口被占用", true},
		{"Port 9000 conflict with another app", true},
		{"imported 3 reports successfully", false},
		{"support ticket opened", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, hasBindConflict(tc.in), tc.in)
	}
}
