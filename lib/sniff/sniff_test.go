package sniff

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0o644))
		return p
	}

	withNul := bytes.Repeat([]byte("a"), HeadSize)
	withNul[HeadSize/2] = 0x00
	plain := bytes.Repeat([]byte("a"), HeadSize)
	lateNul := append(bytes.Repeat([]byte("a"), HeadSize), 0x00)

	testCases := []struct {
		name string
		path string
		want Class
	}{
		{name: "nul in head", path: write("nul.bin", withNul), want: Binary},
		{name: "same size without nul", path: write("plain.txt", plain), want: Text},
		{name: "nul after head", path: write("late.txt", lateNul), want: Text},
		{name: "empty file", path: write("empty", nil), want: Text},
		{name: "utf8 text", path: write("utf8.txt", []byte("héllo wörld\n")), want: Text},
		{name: "missing file", path: filepath.Join(dir, "missing"), want: Binary},
		{name: "directory", path: dir, want: Binary},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.path))
		})
	}
}

func TestClassString(t *testing.T) {
	require.Equal(t, "text", Text.String())
	require.Equal(t, "binary", Binary.String())
}
