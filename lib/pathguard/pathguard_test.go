package pathguard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	base, err := Canonical(t.TempDir())
	require.NoError(t, err)
	root := filepath.Join(base, "app")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "app-secret"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(base, "app-secret"), filepath.Join(root, "leak")))
	require.NoError(t, os.Symlink(filepath.Join(root, "src"), filepath.Join(root, "alias")))

	testCases := []struct {
		name    string
		rel     string
		want    string
		wantErr bool
	}{
		{name: "root itself", rel: "", want: root},
		{name: "dot", rel: ".", want: root},
		{name: "existing child", rel: "src", want: filepath.Join(root, "src")},
		{name: "missing nested target", rel: "src/new/file.txt", want: filepath.Join(root, "src", "new", "file.txt")},
		{name: "leading slash stays inside", rel: "/src", want: filepath.Join(root, "src")},
		{name: "inner dotdot", rel: "src/../src", want: filepath.Join(root, "src")},
		{name: "symlink inside root", rel: "alias/x", want: filepath.Join(root, "src", "x")},
		{name: "parent traversal", rel: "../../etc/passwd", wantErr: true},
		{name: "sibling sharing prefix", rel: "../app-secret", wantErr: true},
		{name: "symlink escaping root", rel: "leak/creds", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(root, tc.rel)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrPathEscape)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolveNoFollow(t *testing.T) {
	t.Parallel()

	base, err := Canonical(t.TempDir())
	require.NoError(t, err)
	root := filepath.Join(base, "app")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "app-secret"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(base, "app-secret"), filepath.Join(root, "leak")))
	require.NoError(t, os.Symlink(filepath.Join(root, "src"), filepath.Join(root, "alias")))

	testCases := []struct {
		name    string
		rel     string
		want    string
		wantErr bool
	}{
		{name: "root itself", rel: "", want: root},
		{name: "link to directory is not followed", rel: "alias", want: filepath.Join(root, "alias")},
		{name: "link escaping root is returned as the link", rel: "leak", want: filepath.Join(root, "leak")},
		{name: "link in parent is followed", rel: "alias/x", want: filepath.Join(root, "src", "x")},
		{name: "missing target", rel: "src/new/file.txt", want: filepath.Join(root, "src", "new", "file.txt")},
		{name: "parent traversal", rel: "../../etc/passwd", wantErr: true},
		{name: "sibling sharing prefix", rel: "../app-secret", wantErr: true},
		{name: "through escaping link", rel: "leak/creds", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveNoFollow(root, tc.rel)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrPathEscape)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestWithin(t *testing.T) {
	t.Parallel()

	require.True(t, Within("/srv/app", "/srv/app"))
	require.True(t, Within("/srv/app", "/srv/app/a/b"))
	require.True(t, Within("/srv/app", "/srv/app/..hidden"))
	require.False(t, Within("/srv/app", "/srv/app-secret"))
	require.False(t, Within("/srv/app", "/srv"))
	require.False(t, Within("/srv/app", "/etc/passwd"))
}

func TestCanonicalRejectsFile(t *testing.T) {
	t.Parallel()

	f := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	_, err := Canonical(f)
	require.Error(t, err)

	_, err = Canonical(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestRelative(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", Relative("/srv/app", "/srv/app"))
	require.Equal(t, "a/b.txt", Relative("/srv/app", "/srv/app/a/b.txt"))
}
