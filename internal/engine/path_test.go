package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Path
		wantErr bool
	}{
		{name: "simple", input: "a.txt", want: Path{"a.txt"}},
		{name: "nested", input: "dir/sub/b.bin", want: Path{"dir", "sub", "b.bin"}},
		{name: "directory slash", input: "dir/", want: Path{"dir"}},
		{name: "leading slash", input: "/etc/passwd", want: Path{"etc", "passwd"}},
		{name: "dot segments", input: "./a/./b", want: Path{"a", "b"}},
		{name: "backslashes", input: `win\dir\file.txt`, want: Path{"win", "dir", "file.txt"}},
		{name: "double slashes", input: "a//b", want: Path{"a", "b"}},
		{name: "parent escape", input: "../evil", wantErr: true},
		{name: "parent inside", input: "a/../../b", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "only slashes", input: "//", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsafePath)
				assert.True(t, IsRecoverable(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPath_StringAndBase(t *testing.T) {
	p := MustParsePath("dir/sub/file.txt")
	assert.Equal(t, "dir/sub/file.txt", p.String())
	assert.Equal(t, "file.txt", p.Base())
	assert.True(t, p.Equal(Path{"dir", "sub", "file.txt"}))
	assert.False(t, p.Equal(Path{"dir", "file.txt"}))
	assert.Empty(t, Path{}.Base())
}

func TestMustParsePath_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParsePath("..") })
}
