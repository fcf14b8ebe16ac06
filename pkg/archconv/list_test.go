package archconv

import (
	"archive/tar"
	"bytes"
	"testing"

	"github.com/archconv/archconv/internal/engine"
	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_List(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, afero.WriteFile(e.fs, "/in.zip", zipBytes(t,
		member{name: "a.txt", content: "hi"},
		member{name: "dir/"},
	), 0o644))

	listings, err := e.List(t.Context(), "/in.zip")
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, "a.txt", listings[0].Path)
	assert.Equal(t, engine.KindFile, listings[0].Kind)
	assert.Equal(t, int64(2), listings[0].Size)
	assert.Equal(t, digest.FromString("hi"), listings[0].Digest)
	assert.Equal(t, testModTime, listings[0].ModTime.UTC())

	assert.Equal(t, "dir/", listings[1].Path)
	assert.Equal(t, engine.KindDirectory, listings[1].Kind)
	assert.Empty(t, listings[1].Digest)
}

func TestEngine_List_SkippedMembers(t *testing.T) {
	e := newTestEngine(t)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "fifo", Typeflag: tar.TypeFifo, Mode: 0o644, ModTime: testModTime}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "ok.txt", Typeflag: tar.TypeReg, Mode: 0o644, Size: 2, ModTime: testModTime}))
	_, err := tw.Write([]byte("ok"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, afero.WriteFile(e.fs, "/in.tar", buf.Bytes(), 0o644))

	listings, err := e.List(t.Context(), "/in.tar")
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, "fifo", listings[0].Path)
	assert.Contains(t, listings[0].Skipped, engine.ErrUnsupportedFeature.Error())
	assert.Equal(t, "ok.txt", listings[1].Path)
	assert.Empty(t, listings[1].Skipped)
}

func TestEngine_List_NotAnArchive(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, afero.WriteFile(e.fs, "/plain.txt", []byte("plain"), 0o644))

	_, err := e.List(t.Context(), "/plain.txt")
	require.ErrorIs(t, err, engine.ErrUnsupportedFormat)
}
