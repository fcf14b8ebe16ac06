package readers

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/archconv/archconv/internal/engine"
	"github.com/archconv/archconv/internal/engine/writers"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sevenZipArchive(t *testing.T, entries ...*engine.Entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := writers.NewSevenZipWriter(&buf, writers.Options{Spool: engine.SpoolConfig{FS: afero.NewMemMapFs()}})
	require.NoError(t, err)
	defer w.Close()

	for _, e := range entries {
		_, err := w.Append(t.Context(), e)
		require.NoError(t, err)
	}
	require.NoError(t, w.Finalize())
	return buf.Bytes()
}

func memFile(name, content string) *engine.Entry {
	return engine.NewFile(engine.MustParsePath(name), int64(len(content)), 0o640, testModTime, func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(content)), nil
	})
}

func TestSevenZipReader_Entries(t *testing.T) {
	data := sevenZipArchive(t,
		memFile("a.txt", "hi"),
		engine.NewDirectory(engine.MustParsePath("dir"), 0o755, testModTime),
		memFile("dir/b.txt", "bravo"),
		memFile("dir/empty", ""),
		engine.NewSymlink(engine.MustParsePath("dir/link"), "b.txt", 0o777, testModTime),
	)
	r := open(t, engine.FormatSevenZ, data)
	assert.Equal(t, engine.FormatSevenZ, r.Format())

	sizer, ok := r.(engine.Sizer)
	require.True(t, ok)
	assert.Equal(t, int64(len("hi")+len("bravo")+len("b.txt")), sizer.UncompressedSize())

	got := collect(t, r)
	require.Len(t, got, 5)
	assert.Equal(t, collected{path: "a.txt", kind: engine.KindFile, content: "hi", mode: 0o640}, got[0])
	assert.Equal(t, collected{path: "dir", kind: engine.KindDirectory, mode: 0o755}, got[1])
	assert.Equal(t, collected{path: "dir/b.txt", kind: engine.KindFile, content: "bravo", mode: 0o640}, got[2])
	assert.Equal(t, collected{path: "dir/empty", kind: engine.KindFile, mode: 0o640}, got[3])
	assert.Equal(t, collected{path: "dir/link", kind: engine.KindSymlink, target: "b.txt", mode: 0o777}, got[4])
}

func TestSevenZipReader_OutOfOrderAccess(t *testing.T) {
	data := sevenZipArchive(t, memFile("a.txt", "alpha"), memFile("b.txt", "bravo"))
	r := open(t, engine.FormatSevenZ, data)

	var entries []*engine.Entry
	for e, err := range r.Entries() {
		require.NoError(t, err)
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)

	_, err := entries[0].Open()
	require.ErrorIs(t, err, engine.ErrOutOfOrderAccess)
}

func TestSevenZipReader_Corrupt(t *testing.T) {
	data := sevenZipArchive(t, memFile("a.txt", "alpha"))
	data[len(data)-3] ^= 0xFF

	_, err := NewSevenZipReader(bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrCorruptArchive)
}

func TestSevenZipPerm(t *testing.T) {
	assert.Equal(t, 0o444, int(sevenZipPerm(sevenZipAttrReadOnly, 0)))
	assert.Equal(t, 0o755, int(sevenZipPerm(0, unixTypeRegular|0o755)))
	assert.Equal(t, 0, int(sevenZipPerm(0, 0)))
}
