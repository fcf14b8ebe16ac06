package readers

import (
	"archive/tar"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/archconv/archconv/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarReader_Formats(t *testing.T) {
	for _, format := range []engine.Format{engine.FormatTarGz, engine.FormatTarZst, engine.FormatTar} {
		t.Run(format.String(), func(t *testing.T) {
			data := tarArchive(t, format,
				regular("a.txt", "hi"),
				tarFixture{header: &tar.Header{Name: "dir/", Typeflag: tar.TypeDir, Mode: 0o750}},
				regular("dir/b.txt", "bravo"),
				tarFixture{header: &tar.Header{Name: "dir/link", Typeflag: tar.TypeSymlink, Linkname: "b.txt", Mode: 0o777}},
			)
			r := open(t, format, data)
			assert.Equal(t, format, r.Format())

			sizer, ok := r.(engine.Sizer)
			require.True(t, ok)
			assert.Equal(t, int64(len("hi")+len("bravo")), sizer.UncompressedSize())

			got := collect(t, r)
			require.Len(t, got, 4)
			assert.Equal(t, collected{path: "a.txt", kind: engine.KindFile, content: "hi", mode: 0o644}, got[0])
			assert.Equal(t, collected{path: "dir", kind: engine.KindDirectory, mode: 0o750}, got[1])
			assert.Equal(t, collected{path: "dir/b.txt", kind: engine.KindFile, content: "bravo", mode: 0o644}, got[2])
			assert.Equal(t, collected{path: "dir/link", kind: engine.KindSymlink, target: "b.txt", mode: 0o777}, got[3])
		})
	}
}

func TestScanTarSize(t *testing.T) {
	data := tarArchive(t, engine.FormatTarGz,
		regular("a.bin", strings.Repeat("a", 1000)),
		tarFixture{header: &tar.Header{Name: "hard", Typeflag: tar.TypeLink, Linkname: "a.bin"}},
		regular("b.bin", strings.Repeat("b", 24)),
	)

	total, err := ScanTarSize(engine.FormatTarGz, bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(1024), total)

	_, err = ScanTarSize(engine.FormatTarGz, bytes.NewReader(data[:len(data)/2]))
	require.ErrorIs(t, err, engine.ErrCorruptArchive)
}

func TestTarReader_UnsupportedMembers(t *testing.T) {
	data := tarArchive(t, engine.FormatTar,
		regular("a.txt", "a"),
		tarFixture{header: &tar.Header{Name: "hard", Typeflag: tar.TypeLink, Linkname: "a.txt"}},
		tarFixture{header: &tar.Header{Name: "dev/tty", Typeflag: tar.TypeChar, Devmajor: 5}},
		tarFixture{header: &tar.Header{Name: "fifo", Typeflag: tar.TypeFifo}},
		regular("../escape.txt", "nope"),
		regular("b.txt", "b"),
	)
	r := open(t, engine.FormatTar, data)

	got := collect(t, r)
	require.Len(t, got, 6)
	assert.Equal(t, "a", got[0].content)
	for _, c := range got[1:4] {
		require.ErrorIs(t, c.err, engine.ErrUnsupportedFeature)
	}
	require.ErrorIs(t, got[4].err, engine.ErrUnsafePath)
	assert.Equal(t, "b", got[5].content)
}

func TestTarReader_GlobalHeaderIsNotAMember(t *testing.T) {
	data := tarArchive(t, engine.FormatTar,
		tarFixture{header: &tar.Header{Typeflag: tar.TypeXGlobalHeader, Name: "pax_global_header", PAXRecords: map[string]string{"comment": "release"}, Format: tar.FormatPAX}},
		regular("a.txt", "a"),
	)
	r := open(t, engine.FormatTar, data)

	got := collect(t, r)
	require.Len(t, got, 1)
	assert.Equal(t, "a.txt", got[0].path)
}

func TestTarReader_OutOfOrderAccess(t *testing.T) {
	data := tarArchive(t, engine.FormatTarGz, regular("a.txt", "alpha"), regular("b.txt", "bravo"))
	r := open(t, engine.FormatTarGz, data)

	var entries []*engine.Entry
	for e, err := range r.Entries() {
		require.NoError(t, err)
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)

	_, err := entries[0].Open()
	require.ErrorIs(t, err, engine.ErrOutOfOrderAccess)
}

func TestTarReader_EntriesTwice(t *testing.T) {
	data := tarArchive(t, engine.FormatTar, regular("a.txt", "a"))
	r := open(t, engine.FormatTar, data)
	_ = collect(t, r)

	got := collect(t, r)
	require.Len(t, got, 1)
	require.ErrorIs(t, got[0].err, engine.ErrAlreadyIterating)
}

func TestTarReader_Truncated(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 4096)
	data := tarArchive(t, engine.FormatTar, regular("big.bin", string(content)), regular("next.txt", "n"))
	truncated := data[:512+1000]

	r, err := NewTarReader(engine.FormatTar, bytes.NewReader(truncated))
	require.NoError(t, err)

	var errs []error
	for e, err := range r.Entries() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rc, err := e.Open()
		require.NoError(t, err)
		_, err = io.ReadAll(rc)
		errs = append(errs, err)
	}
	require.NotEmpty(t, errs)
	require.ErrorIs(t, errs[0], engine.ErrCorruptArchive)
}

func TestTarReader_EmptyArchive(t *testing.T) {
	data := tarArchive(t, engine.FormatTarGz)
	r := open(t, engine.FormatTarGz, data)
	assert.Empty(t, collect(t, r))
}
