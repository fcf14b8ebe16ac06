package writers

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"time"
	"unicode/utf16"

	"github.com/archconv/archconv/internal/engine"
	"github.com/klauspost/compress/flate"
)

// 7z property identifiers, see 7zFormat.txt.
const (
	szEnd             = 0x00
	szHeader          = 0x01
	szMainStreamsInfo = 0x04
	szFilesInfo       = 0x05
	szPackInfo        = 0x06
	szUnpackInfo      = 0x07
	szSubStreamsInfo  = 0x08
	szSize            = 0x09
	szCRC             = 0x0A
	szFolderID        = 0x0B
	szCodersUnpackSz  = 0x0C
	szEmptyStream     = 0x0E
	szEmptyFile       = 0x0F
	szName            = 0x11
	szMTime           = 0x14
	szAttributes      = 0x15

	szAttrReadOnly      = 0x1
	szAttrDirectory     = 0x10
	szAttrArchive       = 0x20
	szAttrUnixExtension = 0x8000

	szSignatureHeaderSize = 32

	// 100ns intervals between 1601-01-01 and 1970-01-01.
	filetimeEpochOffset = 116444736000000000
)

var (
	szSignature = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}
	szVersion   = []byte{0, 4}

	szMethodCopy    = []byte{0x00}
	szMethodDeflate = []byte{0x04, 0x01, 0x08}
)

type szFolder struct {
	method     []byte
	packSize   uint64
	unpackSize uint64
	crc        uint32
}

type szFile struct {
	name        string
	emptyStream bool
	emptyFile   bool
	modTime     time.Time
	attributes  uint32
}

// SevenZipWriter produces non-solid 7z archives: every non-empty stream is its own
// Deflate folder (Copy for symlink targets). Packed streams are spooled because the
// signature header at offset 0 needs the header offset, which is only known at the end.
type SevenZipWriter struct {
	dst     io.Writer
	level   int
	packed  *engine.SpoolFile
	offset  uint64
	folders []szFolder
	files   []szFile
	state   engine.WriterState
}

func NewSevenZipWriter(dst io.Writer, opts Options) (*SevenZipWriter, error) {
	packed, err := opts.Spool.Create()
	if err != nil {
		return nil, fmt.Errorf("failed to create 7z spool: %w", err)
	}
	return &SevenZipWriter{
		dst:    dst,
		level:  opts.flateLevel(),
		packed: packed,
	}, nil
}

func (w *SevenZipWriter) Format() engine.Format {
	return engine.FormatSevenZ
}

func (w *SevenZipWriter) Append(ctx context.Context, e *engine.Entry) ([]engine.Diagnostic, error) {
	if err := w.state.BeginAppend(); err != nil {
		return nil, err
	}
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	file := szFile{
		name:       e.Path.String(),
		modTime:    e.ModTime,
		attributes: sevenZipAttributes(e),
	}

	var (
		folder szFolder
		err    error
	)
	switch e.Kind {
	case engine.KindDirectory:
		file.emptyStream = true
	case engine.KindSymlink:
		folder, err = w.pack(bytes.NewReader([]byte(e.LinkTarget)), szMethodCopy)
	default:
		var rc io.ReadCloser
		rc, err = e.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		folder, err = w.pack(rc, szMethodDeflate)
	}
	if err != nil {
		return nil, err
	}

	if e.Kind != engine.KindDirectory {
		if folder.unpackSize == 0 {
			// No folder for empty streams; the offset stays put so the coder output is dropped.
			file.emptyStream = true
			file.emptyFile = true
		} else {
			w.folders = append(w.folders, folder)
			w.offset += folder.packSize
		}
	}

	w.files = append(w.files, file)
	w.state.Appended()
	return nil, nil
}

func (w *SevenZipWriter) pack(r io.Reader, method []byte) (szFolder, error) {
	if _, err := w.packed.Seek(int64(w.offset), io.SeekStart); err != nil {
		return szFolder{}, engine.WriteIOError("failed to seek 7z spool", err)
	}

	counter := &countingWriter{w: ioWriter{w: w.packed, op: "failed to write 7z stream"}}
	var enc io.WriteCloser = &nopWriteCloser{counter}
	if bytes.Equal(method, szMethodDeflate) {
		fw, err := flate.NewWriter(counter, w.level)
		if err != nil {
			return szFolder{}, fmt.Errorf("failed to create deflate coder: %w", err)
		}
		enc = fw
	}

	crc := crc32.NewIEEE()
	n, err := io.Copy(enc, io.TeeReader(r, crc))
	if err != nil {
		return szFolder{}, err
	}
	if err := enc.Close(); err != nil {
		return szFolder{}, err
	}

	return szFolder{
		method:     method,
		packSize:   counter.n,
		unpackSize: uint64(n),
		crc:        crc.Sum32(),
	}, nil
}

// Finalize writes the signature header, the packed streams and the archive header.
func (w *SevenZipWriter) Finalize() error {
	if err := w.state.BeginFinalize(); err != nil {
		return err
	}

	header := w.header()

	start := make([]byte, 20)
	binary.LittleEndian.PutUint64(start[0:], w.offset)
	binary.LittleEndian.PutUint64(start[8:], uint64(len(header)))
	binary.LittleEndian.PutUint32(start[16:], crc32.ChecksumIEEE(header))

	sig := make([]byte, 0, szSignatureHeaderSize)
	sig = append(sig, szSignature...)
	sig = append(sig, szVersion...)
	sig = binary.LittleEndian.AppendUint32(sig, crc32.ChecksumIEEE(start))
	sig = append(sig, start...)

	if _, err := w.dst.Write(sig); err != nil {
		return engine.WriteIOError("failed to write 7z signature header", err)
	}

	if err := w.packed.Rewind(); err != nil {
		return engine.WriteIOError("failed to rewind 7z spool", err)
	}
	if _, err := io.CopyN(w.dst, w.packed, int64(w.offset)); err != nil {
		return engine.WriteIOError("failed to copy 7z packed streams", err)
	}

	if _, err := w.dst.Write(header); err != nil {
		return engine.WriteIOError("failed to write 7z header", err)
	}

	return w.Close()
}

func (w *SevenZipWriter) Close() error {
	if w.packed == nil {
		return nil
	}
	err := w.packed.Close()
	w.packed = nil
	return err
}

func (w *SevenZipWriter) header() []byte {
	var b szBuffer
	b.byte(szHeader)

	if len(w.folders) > 0 {
		b.byte(szMainStreamsInfo)

		b.byte(szPackInfo)
		b.number(0)
		b.number(uint64(len(w.folders)))
		b.byte(szSize)
		for _, f := range w.folders {
			b.number(f.packSize)
		}
		b.byte(szEnd)

		b.byte(szUnpackInfo)
		b.byte(szFolderID)
		b.number(uint64(len(w.folders)))
		b.byte(0) // not external
		for _, f := range w.folders {
			b.number(1) // one coder
			b.byte(byte(len(f.method)))
			b.Write(f.method)
		}
		b.byte(szCodersUnpackSz)
		for _, f := range w.folders {
			b.number(f.unpackSize)
		}
		b.byte(szEnd)

		b.byte(szSubStreamsInfo)
		b.byte(szCRC)
		b.byte(1) // all defined
		for _, f := range w.folders {
			b.uint32(f.crc)
		}
		b.byte(szEnd)

		b.byte(szEnd)
	}

	if len(w.files) > 0 {
		b.filesInfo(w.files)
	}

	b.byte(szEnd)
	return b.Bytes()
}

func (b *szBuffer) filesInfo(files []szFile) {
	b.byte(szFilesInfo)
	b.number(uint64(len(files)))

	var emptyStreams, emptyFiles []bool
	for _, f := range files {
		emptyStreams = append(emptyStreams, f.emptyStream)
		if f.emptyStream {
			emptyFiles = append(emptyFiles, f.emptyFile)
		}
	}
	if len(emptyFiles) > 0 {
		b.property(szEmptyStream, bitVector(emptyStreams))
		if anyTrue(emptyFiles) {
			b.property(szEmptyFile, bitVector(emptyFiles))
		}
	}

	var names szBuffer
	names.byte(0) // not external
	for _, f := range files {
		for _, u := range utf16.Encode([]rune(f.name)) {
			names.uint16(u)
		}
		names.uint16(0)
	}
	b.property(szName, names.Bytes())

	var times szBuffer
	defined := make([]bool, len(files))
	for i, f := range files {
		defined[i] = !f.modTime.IsZero()
	}
	if anyTrue(defined) {
		times.definedVector(defined)
		times.byte(0) // not external
		for _, f := range files {
			if !f.modTime.IsZero() {
				times.uint64(uint64(f.modTime.UnixNano()/100 + filetimeEpochOffset))
			}
		}
		b.property(szMTime, times.Bytes())
	}

	var attrs szBuffer
	attrs.byte(1) // all defined
	attrs.byte(0) // not external
	for _, f := range files {
		attrs.uint32(f.attributes)
	}
	b.property(szAttributes, attrs.Bytes())

	b.byte(szEnd)
}

// sevenZipAttributes encodes the windows attributes plus the unix mode in the high bits.
func sevenZipAttributes(e *engine.Entry) uint32 {
	unixMode := uint32(unixPerm(e.Perm()))
	attrs := uint32(szAttrUnixExtension)

	switch e.Kind {
	case engine.KindDirectory:
		attrs |= szAttrDirectory
		unixMode |= 0o040000
	case engine.KindSymlink:
		attrs |= szAttrArchive
		unixMode |= 0o120000
	default:
		attrs |= szAttrArchive
		unixMode |= 0o100000
	}
	if e.Perm()&0o222 == 0 {
		attrs |= szAttrReadOnly
	}
	return attrs | unixMode<<16
}

type szBuffer struct {
	bytes.Buffer
}

func (b *szBuffer) byte(v byte) {
	b.WriteByte(v)
}

func (b *szBuffer) uint16(v uint16) {
	b.Write(binary.LittleEndian.AppendUint16(nil, v))
}

func (b *szBuffer) uint32(v uint32) {
	b.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func (b *szBuffer) uint64(v uint64) {
	b.Write(binary.LittleEndian.AppendUint64(nil, v))
}

// number writes the 7z variable length integer: the count of leading one bits in the
// first byte gives the number of extra little-endian bytes.
func (b *szBuffer) number(v uint64) {
	first := byte(0)
	mask := byte(0x80)
	i := 0
	for ; i < 8; i++ {
		if v < uint64(1)<<(7*(i+1)) {
			first |= byte(v >> (8 * i))
			break
		}
		first |= mask
		mask >>= 1
	}
	b.WriteByte(first)
	for ; i > 0; i-- {
		b.WriteByte(byte(v))
		v >>= 8
	}
}

func (b *szBuffer) property(id byte, data []byte) {
	b.byte(id)
	b.number(uint64(len(data)))
	b.Write(data)
}

func (b *szBuffer) definedVector(defined []bool) {
	if !anyFalse(defined) {
		b.byte(1)
		return
	}
	b.byte(0)
	b.Write(bitVector(defined))
}

func bitVector(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, set := range bits {
		if set {
			out[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out
}

func anyTrue(bits []bool) bool {
	for _, b := range bits {
		if b {
			return true
		}
	}
	return false
}

func anyFalse(bits []bool) bool {
	for _, b := range bits {
		if !b {
			return true
		}
	}
	return false
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}
