package engine

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/samber/lo"
)

// Format identifies a supported container format.
type Format string

const (
	FormatUnknown Format = ""
	FormatZip     Format = "zip"
	FormatTarGz   Format = "tar.gz"
	FormatTarZst  Format = "tar.zst"
	FormatTar     Format = "tar"
	FormatSevenZ  Format = "7z"
)

// Formats lists every supported format in display order.
var Formats = []Format{FormatZip, FormatTarGz, FormatSevenZ, FormatTarZst, FormatTar}

var formatAliases = map[string]Format{
	"zip":     FormatZip,
	"tar.gz":  FormatTarGz,
	"tgz":     FormatTarGz,
	"targz":   FormatTarGz,
	"tar.zst": FormatTarZst,
	"tzst":    FormatTarZst,
	"tar":     FormatTar,
	"7z":      FormatSevenZ,
	"7zip":    FormatSevenZ,
}

// ParseFormat parses a user supplied format identifier.
func ParseFormat(s string) (Format, error) {
	if f, ok := formatAliases[strings.ToLower(strings.TrimPrefix(s, "."))]; ok {
		return f, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %q (available: %v)", ErrUnsupportedFormat, s, Formats)
}

// IsSupported reports whether f is one of Formats.
func IsSupported(f Format) bool {
	return lo.Contains(Formats, f)
}

func (f Format) String() string {
	if f == FormatUnknown {
		return "unknown"
	}
	return string(f)
}

// Extension returns the canonical file extension, including the leading dot.
func (f Format) Extension() string {
	if f == FormatUnknown {
		return ""
	}
	return "." + string(f)
}

// ContentType returns the media type used when publishing an archive.
func (f Format) ContentType() string {
	switch f {
	case FormatZip:
		return "application/zip"
	case FormatTarGz:
		return "application/gzip"
	case FormatTarZst:
		return "application/zstd"
	case FormatTar:
		return "application/x-tar"
	case FormatSevenZ:
		return "application/x-7z-compressed"
	default:
		return "application/octet-stream"
	}
}

// FormatFromPath guesses the format from a file name extension. It is only a hint.
func FormatFromPath(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZst
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip
	case strings.HasSuffix(lower, ".7z"):
		return FormatSevenZ
	default:
		return FormatUnknown
	}
}

// TrimExtension strips a known archive extension from name.
func TrimExtension(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range []string{".tar.gz", ".tgz", ".tar.zst", ".tzst", ".tar", ".zip", ".7z"} {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

const (
	tarBlockSize   = 512
	tarMagicOffset = 257
	// SniffSize is how many leading bytes Sniff needs to tell formats apart.
	SniffSize = tarBlockSize
)

var (
	zipMagics = [][]byte{
		[]byte("PK\x03\x04"),
		[]byte("PK\x05\x06"), // empty archive
		[]byte("PK\x07\x08"), // spanned marker
	}
	sevenZMagic = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}
	gzipMagic   = []byte{0x1F, 0x8B}
	zstdMagic   = []byte{0x28, 0xB5, 0x2F, 0xFD}
)

// Sniff identifies the container format from the leading bytes of r. Compressed streams
// are decompressed far enough to check that they hold a tar archive. Anything else
// yields ErrUnsupportedFormat.
func Sniff(r io.ReaderAt) (Format, error) {
	head := make([]byte, SniffSize)
	n, err := r.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return FormatUnknown, fmt.Errorf("failed to read signature: %w", err)
	}
	head = head[:n]

	switch {
	case lo.SomeBy(zipMagics, func(m []byte) bool { return bytes.HasPrefix(head, m) }):
		return FormatZip, nil
	case bytes.HasPrefix(head, sevenZMagic):
		return FormatSevenZ, nil
	case bytes.HasPrefix(head, gzipMagic):
		if compressedTar(r, FormatTarGz) {
			return FormatTarGz, nil
		}
	case bytes.HasPrefix(head, zstdMagic):
		if compressedTar(r, FormatTarZst) {
			return FormatTarZst, nil
		}
	case IsTarHeader(head):
		return FormatTar, nil
	}

	return FormatUnknown, ErrUnsupportedFormat
}

func compressedTar(r io.ReaderAt, f Format) bool {
	src := io.NewSectionReader(r, 0, 1<<62)

	var dec io.Reader
	switch f {
	case FormatTarGz:
		gr, err := gzip.NewReader(src)
		if err != nil {
			return false
		}
		defer gr.Close()
		dec = gr
	case FormatTarZst:
		zr, err := zstd.NewReader(src)
		if err != nil {
			return false
		}
		defer zr.Close()
		dec = zr
	default:
		return false
	}

	block := make([]byte, tarBlockSize)
	n, err := io.ReadFull(dec, block)
	if err != nil && n == 0 {
		return false
	}
	block = block[:n]
	// Inside a compressed stream an end-of-archive block is an empty tar.
	return IsTarHeader(block) || (len(block) == tarBlockSize && bytes.Count(block, []byte{0}) == tarBlockSize)
}

// IsTarHeader reports whether block is a tar header: either a ustar magic or a valid
// header checksum. An all-zero block is not one, so zero-filled files are not taken for
// empty tar archives.
func IsTarHeader(block []byte) bool {
	if len(block) < tarBlockSize {
		return false
	}
	if bytes.HasPrefix(block[tarMagicOffset:], []byte("ustar")) {
		return true
	}
	return validTarChecksum(block)
}

func validTarChecksum(block []byte) bool {
	field := strings.TrimRight(strings.TrimSpace(string(bytes.TrimRight(block[148:156], "\x00 "))), "\x00")
	if field == "" {
		return false
	}
	var want int64
	for _, c := range field {
		if c < '0' || c > '7' {
			return false
		}
		want = want*8 + int64(c-'0')
	}

	var sum int64
	for i, b := range block[:tarBlockSize] {
		if i >= 148 && i < 156 {
			b = ' '
		}
		sum += int64(b)
	}
	return sum == want
}
