package engine

import (
	"slices"
	"strings"
)

// Path is a normalized member path: one element per segment, never empty, no "." or "..".
type Path []string

// ParsePath normalizes an archive member name. Backslashes are treated as separators,
// leading slashes and "." segments are dropped. Names that are empty after cleaning or
// that contain ".." are rejected with ErrUnsafePath.
func ParsePath(name string) (Path, error) {
	cleaned := strings.ReplaceAll(name, "\\", "/")

	var segments Path
	for _, segment := range strings.Split(cleaned, "/") {
		switch segment {
		case "", ".":
			continue
		case "..":
			return nil, NewEntryError(name, ErrUnsafePath, "path escapes archive root")
		}
		segments = append(segments, segment)
	}

	if len(segments) == 0 {
		return nil, NewEntryError(name, ErrUnsafePath, "empty path")
	}

	return segments, nil
}

// MustParsePath is ParsePath for literals known to be valid.
func MustParsePath(name string) Path {
	p, err := ParsePath(name)
	if err != nil {
		panic(err)
	}
	return p
}

// String joins the segments with forward slashes.
func (p Path) String() string {
	return strings.Join(p, "/")
}

// Base returns the last segment.
func (p Path) Base() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

func (p Path) Equal(other Path) bool {
	return slices.Equal(p, other)
}
