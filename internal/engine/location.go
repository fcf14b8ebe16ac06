package engine

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

const (
	SchemeFile  = "file"
	SchemeStdio = "stdio"
	SchemeS3    = "s3"
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

// Location is a parsed source or destination: a local path, "-" for stdio, or a URL.
type Location struct {
	Scheme string
	// Host is the bucket for s3 and the host for http(s).
	Host string
	// Path is the local path, the object key (without leading slash) or the URL path.
	Path string
	Raw  string
}

// ParseLocation parses raw. Strings without a scheme are local paths.
func ParseLocation(raw string) (Location, error) {
	if raw == "" {
		return Location{}, fmt.Errorf("empty location")
	}
	if raw == "-" {
		return Location{Scheme: SchemeStdio, Raw: raw}, nil
	}

	scheme, _, found := strings.Cut(raw, "://")
	if !found {
		return Location{Scheme: SchemeFile, Path: filepath.Clean(raw), Raw: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("failed to parse location %q: %w", raw, err)
	}

	loc := Location{Scheme: strings.ToLower(scheme), Host: u.Host, Path: u.Path, Raw: raw}
	switch loc.Scheme {
	case SchemeFile:
		loc.Path = filepath.Clean(u.Path)
	case SchemeS3:
		loc.Path = strings.TrimPrefix(u.Path, "/")
		if loc.Host == "" {
			return Location{}, fmt.Errorf("s3 location %q has no bucket", raw)
		}
	}
	return loc, nil
}

// Base returns the last path element, used to derive output names.
func (l Location) Base() string {
	switch l.Scheme {
	case SchemeStdio:
		return "stdin"
	case SchemeFile:
		return filepath.Base(l.Path)
	default:
		return path.Base(l.Path)
	}
}

func (l Location) String() string {
	return l.Raw
}
