package objectstore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidURI is returned for URIs without a bucket/key separator
	ErrInvalidURI = errors.New("invalid object store URI")
	// ErrUnsupportedScheme is returned for URIs whose scheme has no registered backend
	ErrUnsupportedScheme = errors.New("unsupported object store scheme")
)

// URI addresses one object as scheme://bucket/key
type URI struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseURI splits raw into scheme, bucket and key
func ParseURI(raw string) (URI, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || scheme == "" {
		return URI{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, raw)
	}

	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" {
		return URI{}, fmt.Errorf("%w: expected %s://<bucket>/<object-path>, got %q", ErrInvalidURI, scheme, raw)
	}

	return URI{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

// IsDirectory reports whether the key denotes directory-style placement
func (u URI) IsDirectory() bool {
	return u.Key == "" || strings.HasSuffix(u.Key, "/")
}

func (u URI) String() string {
	return fmt.Sprintf("%s://%s/%s", u.Scheme, u.Bucket, u.Key)
}

// schemeOf returns the scheme part of raw, or "" when raw has none
func schemeOf(raw string) string {
	scheme, _, ok := strings.Cut(raw, "://")
	if !ok {
		return ""
	}
	return scheme
}
