package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"strings"
)

// ErrObjectNotFound is returned when a reference does not resolve to stored bytes.
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidReference is returned for references outside the store's namespace.
var ErrInvalidReference = errors.New("invalid storage reference")

// SourceStore resolves uploaded source references to bytes.
type SourceStore interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}

// LocalResolver is implemented by source stores whose references map to
// files on this machine, so callers can skip copying the bytes.
type LocalResolver interface {
	LocalPath(ref string) (string, error)
}

// ArtifactStore holds produced subtitle artifacts.
type ArtifactStore interface {
	// Put stores data under key and returns a retrievable location.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get reads back the bytes behind a location returned by Put.
	Get(ctx context.Context, ref string) ([]byte, error)
	// Delete removes the artifact behind a location returned by Put.
	Delete(ctx context.Context, ref string) error
}

// keyFromRef strips base from ref and returns the unescaped object key.
func keyFromRef(base, ref string) (string, error) {
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(ref, base+"/") {
		return "", ErrInvalidReference
	}
	segments := strings.Split(strings.TrimPrefix(ref, base+"/"), "/")
	for i, seg := range segments {
		unescaped, err := url.PathUnescape(seg)
		if err != nil {
			return "", ErrInvalidReference
		}
		segments[i] = unescaped
	}
	key := strings.Join(segments, "/")
	if key == "" || path.Clean("/"+key) != "/"+key {
		return "", ErrInvalidReference
	}
	return key, nil
}

// ObjectURL appends key to base, escaping each path segment.
func ObjectURL(base, key string) string {
	segments := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.Join(segments, "/")
}
