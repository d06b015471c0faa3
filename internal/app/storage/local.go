package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ai-subtitler/internal/app/common"
)

// DefaultUploadURLPrefix is the URL namespace under which uploads are served.
const DefaultUploadURLPrefix = "/api/v1/files"

// DefaultArtifactURLPrefix is the URL namespace under which local artifacts are served.
const DefaultArtifactURLPrefix = "/api/v1/download"

// LocalStore keeps uploaded sources on disk under <root>/<owner>/<uuid><ext>.
type LocalStore struct {
	root      string
	urlPrefix string
	logger    *zap.Logger
}

func NewLocalStore(root, urlPrefix string, logger *zap.Logger) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("upload root is required")
	}
	if urlPrefix == "" {
		urlPrefix = DefaultUploadURLPrefix
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload root: %w", err)
	}
	return &LocalStore{root: abs, urlPrefix: strings.TrimSuffix(urlPrefix, "/"), logger: common.OrNop(logger)}, nil
}

// Save writes r to a fresh file owned by owner and returns its reference
// and the number of bytes written.
func (s *LocalStore) Save(ctx context.Context, owner, originalName string, r io.Reader) (string, int64, error) {
	if owner == "" || strings.ContainsAny(owner, `/\`) || owner == "." || owner == ".." {
		return "", 0, fmt.Errorf("%w: owner %q", ErrInvalidReference, owner)
	}
	dir := filepath.Join(s.root, owner)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create upload directory: %w", err)
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create upload file: %w", err)
	}

	n, err := io.Copy(f, contextReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("failed to write upload file: %w", err)
	}

	ref := ObjectURL(s.urlPrefix, owner+"/"+name)
	s.logger.Debug("Stored upload", zap.String("ref", ref), zap.Int64("bytes", n))
	return ref, n, nil
}

// LocalPath maps ref to a path inside the upload root.
func (s *LocalStore) LocalPath(ref string) (string, error) {
	return localPath(s.root, s.urlPrefix, ref)
}

func (s *LocalStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.LocalPath(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, notFoundOr(err, ref)
	}
	return f, nil
}

func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	path, err := s.LocalPath(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return notFoundOr(err, ref)
	}
	return nil
}

// LocalArtifactStore writes artifacts to disk and hands out URLs under urlPrefix.
type LocalArtifactStore struct {
	root      string
	urlPrefix string
}

func NewLocalArtifactStore(root, urlPrefix string) (*LocalArtifactStore, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact root is required")
	}
	if urlPrefix == "" {
		urlPrefix = DefaultArtifactURLPrefix
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact root: %w", err)
	}
	return &LocalArtifactStore{root: abs, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}, nil
}

func (s *LocalArtifactStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ref := ObjectURL(s.urlPrefix, key)
	path, err := localPath(s.root, s.urlPrefix, ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	// Write then rename so a reader never sees a partial artifact.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to commit artifact: %w", err)
	}
	return ref, nil
}

func (s *LocalArtifactStore) Delete(ctx context.Context, ref string) error {
	path, err := localPath(s.root, s.urlPrefix, ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return notFoundOr(err, ref)
	}
	// Drop the per-job directory once it is empty.
	if dir := filepath.Dir(path); dir != s.root {
		_ = os.Remove(dir)
	}
	return nil
}

func (s *LocalArtifactStore) Get(ctx context.Context, ref string) ([]byte, error) {
	path, err := localPath(s.root, s.urlPrefix, ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, notFoundOr(err, ref)
	}
	return data, nil
}

func localPath(root, urlPrefix, ref string) (string, error) {
	key, err := keyFromRef(urlPrefix, ref)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, ref)
	}
	path := filepath.Join(root, filepath.FromSlash(key))
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return path, nil
}

func notFoundOr(err error, ref string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, ref)
	}
	return fmt.Errorf("storage error for %s: %w", ref, err)
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
