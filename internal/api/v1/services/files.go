package services

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"

	apierrors "ai-subtitler/internal/api/errors"
	"ai-subtitler/internal/app/storage"
)

type fileService struct {
	store     storage.SourceStore
	urlPrefix string
}

// NewFileService serves files stored under urlPrefix/<owner>/<name>.
func NewFileService(store storage.SourceStore, urlPrefix string) FileService {
	return &fileService{store: store, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}
}

// Open returns the file at p, relative to the URL prefix, and its content type.
func (s *fileService) Open(ctx context.Context, owner, p string) (io.ReadCloser, string, error) {
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	dir, name, ok := strings.Cut(rel, "/")
	if !ok || name == "" {
		return nil, "", apierrors.NewNotFoundError("File")
	}
	if dir != owner {
		return nil, "", apierrors.NewForbiddenError("Forbidden")
	}

	rc, err := s.store.Open(ctx, s.urlPrefix+"/"+rel)
	if err != nil {
		return nil, "", err
	}

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return rc, contentType, nil
}
