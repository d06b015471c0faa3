package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3ArtifactStore_PutGet(t *testing.T) {
	var mu sync.Mutex
	objects := map[string][]byte{}
	contentTypes := map[string]string{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			objects[r.URL.Path] = body
			contentTypes[r.URL.Path] = r.Header.Get("Content-Type")
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			body, ok := objects[r.URL.Path]
			if !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
				return
			}
			_, _ = w.Write(body)
		case http.MethodDelete:
			delete(objects, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	store, err := NewS3ArtifactStore(S3Config{
		Endpoint:      srv.URL,
		AccessKey:     "key",
		SecretKey:     "secret",
		Bucket:        "subtitles",
		UsePathStyle:  true,
		PublicBaseURL: "https://cdn.example.com",
	})
	require.NoError(t, err)

	ctx := context.Background()
	ref, err := store.Put(ctx, "job-1/talk.srt", []byte("1\n00:00:00,000 --> 00:00:01,000\nhi\n"), "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/job-1/talk.srt", ref)

	mu.Lock()
	assert.Contains(t, objects, "/subtitles/job-1/talk.srt")
	assert.Equal(t, "text/plain; charset=utf-8", contentTypes["/subtitles/job-1/talk.srt"])
	mu.Unlock()

	data, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:01,000\nhi\n", string(data))

	_, err = store.Get(ctx, "https://cdn.example.com/job-2/none.srt")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = store.Get(ctx, "https://other.example.com/job-1/talk.srt")
	assert.ErrorIs(t, err, ErrInvalidReference)

	spaced, err := store.Put(ctx, "job-3/My Talk.srt", []byte("x"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/job-3/My%20Talk.srt", spaced)
	mu.Lock()
	assert.Contains(t, objects, "/subtitles/job-3/My Talk.srt")
	mu.Unlock()
	data, err = store.Get(ctx, spaced)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	require.NoError(t, store.Delete(ctx, spaced))
	mu.Lock()
	assert.NotContains(t, objects, "/subtitles/job-3/My Talk.srt")
	mu.Unlock()
	assert.ErrorIs(t, store.Delete(ctx, "https://other.example.com/job-1/talk.srt"), ErrInvalidReference)
}

func TestNewS3ArtifactStore_RequiresLocation(t *testing.T) {
	_, err := NewS3ArtifactStore(S3Config{Bucket: "b"})
	assert.Error(t, err)

	_, err = NewS3ArtifactStore(S3Config{})
	assert.Error(t, err)
}
