package objectstore_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/objectstore"
	"github.com/stretchr/testify/require"
)

const noSuchKeyXML = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`

// fakeS3 answers just enough of the S3 API for an empty bucket.
func fakeS3(t *testing.T) string {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(noSuchKeyXML))
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)

	return parsed.Host
}

func TestMinioStore_MissingObject(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewMinioStore(context.Background(), objectstore.MinioConfig{
		Endpoint:  fakeS3(t),
		AccessKey: "test",
		SecretKey: "testsecret",
		Bucket:    "tts-audio",
		Region:    "us-east-1",
		UseSSL:    false,
	})
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "missing.wav")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, store.Delete(context.Background(), "missing.wav"))
}

func TestNewMinioStore_RequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := objectstore.NewMinioStore(context.Background(), objectstore.MinioConfig{Endpoint: "localhost:9000"})
	require.ErrorIs(t, err, core.ErrValidation)
}

// TestMinioStore_Live runs against a real server when MINIO_ENDPOINT is set.
func TestMinioStore_Live(t *testing.T) {
	t.Parallel()

	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}

	store, err := objectstore.NewMinioStore(context.Background(), objectstore.MinioConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    "tts-orchestrator-test",
		Region:    "",
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, "live.wav", []byte("RIFF")))

	data, err := store.Download(ctx, "live.wav")
	require.NoError(t, err)
	require.Equal(t, []byte("RIFF"), data)
	require.NoError(t, store.Delete(ctx, "live.wav"))
}
