package gcs

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type fakeGCS struct {
	mu      sync.Mutex
	uploads []string
	bodies  []string
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/upload/storage/v1/b/"):
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.uploads = append(f.uploads, r.URL.Query().Get("name"))
		f.bodies = append(f.bodies, string(body))
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"bucket":"snapshots","name":"object"}`)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/b/snapshots"):
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"name":"snapshots"}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return client
}

func TestNewValidatesInput(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "snapshots"})
	require.Error(t, err)

	client := newTestClient(t, &fakeGCS{})
	_, err = New(client, Config{Bucket: " "})
	require.Error(t, err)
}

func TestPutObjectUploadsAndReturnsURI(t *testing.T) {
	t.Parallel()

	fake := &fakeGCS{}
	store, err := New(newTestClient(t, fake), Config{Bucket: "snapshots"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "gamestop/12345/1-abc.html", "text/html", bytes.NewReader([]byte("<html></html>")))
	require.NoError(t, err)
	require.Equal(t, "gs://snapshots/gamestop/12345/1-abc.html", uri)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, []string{"gamestop/12345/1-abc.html"}, fake.uploads)
	require.Len(t, fake.bodies, 1)
	require.Contains(t, fake.bodies[0], "<html></html>")
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := New(newTestClient(t, &fakeGCS{}), Config{Bucket: "snapshots"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "", "text/html", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	t.Parallel()

	store, err := New(newTestClient(t, &fakeGCS{}), Config{Bucket: "snapshots"})
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))

	missing, err := New(newTestClient(t, &fakeGCS{}), Config{Bucket: "other"})
	require.NoError(t, err)
	require.Error(t, missing.Ping(context.Background()))
}
