package gamestop

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
	memorystorage "github.com/JakeFAU/graded-card-estimator/internal/storage/memory"
)

type fakeRenderer struct {
	page  Page
	err   error
	certs []string
}

func (f *fakeRenderer) Render(_ context.Context, cert string) (Page, error) {
	f.certs = append(f.certs, cert)
	return f.page, f.err
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestClient(t *testing.T, mode SnapshotMode, renderer Renderer) (*Client, *memorystorage.BlobStore) {
	t.Helper()
	blobs := memorystorage.NewBlobStore()
	client, err := NewClient(
		ClientConfig{
			Selectors:      DefaultSelectors(),
			SnapshotMode:   mode,
			SnapshotPrefix: "snapshots",
		},
		renderer,
		blobs,
		fixedClock{now: time.Unix(1700000000, 0).UTC()},
		nil,
	)
	require.NoError(t, err)
	return client, blobs
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	clock := fixedClock{}
	_, err := NewClient(ClientConfig{Selectors: DefaultSelectors()}, nil, nil, clock, nil)
	require.Error(t, err)

	_, err = NewClient(ClientConfig{Selectors: DefaultSelectors(), SnapshotMode: SnapshotAlways},
		&fakeRenderer{}, nil, clock, nil)
	require.ErrorContains(t, err, "requires a blob store")

	_, err = NewClient(ClientConfig{}, &fakeRenderer{}, nil, clock, nil)
	require.Error(t, err)
}

func TestClientLookupSuccess(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{page: Page{HTML: resultHTML}}
	client, blobs := newTestClient(t, SnapshotOnError, renderer)

	res, err := client.Lookup(context.Background(), "12345678")
	require.NoError(t, err)
	require.Equal(t, []string{"12345678"}, renderer.certs)
	require.Equal(t, "12345678", res.Estimate.PSACert)
	require.Empty(t, res.SnapshotURI)
	require.Empty(t, blobs.Keys())
}

func TestClientLookupAlwaysSnapshots(t *testing.T) {
	t.Parallel()

	client, blobs := newTestClient(t, SnapshotAlways, &fakeRenderer{page: Page{HTML: resultHTML}})

	res, err := client.Lookup(context.Background(), "12345678")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.SnapshotURI, "memory://snapshots/12345678/1700000000000000000-"))
	require.Len(t, blobs.Keys(), 1)
}

func TestClientLookupSiteChangeSnapshotsMarkup(t *testing.T) {
	t.Parallel()

	page := Page{HTML: `<html><body><div class="redesign"></div></body></html>`}
	client, blobs := newTestClient(t, SnapshotOnError, &fakeRenderer{page: page})

	_, err := client.Lookup(context.Background(), "12345678")
	require.ErrorIs(t, err, estimate.ErrSiteChanged)
	var lookupErr *estimate.Error
	require.ErrorAs(t, err, &lookupErr)
	require.NotEmpty(t, lookupErr.SnapshotURI)

	keys := blobs.Keys()
	require.Len(t, keys, 1)
	data, ok := blobs.Get(keys[0])
	require.True(t, ok)
	require.Equal(t, page.HTML, string(data))
}

func TestClientLookupRenderFailureSnapshotsPartialPage(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{
		page: Page{HTML: "<html><body>half loaded</body></html>"},
		err:  estimate.SiteChanged("PSA input field not found; selectors likely outdated.", nil),
	}
	client, blobs := newTestClient(t, SnapshotOnError, renderer)

	_, err := client.Lookup(context.Background(), "12345678")
	require.ErrorIs(t, err, estimate.ErrSiteChanged)
	require.Len(t, blobs.Keys(), 1)
}

func TestClientLookupNotFoundSkipsSnapshotOnError(t *testing.T) {
	t.Parallel()

	page := Page{HTML: `<html><body><div data-testid="psa-estimate-no-offer">No offer</div></body></html>`}
	client, blobs := newTestClient(t, SnapshotOnError, &fakeRenderer{page: page})

	_, err := client.Lookup(context.Background(), "12345678")
	require.ErrorIs(t, err, estimate.ErrNotFound)
	require.Empty(t, blobs.Keys())
}

func TestClientLookupWrapsPlainErrors(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, SnapshotOff, &fakeRenderer{err: context.DeadlineExceeded})

	_, err := client.Lookup(context.Background(), "12345678")
	require.ErrorIs(t, err, estimate.ErrTimeout)
}

func TestSnapshotName(t *testing.T) {
	t.Parallel()

	at := time.Unix(1700000000, 0).UTC()
	name := SnapshotName("snapshots", "12345678", at, []byte("hello world"))
	require.Equal(t, "snapshots/12345678/1700000000000000000-b94d27b9934d.html", name)

	require.Equal(t, name, SnapshotName("snapshots", "12345678", at, []byte("hello world")))
	require.NotEqual(t, name, SnapshotName("snapshots", "12345678", at, []byte("hello world!")))
	require.Equal(t, "12345678/1700000000000000000-e3b0c44298fc.html", SnapshotName("", "12345678", at, nil))
}
