package gamestop

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
)

// SnapshotMode decides when rendered pages are archived.
type SnapshotMode string

// Snapshot modes.
const (
	SnapshotOff     SnapshotMode = "off"
	SnapshotOnError SnapshotMode = "on_error"
	SnapshotAlways  SnapshotMode = "always"
)

const (
	snapshotContentType = "text/html; charset=utf-8"
	snapshotDigestLen   = 12
)

// Renderer produces the rendered estimate page for a cert.
type Renderer interface {
	Render(ctx context.Context, cert string) (Page, error)
}

// BlobStore writes snapshot artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// ClientConfig tunes the Client.
type ClientConfig struct {
	Selectors      Selectors
	Currency       string
	SnapshotMode   SnapshotMode
	SnapshotPrefix string
}

// Client implements estimate.Looker on top of a Renderer.
type Client struct {
	cfg       ClientConfig
	renderer  Renderer
	snapshots BlobStore
	clock     Clock
	logger    *zap.Logger
}

// NewClient builds a Client. snapshots may be nil when SnapshotMode is off.
func NewClient(
	cfg ClientConfig,
	renderer Renderer,
	snapshots BlobStore,
	clock Clock,
	logger *zap.Logger,
) (*Client, error) {
	if renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if err := cfg.Selectors.Validate(); err != nil {
		return nil, err
	}
	if cfg.SnapshotMode == "" {
		cfg.SnapshotMode = SnapshotOff
	}
	if cfg.SnapshotMode != SnapshotOff && snapshots == nil {
		return nil, fmt.Errorf("snapshot mode %q requires a blob store", cfg.SnapshotMode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:       cfg,
		renderer:  renderer,
		snapshots: snapshots,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Lookup renders the estimate page for cert and extracts the offer.
func (c *Client) Lookup(ctx context.Context, cert string) (estimate.Result, error) {
	page, err := c.renderer.Render(ctx, cert)
	if err != nil {
		lookupErr := estimate.AsError(err)
		if c.snapshotOnFailure(lookupErr) {
			lookupErr.WithSnapshot(c.saveSnapshot(ctx, cert, page))
		}
		return estimate.Result{}, lookupErr
	}

	est, err := Extract(page, c.cfg.Selectors, cert, c.cfg.Currency, c.clock.Now())
	if err != nil {
		lookupErr := estimate.AsError(err)
		if c.snapshotOnFailure(lookupErr) {
			lookupErr.WithSnapshot(c.saveSnapshot(ctx, cert, page))
		}
		return estimate.Result{}, lookupErr
	}

	result := estimate.Result{Estimate: est}
	if c.cfg.SnapshotMode == SnapshotAlways {
		result.SnapshotURI = c.saveSnapshot(ctx, cert, page)
	}
	return result, nil
}

func (c *Client) snapshotOnFailure(err *estimate.Error) bool {
	switch c.cfg.SnapshotMode {
	case SnapshotAlways:
		return true
	case SnapshotOnError:
		return errors.Is(err, estimate.ErrSiteChanged) || err.Kind() == estimate.ErrLookup
	default:
		return false
	}
}

// saveSnapshot archives page.HTML and returns its URI, or "" when nothing was written.
func (c *Client) saveSnapshot(ctx context.Context, cert string, page Page) string {
	if page.HTML == "" {
		return ""
	}
	data := []byte(page.HTML)
	name := SnapshotName(c.cfg.SnapshotPrefix, cert, c.clock.Now(), data)
	uri, err := c.snapshots.PutObject(ctx, name, snapshotContentType, bytes.NewReader(data))
	if err != nil {
		c.logger.Warn("snapshot write failed",
			zap.String("psa_cert", cert),
			zap.String("path", name),
			zap.Error(err),
		)
		return ""
	}
	c.logger.Debug("snapshot written", zap.String("psa_cert", cert), zap.String("uri", uri))
	return uri
}

// SnapshotName returns the object name for a page snapshot:
// <prefix>/<cert>/<unix-nanos>-<sha256[:12]>.html.
func SnapshotName(prefix, cert string, at time.Time, html []byte) string {
	sum := sha256.Sum256(html)
	digest := hex.EncodeToString(sum[:])[:snapshotDigestLen]
	return path.Join(prefix, cert, fmt.Sprintf("%d-%s.html", at.UnixNano(), digest))
}
