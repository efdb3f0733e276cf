package gamestop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
	"github.com/JakeFAU/graded-card-estimator/internal/telemetry"
)

const (
	defaultNavigationTimeout = 20 * time.Second
	defaultSettleDelay       = time.Second
	defaultActionTimeout     = 10 * time.Second
	defaultResultTimeout     = 15 * time.Second
	captureTimeout           = 2 * time.Second
	pollInterval             = 250 * time.Millisecond
)

// BrowserConfig controls the headless browser.
type BrowserConfig struct {
	EstimateURL       string
	ExecPath          string
	Headless          bool
	NoSandbox         bool
	UserAgent         string
	MaxParallel       int
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	ActionTimeout     time.Duration
	ResultTimeout     time.Duration
}

var errBrowserClosed = errors.New("browser closed")

// Browser renders the estimate page with chromedp. One Chrome process is
// shared; every Render opens and closes its own tab.
type Browser struct {
	cfg         BrowserConfig
	selectors   Selectors
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closed        bool
}

// NewBrowser creates a Browser. Chrome is started lazily on the first Render.
func NewBrowser(cfg BrowserConfig, selectors Selectors, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if err := selectors.Validate(); err != nil {
		return nil, err
	}
	if cfg.EstimateURL == "" {
		cfg.EstimateURL = DefaultEstimateURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		selectors:   selectors,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close shuts down Chrome. Render fails once the browser is closed.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.browserCancel != nil {
		b.browserCancel()
		b.browserCtx, b.browserCancel = nil, nil
	}
	b.allocCancel()
}

// browserContext returns the shared browser context, starting Chrome when
// none is running or the previous one has gone away.
func (b *Browser) browserContext() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errBrowserClosed
	}
	if b.browserCtx != nil && b.browserCtx.Err() == nil {
		return b.browserCtx, nil
	}
	if b.browserCancel != nil {
		b.browserCancel()
	}
	browserCtx, browserCancel := chromedp.NewContext(b.allocator)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		b.browserCtx, b.browserCancel = nil, nil
		return nil, fmt.Errorf("start browser: %w", err)
	}
	b.browserCtx, b.browserCancel = browserCtx, browserCancel
	b.logger.Debug("browser started")
	return browserCtx, nil
}

// discard drops browserCtx so the next Render starts a fresh Chrome. A
// browser that was already replaced is left alone.
func (b *Browser) discard(browserCtx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCtx != browserCtx || b.browserCancel == nil {
		return
	}
	b.browserCancel()
	b.browserCtx, b.browserCancel = nil, nil
}

// openTab opens a new tab in the shared browser. A browser that cannot open
// tabs is assumed dead and restarted once.
func (b *Browser) openTab() (context.Context, context.CancelFunc, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		browserCtx, err := b.browserContext()
		if err != nil {
			return nil, nil, err
		}
		tabCtx, cancelTab := chromedp.NewContext(browserCtx)
		if err := chromedp.Run(tabCtx); err != nil {
			cancelTab()
			lastErr = err
			b.logger.Warn("browser tab failed to open; restarting browser", zap.Error(err))
			b.discard(browserCtx)
			continue
		}
		return tabCtx, cancelTab, nil
	}
	return nil, nil, lastErr
}

// step is one stage of the estimate flow with its own deadline.
type step struct {
	name      string
	timeout   time.Duration
	action    chromedp.Action
	onTimeout func(error) error
}

// Render enters cert on the estimate page and returns the page once an
// offer or a "no offer" notice is shown. On failure the returned Page holds
// whatever markup the tab had, for diagnostics.
func (b *Browser) Render(ctx context.Context, cert string) (Page, error) {
	if err := b.acquire(ctx); err != nil {
		return Page{}, estimate.Timeout("Timed out waiting for a free browser session.", err)
	}
	defer b.release()
	telemetry.IncBrowserSessions()
	defer telemetry.DecBrowserSessions()

	ctx, span := otel.Tracer("gamestop").Start(ctx, "gamestop.render")
	span.SetAttributes(attribute.String("psa_cert", cert))
	defer span.End()

	tabCtx, cancelTab, err := b.openTab()
	if err != nil {
		return Page{}, estimate.Unexpected(fmt.Errorf("open browser tab: %w", err))
	}
	defer cancelTab()
	stopForward := forwardCancel(ctx, cancelTab)
	defer stopForward()

	page := Page{URL: b.cfg.EstimateURL}
	for _, st := range b.steps(cert, &page) {
		start := time.Now()
		if err := b.runStep(ctx, tabCtx, st); err != nil {
			b.logger.Debug("estimate step failed",
				zap.String("step", st.name),
				zap.String("psa_cert", cert),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			span.RecordError(err)
			return b.captureAfterFailure(tabCtx, page), err
		}
	}
	return page, nil
}

func (b *Browser) steps(cert string, page *Page) []step {
	sel := b.selectors
	var resultShown bool
	return []step{
		{
			name:    "navigate",
			timeout: orDefault(b.cfg.NavigationTimeout, defaultNavigationTimeout),
			action: chromedp.Tasks{
				b.userAgentAction(),
				chromedp.Navigate(b.cfg.EstimateURL),
				chromedp.WaitReady("body", chromedp.ByQuery),
			},
			onTimeout: func(err error) error {
				return estimate.Timeout("Timed out loading the GameStop estimate page.", err)
			},
		},
		{
			name:    "settle",
			timeout: orDefault(b.cfg.SettleDelay, defaultSettleDelay) + defaultActionTimeout,
			action:  chromedp.Sleep(orDefault(b.cfg.SettleDelay, defaultSettleDelay)),
		},
		{
			name:    "fill",
			timeout: orDefault(b.cfg.ActionTimeout, defaultActionTimeout),
			action: chromedp.Tasks{
				chromedp.WaitVisible(sel.PSAInput, chromedp.ByQuery),
				chromedp.Clear(sel.PSAInput, chromedp.ByQuery),
				chromedp.SendKeys(sel.PSAInput, cert, chromedp.ByQuery),
			},
			onTimeout: func(err error) error {
				return estimate.SiteChanged("PSA input field not found; selectors likely outdated.", err)
			},
		},
		{
			name:    "submit",
			timeout: orDefault(b.cfg.ActionTimeout, defaultActionTimeout),
			action:  chromedp.Click(sel.SubmitXPath(), chromedp.BySearch),
			onTimeout: func(err error) error {
				return estimate.SiteChanged("Submit button not found; selectors likely outdated.", err)
			},
		},
		{
			name:    "await_result",
			timeout: orDefault(b.cfg.ResultTimeout, defaultResultTimeout),
			action: chromedp.Poll(
				resultPredicate(sel),
				&resultShown,
				chromedp.WithPollingInterval(pollInterval),
				chromedp.WithPollingTimeout(orDefault(b.cfg.ResultTimeout, defaultResultTimeout)),
			),
			onTimeout: func(err error) error {
				return estimate.Timeout(estimate.TimeoutDetail, err)
			},
		},
		{
			name:    "capture",
			timeout: orDefault(b.cfg.ActionTimeout, defaultActionTimeout),
			action: chromedp.Tasks{
				chromedp.Location(&page.URL),
				chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery),
				chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &page.BodyText),
			},
		},
	}
}

// runStep executes st under its own deadline and classifies failures. A
// canceled or expired parent context takes precedence over step timeouts.
func (b *Browser) runStep(parent, tabCtx context.Context, st step) error {
	stepCtx, cancel := context.WithTimeout(tabCtx, st.timeout)
	defer cancel()

	err := chromedp.Run(stepCtx, st.action)
	if err == nil {
		return nil
	}
	if parentErr := parent.Err(); parentErr != nil {
		return estimate.AsError(fmt.Errorf("%s: %w", st.name, parentErr))
	}
	timedOut := errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, chromedp.ErrPollingTimeout) ||
		errors.Is(stepCtx.Err(), context.DeadlineExceeded)
	if timedOut && st.onTimeout != nil {
		return st.onTimeout(err)
	}
	return estimate.Unexpected(fmt.Errorf("%s: %w", st.name, err))
}

// captureAfterFailure grabs the current markup without failing the lookup further.
func (b *Browser) captureAfterFailure(tabCtx context.Context, page Page) Page {
	ctx, cancel := context.WithTimeout(tabCtx, captureTimeout)
	defer cancel()
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		b.logger.Debug("failure snapshot unavailable", zap.Error(err))
		return page
	}
	page.HTML = html
	return page
}

func (b *Browser) userAgentAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if b.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

// resultPredicate is truthy once either the offer or the no-offer notice exists.
func resultPredicate(sel Selectors) string {
	return fmt.Sprintf("!!document.querySelector(%s) || !!document.querySelector(%s)",
		jsString(sel.ResultContainer), jsString(sel.NoOffer))
}

func jsString(v string) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(encoded)
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
