package gamestop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
)

func TestNewBrowserValidation(t *testing.T) {
	t.Parallel()

	_, err := NewBrowser(BrowserConfig{MaxParallel: -1}, DefaultSelectors(), nil)
	require.Error(t, err)

	_, err = NewBrowser(BrowserConfig{MaxParallel: 1}, Selectors{}, nil)
	require.Error(t, err)

	browser, err := NewBrowser(BrowserConfig{MaxParallel: 2, Headless: true}, DefaultSelectors(), nil)
	require.NoError(t, err)
	defer browser.Close()
	require.Equal(t, 2, cap(browser.limiter))
	require.Equal(t, DefaultEstimateURL, browser.cfg.EstimateURL)
}

func TestBrowserAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	browser, err := NewBrowser(BrowserConfig{MaxParallel: 1}, DefaultSelectors(), nil)
	require.NoError(t, err)
	defer browser.Close()

	require.NoError(t, browser.acquire(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, browser.acquire(ctx))

	browser.release()
	require.NoError(t, browser.acquire(context.Background()))
	browser.release()
}

func TestBrowserStepsOrderAndDefaults(t *testing.T) {
	t.Parallel()

	browser, err := NewBrowser(BrowserConfig{}, DefaultSelectors(), nil)
	require.NoError(t, err)
	defer browser.Close()

	var page Page
	steps := browser.steps("12345", &page)
	names := make([]string, 0, len(steps))
	for _, st := range steps {
		names = append(names, st.name)
		require.Positive(t, st.timeout)
	}
	require.Equal(t, []string{"navigate", "settle", "fill", "submit", "await_result", "capture"}, names)
	require.Equal(t, defaultNavigationTimeout, steps[0].timeout)
	require.Equal(t, defaultResultTimeout, steps[4].timeout)
}

func TestResultPredicateQuotesSelectors(t *testing.T) {
	t.Parallel()

	got := resultPredicate(DefaultSelectors())
	require.Equal(t,
		`!!document.querySelector("[data-testid='psa-estimate-result']") || `+
			`!!document.querySelector("[data-testid='psa-estimate-no-offer']")`,
		got,
	)
}

func TestOrDefault(t *testing.T) {
	t.Parallel()

	require.Equal(t, time.Second, orDefault(0, time.Second))
	require.Equal(t, 2*time.Second, orDefault(2*time.Second, time.Second))
}

func TestBrowserCloseIsIdempotentAndStopsRender(t *testing.T) {
	t.Parallel()

	browser, err := NewBrowser(BrowserConfig{MaxParallel: 1}, DefaultSelectors(), nil)
	require.NoError(t, err)
	browser.Close()
	browser.Close()

	_, err = browser.Render(context.Background(), "12345")
	require.ErrorIs(t, err, estimate.ErrLookup)
	require.ErrorIs(t, err, errBrowserClosed)

	// The session slot is returned after a failed render.
	require.NoError(t, browser.acquire(context.Background()))
	browser.release()
}

func TestBrowserDiscardOnlyDropsCurrentBrowser(t *testing.T) {
	t.Parallel()

	browser, err := NewBrowser(BrowserConfig{}, DefaultSelectors(), nil)
	require.NoError(t, err)
	defer browser.Close()

	current, cancelCurrent := context.WithCancel(context.Background())
	defer cancelCurrent()
	browser.browserCtx, browser.browserCancel = current, cancelCurrent

	stale, cancelStale := context.WithCancel(context.Background())
	defer cancelStale()
	browser.discard(stale)
	require.Equal(t, current, browser.browserCtx)
	require.NoError(t, current.Err())

	browser.discard(current)
	require.Nil(t, browser.browserCtx)
	require.ErrorIs(t, current.Err(), context.Canceled)
}

func TestBrowserCloseCancelsSharedBrowser(t *testing.T) {
	t.Parallel()

	browser, err := NewBrowser(BrowserConfig{}, DefaultSelectors(), nil)
	require.NoError(t, err)

	shared, cancelShared := context.WithCancel(context.Background())
	defer cancelShared()
	browser.browserCtx, browser.browserCancel = shared, cancelShared

	browser.Close()
	require.ErrorIs(t, shared.Err(), context.Canceled)
	require.ErrorIs(t, browser.allocator.Err(), context.Canceled)

	_, err = browser.browserContext()
	require.ErrorIs(t, err, errBrowserClosed)
}
