package gamestop

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
)

// ProbeConfig controls the static site probe.
type ProbeConfig struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
}

// ProbeReport describes what a static fetch of the estimate page found.
type ProbeReport struct {
	URL        string          `json:"url"`
	StatusCode int             `json:"status_code"`
	DurationMs int64           `json:"duration_ms"`
	Bytes      int             `json:"bytes"`
	Selectors  map[string]bool `json:"selectors"`
	CheckedAt  string          `json:"checked_at"`
}

// Prober fetches the estimate page without a browser and reports which
// selectors appear in the served markup.
type Prober struct {
	cfg       ProbeConfig
	selectors Selectors
	base      *colly.Collector
	clock     Clock
}

// NewProber builds a Prober.
func NewProber(cfg ProbeConfig, selectors Selectors, clock Clock) *Prober {
	if cfg.URL == "" {
		cfg.URL = DefaultEstimateURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	return &Prober{cfg: cfg, selectors: selectors, base: c, clock: clock}
}

// Check fetches the page once and reports selector presence.
func (p *Prober) Check(ctx context.Context) (ProbeReport, error) {
	var (
		status   int
		body     []byte
		fetchErr error
	)
	collector := p.base.Clone()
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(p.cfg.URL)
	}()
	select {
	case <-ctx.Done():
		return ProbeReport{}, fmt.Errorf("site probe canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = fetchErr
		}
		if err != nil {
			return ProbeReport{}, fmt.Errorf("site probe failed: %w", err)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ProbeReport{}, fmt.Errorf("parse probe response: %w", err)
	}
	sel := p.selectors
	checks := map[string]string{
		"psa_input":        sel.PSAInput,
		"submit_button":    sel.SubmitCSS(),
		"result_container": sel.ResultContainer,
		"no_offer":         sel.NoOffer,
	}
	found := make(map[string]bool, len(checks))
	for name, selector := range checks {
		found[name] = doc.Find(selector).Length() > 0
	}

	return ProbeReport{
		URL:        p.cfg.URL,
		StatusCode: status,
		DurationMs: time.Since(start).Milliseconds(),
		Bytes:      len(body),
		Selectors:  found,
		CheckedAt:  estimate.FormatFetchedAt(p.clock.Now()),
	}, nil
}
