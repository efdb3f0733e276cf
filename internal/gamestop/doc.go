// Package gamestop drives GameStop's graded trading card estimate page.
//
// A Browser renders the page in headless Chrome via chromedp, entering the PSA
// cert and waiting for either an offer or a "no offer" notice. Extract turns
// the rendered markup into an estimate.Estimate with goquery, and Client glues
// the two together while archiving diagnostic snapshots. Prober performs a
// static colly fetch of the page so operators can spot selector drift without
// launching a browser.
package gamestop
