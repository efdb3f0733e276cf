package estimate

import (
	"time"
)

// FetchedAtLayout renders timestamps as ISO-8601 with microseconds and a numeric offset.
const FetchedAtLayout = "2006-01-02T15:04:05.000000-07:00"

// DefaultCurrency is reported when no currency is configured.
const DefaultCurrency = "USD"

// EventTypeFetched is published after every successful upstream lookup.
const EventTypeFetched = "estimate.fetched"

// Estimate is the trade-in offer GameStop reports for one PSA cert.
type Estimate struct {
	PSACert     string         `json:"psa_cert"`
	CardName    *string        `json:"card_name"`
	Grade       *string        `json:"grade"`
	CashOffer   *float64       `json:"gamestop_cash_offer"`
	CreditOffer *float64       `json:"gamestop_credit_offer"`
	Currency    string         `json:"currency"`
	FetchedAt   string         `json:"fetched_at"`
	RawFields   map[string]any `json:"raw_fields"`
}

// FormatFetchedAt renders t in UTC using FetchedAtLayout.
func FormatFetchedAt(t time.Time) string {
	return t.UTC().Format(FetchedAtLayout)
}

// Outcome classifies how a lookup ended.
type Outcome string

// Lookup outcomes, one per error kind plus success.
const (
	OutcomeOK          Outcome = "ok"
	OutcomeInvalidCert Outcome = "invalid_cert"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeSiteChanged Outcome = "site_changed"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeError       Outcome = "error"
)

// LookupRecord is one row of lookup history.
type LookupRecord struct {
	ID          string    `json:"id"`
	PSACert     string    `json:"psa_cert"`
	Outcome     Outcome   `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
	Estimate    *Estimate `json:"estimate,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	SnapshotURI string    `json:"snapshot_uri,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Event is the payload published after a successful lookup.
type Event struct {
	Type     string   `json:"type"`
	LookupID string   `json:"lookup_id"`
	Estimate Estimate `json:"estimate"`
}

// Result is what a Looker returns: the estimate plus any diagnostic snapshot.
type Result struct {
	Estimate    Estimate
	SnapshotURI string
}
