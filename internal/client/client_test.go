package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/", APIKey: "secret", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestClientEstimate(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/gamestop/estimate", r.URL.Path)
		require.Equal(t, "12345678", r.URL.Query().Get("psa_cert"))
		require.Equal(t, "secret", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"psa_cert":"12345678","card_name":"Charizard","grade":"PSA 10","gamestop_cash_offer":45.5,"gamestop_credit_offer":null,"currency":"USD","fetched_at":"2024-01-01T00:00:00.000000+00:00","raw_fields":{}}`))
	})

	est, err := c.Estimate(context.Background(), "12345678")
	require.NoError(t, err)
	require.Equal(t, "12345678", est.PSACert)
	require.NotNil(t, est.CardName)
	require.Equal(t, "Charizard", *est.CardName)
	require.NotNil(t, est.CashOffer)
	require.InDelta(t, 45.5, *est.CashOffer, 0.001)
	require.Nil(t, est.CreditOffer)
}

func TestClientEstimateError(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"GameStop did not provide an estimate for this cert."}`))
	})

	_, err := c.Estimate(context.Background(), "12345678")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Equal(t, "GameStop did not provide an estimate for this cert.", apiErr.Detail)
	require.Contains(t, err.Error(), "404")
}

func TestClientHistory(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/gamestop/estimate/history", r.URL.Path)
		require.Equal(t, "3", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"psa_cert":"12345678","lookups":[{"id":"a","psa_cert":"12345678","outcome":"ok","duration_ms":10,"created_at":"2024-01-01T00:00:00Z"}]}`))
	})

	hist, err := c.History(context.Background(), "12345678", 3)
	require.NoError(t, err)
	require.Equal(t, "12345678", hist.PSACert)
	require.Len(t, hist.Lookups, 1)
	require.Equal(t, "a", hist.Lookups[0].ID)
}

func TestClientSiteCheckAndHealth(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/gamestop/sitecheck":
			_, _ = w.Write([]byte(`{"url":"https://example.test","status_code":200,"selectors":{"psa_input":true}}`))
		default:
			http.NotFound(w, r)
		}
	})

	require.NoError(t, c.Health(context.Background()))
	report, err := c.SiteCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, 200, report.StatusCode)
	require.True(t, report.Selectors["psa_input"])
}
