package gamestop

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProberCheckReportsSelectors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>
<form><input name="psaCert"/><button type="submit">Get Estimate</button></form>
</body></html>`))
	}))
	defer server.Close()

	prober := NewProber(ProbeConfig{URL: server.URL, UserAgent: "probe-test"}, DefaultSelectors(),
		fixedClock{now: time.Unix(0, 0)})

	report, err := prober.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, report.StatusCode)
	require.True(t, report.Selectors["psa_input"])
	require.True(t, report.Selectors["submit_button"])
	require.False(t, report.Selectors["result_container"])
	require.False(t, report.Selectors["no_offer"])
	require.Positive(t, report.Bytes)

	again, err := prober.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, again.StatusCode)
}

func TestProberCheckReportsErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer server.Close()

	prober := NewProber(ProbeConfig{URL: server.URL}, DefaultSelectors(), fixedClock{})
	report, err := prober.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, report.StatusCode)
	require.False(t, report.Selectors["psa_input"])
}

func TestProberCheckUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	prober := NewProber(ProbeConfig{URL: url, Timeout: time.Second}, DefaultSelectors(), fixedClock{})
	_, err := prober.Check(context.Background())
	require.Error(t, err)
}
