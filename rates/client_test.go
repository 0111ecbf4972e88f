package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const quotesXML = `<?xml version="1.0" encoding="UTF-8"?>
<ValCurs Date="02.03.2024" name="Foreign Currency Market">
	<Valute ID="R01235">
		<NumCode>840</NumCode>
		<CharCode>USD</CharCode>
		<Nominal>1</Nominal>
		<Name>US Dollar</Name>
		<Value>90,5678</Value>
	</Valute>
	<Valute ID="R01239">
		<NumCode>978</NumCode>
		<CharCode>EUR</CharCode>
		<Nominal>1</Nominal>
		<Name>Euro</Name>
		<Value>98,1234</Value>
	</Valute>
</ValCurs>`

func newQuoteServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchRate_ParsesCommaDecimal(t *testing.T) {
	server := newQuoteServer(t, http.StatusOK, quotesXML)
	client := NewClient(server.URL, server.Client())

	rate, ok, err := client.FetchRate(context.Background(), "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a quote for USD")
	}
	if rate != 90.5678 {
		t.Fatalf("expected 90.5678, got %v", rate)
	}
}

func TestFetchRate_UnlistedCurrencyIsAbsent(t *testing.T) {
	server := newQuoteServer(t, http.StatusOK, quotesXML)
	client := NewClient(server.URL, server.Client())

	_, ok, err := client.FetchRate(context.Background(), "GBP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected absence for an unlisted currency")
	}
}

func TestFetchRate_NonSuccessStatusIsAbsent(t *testing.T) {
	server := newQuoteServer(t, http.StatusBadGateway, "gateway error")
	client := NewClient(server.URL, server.Client())

	_, ok, err := client.FetchRate(context.Background(), "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected absence on a non-success status")
	}
}

// flakyTransport fails the first n round trips with a connection error, then
// delegates to the real transport.
type flakyTransport struct {
	failures int
	inner    http.RoundTripper
	calls    int
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection refused")
	}
	return f.inner.RoundTrip(req)
}

func TestFetchRate_RetriesTransientConnectionFailures(t *testing.T) {
	server := newQuoteServer(t, http.StatusOK, quotesXML)
	transport := &flakyTransport{failures: 2, inner: http.DefaultTransport}
	client := NewClient(server.URL, &http.Client{Transport: transport, Timeout: 5 * time.Second})
	client.backoff = time.Millisecond

	rate, ok, err := client.FetchRate(context.Background(), "USD")
	if err != nil {
		t.Fatalf("expected the retry to recover, got %v", err)
	}
	if !ok || rate != 90.5678 {
		t.Fatalf("expected recovered quote, got ok=%v rate=%v", ok, rate)
	}
	if transport.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", transport.calls)
	}
}

func TestFetchRate_ExhaustedRetriesReturnError(t *testing.T) {
	transport := &flakyTransport{failures: 10, inner: http.DefaultTransport}
	client := NewClient("http://localhost:0", &http.Client{Transport: transport})
	client.backoff = time.Millisecond

	_, ok, err := client.FetchRate(context.Background(), "USD")
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if ok {
		t.Fatal("expected no quote")
	}
	if transport.calls != defaultAttempts {
		t.Fatalf("expected %d attempts, got %d", defaultAttempts, transport.calls)
	}
}
