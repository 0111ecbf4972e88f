package rates

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
)

// Client fetches currency quotes from a CBR-style XML feed: repeated Valute
// elements carrying CharCode and a comma-decimal Value, quoted against the
// ruble.
type Client struct {
	url      string
	http     *http.Client
	attempts int
	backoff  time.Duration
}

func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		url:      url,
		http:     httpClient,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
}

type valCurs struct {
	XMLName xml.Name `xml:"ValCurs"`
	Valutes []valute `xml:"Valute"`
}

type valute struct {
	CharCode string `xml:"CharCode"`
	Value    string `xml:"Value"`
}

// FetchRate returns the quote for the given currency code. ok is false when
// the feed answers with a non-success status or does not list the currency;
// err is non-nil only when the feed stayed unreachable after all retries.
func (c *Client) FetchRate(ctx context.Context, currency string) (rate float64, ok bool, err error) {
	resp, err := c.get(ctx)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false, nil
	}

	doc, err := decodeQuotes(resp.Body)
	if err != nil {
		return 0, false, err
	}

	for _, v := range doc.Valutes {
		if v.CharCode != currency {
			continue
		}
		// Quote values come locale-formatted, e.g. "90,5678".
		parsed, perr := strconv.ParseFloat(strings.Replace(v.Value, ",", ".", 1), 64)
		if perr != nil {
			return 0, false, fmt.Errorf("malformed quote value %q for %s: %w", v.Value, currency, perr)
		}
		return parsed, true, nil
	}
	return 0, false, nil
}

// get retries transient connection failures with exponential backoff before
// giving up.
func (c *Client) get(ctx context.Context) (*http.Response, error) {
	var lastErr error
	backoff := c.backoff
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func decodeQuotes(r io.Reader) (*valCurs, error) {
	decoder := xml.NewDecoder(r)
	// The CBR feed declares windows-1251.
	decoder.CharsetReader = func(cs string, input io.Reader) (io.Reader, error) {
		switch strings.ToLower(cs) {
		case "windows-1251":
			return charmap.Windows1251.NewDecoder().Reader(input), nil
		default:
			return input, nil
		}
	}
	var doc valCurs
	if err := decoder.Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
