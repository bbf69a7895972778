// Package payment captures settlement receipts of pay-per-call requests.
//
// Pay-per-call services answer with the settlement transaction in a
// response header. The Tracker wraps an HTTP client's transport, harvests
// those hashes as responses pass through and hands them out with Drain.
package payment

import (
	"encoding/base64"
	"log"
	"net/http"
	"regexp"
	"sync"

	"github.com/tidwall/gjson"
)

const (
	// HeaderReceipt carries the raw settlement transaction hash.
	HeaderReceipt = "X-Payment-Receipt"

	// HeaderResponse carries base64-encoded JSON with a "transaction" or
	// "txHash" field.
	HeaderResponse = "Payment-Response"
)

var receiptPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

// Tracker accumulates payment receipt hashes observed on HTTP responses.
// The zero value is not usable; create one with NewTracker.
type Tracker struct {
	mu     sync.Mutex
	hashes []string

	// OnCapture, if set, is called once per captured hash.
	OnCapture func(hash string)
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Install wraps client's transport so every response passes through the
// tracker. Installing twice on the same client is a no-op.
func (t *Tracker) Install(client *http.Client) {
	if client == nil {
		return
	}
	if rt, ok := client.Transport.(*roundTripper); ok && rt.tracker == t {
		return
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client.Transport = &roundTripper{base: base, tracker: t}
	log.Printf("[X402] payment interceptor installed")
}

// Client returns a new HTTP client with the tracker installed.
func (t *Tracker) Client() *http.Client {
	c := &http.Client{}
	t.Install(c)
	return c
}

// Drain returns every hash captured since the last drain, in capture
// order, and clears the buffer. The swap is atomic with respect to
// concurrent captures.
func (t *Tracker) Drain() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.hashes
	t.hashes = nil
	return out
}

// Observe inspects response headers and records a receipt if present.
func (t *Tracker) Observe(h http.Header) {
	if receipt := h.Get(HeaderReceipt); receipt != "" && receiptPattern.MatchString(receipt) {
		t.capture(receipt)
		return
	}

	encoded := h.Get(HeaderResponse)
	if encoded == "" {
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || !gjson.ValidBytes(decoded) {
		log.Printf("[X402] failed to decode payment-response header")
		return
	}
	hash := gjson.GetBytes(decoded, "transaction")
	if !hash.Exists() || hash.Type == gjson.Null {
		hash = gjson.GetBytes(decoded, "txHash")
	}
	if hash.Type == gjson.String && hash.Str != "" {
		t.capture(hash.Str)
	}
}

func (t *Tracker) capture(hash string) {
	t.mu.Lock()
	t.hashes = append(t.hashes, hash)
	t.mu.Unlock()

	log.Printf("[X402] captured payment tx: %s...", truncate(hash, 14))
	if t.OnCapture != nil {
		t.OnCapture(hash)
	}
}

type roundTripper struct {
	base    http.RoundTripper
	tracker *Tracker
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	rt.tracker.Observe(resp.Header)
	return resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
