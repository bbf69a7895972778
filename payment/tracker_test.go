package payment_test

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/becomeliminal/nim-autopilot/payment"
)

const receipt = "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"

func serverWithHeaders(headers map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.Write([]byte("ok"))
	}))
}

func get(t *testing.T, c *http.Client, url string) {
	t.Helper()
	resp, err := c.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	resp.Body.Close()
}

func TestTracker_RawReceiptHeader(t *testing.T) {
	srv := serverWithHeaders(map[string]string{"x-payment-receipt": receipt})
	defer srv.Close()

	tr := payment.NewTracker()
	client := &http.Client{}
	tr.Install(client)

	get(t, client, srv.URL)

	got := tr.Drain()
	if len(got) != 1 || got[0] != receipt {
		t.Fatalf("Drain() = %v, want [%s]", got, receipt)
	}
	if again := tr.Drain(); len(again) != 0 {
		t.Errorf("second Drain() = %v, want empty", again)
	}
}

func TestTracker_MalformedRawReceiptIgnored(t *testing.T) {
	srv := serverWithHeaders(map[string]string{"x-payment-receipt": "0xnothex"})
	defer srv.Close()

	tr := payment.NewTracker()
	get(t, tr.Client(), srv.URL)

	if got := tr.Drain(); len(got) != 0 {
		t.Fatalf("Drain() = %v, want empty", got)
	}
}

func TestTracker_EncodedPaymentResponse(t *testing.T) {
	cases := map[string]string{
		"transaction field": `{"success":true,"transaction":"0xabc"}`,
		"txHash field":      `{"success":true,"txHash":"0xdef"}`,
	}
	want := map[string]string{
		"transaction field": "0xabc",
		"txHash field":      "0xdef",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := serverWithHeaders(map[string]string{
				"payment-response": base64.StdEncoding.EncodeToString([]byte(body)),
			})
			defer srv.Close()

			tr := payment.NewTracker()
			get(t, tr.Client(), srv.URL)

			got := tr.Drain()
			if len(got) != 1 || got[0] != want[name] {
				t.Fatalf("Drain() = %v, want [%s]", got, want[name])
			}
		})
	}
}

func TestTracker_UndecodablePaymentResponseIgnored(t *testing.T) {
	srv := serverWithHeaders(map[string]string{"payment-response": "%%%not-base64"})
	defer srv.Close()

	tr := payment.NewTracker()
	get(t, tr.Client(), srv.URL)

	if got := tr.Drain(); len(got) != 0 {
		t.Fatalf("Drain() = %v, want empty", got)
	}
}

func TestTracker_InstallIsIdempotent(t *testing.T) {
	srv := serverWithHeaders(map[string]string{"x-payment-receipt": receipt})
	defer srv.Close()

	tr := payment.NewTracker()
	client := &http.Client{}
	tr.Install(client)
	tr.Install(client)

	get(t, client, srv.URL)

	if got := tr.Drain(); len(got) != 1 {
		t.Fatalf("Drain() = %v, want exactly one capture", got)
	}
}

func TestTracker_ConcurrentCapturesAreNotLost(t *testing.T) {
	srv := serverWithHeaders(map[string]string{"x-payment-receipt": receipt})
	defer srv.Close()

	tr := payment.NewTracker()
	client := tr.Client()

	var wg sync.WaitGroup
	total := 0
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Get(srv.URL)
			if err == nil {
				resp.Body.Close()
			}
			if i%5 == 0 {
				n := len(tr.Drain())
				mu.Lock()
				total += n
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total += len(tr.Drain())

	if total != 20 {
		t.Fatalf("drained %d receipts in total, want 20", total)
	}
}
