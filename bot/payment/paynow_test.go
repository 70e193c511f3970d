package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"PledgePay/entity"
)

func testGateway(endpoint string) *Gateway {
	return &Gateway{
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		client: http.DefaultClient,
		integrations: map[string]integration{
			"USD": {id: "3001", key: "usd-integration-key"},
			"ZWG": {id: "3002", key: "zwg-integration-key"},
		},
		returnURL: "https://bot.example/payment-return",
		resultURL: "https://bot.example/payment-result",
		authEmail: "finance@example.org",
		endpoint:  endpoint,
	}
}

func TestMapStatus(t *testing.T) {
	cases := map[string]entity.PaymentStatus{
		"Paid":              entity.PaymentPaid,
		"paid":              entity.PaymentPaid,
		"Awaiting Delivery": entity.PaymentPaid,
		"Delivered":         entity.PaymentPaid,
		"Cancelled":         entity.PaymentCancelled,
		"Failed":            entity.PaymentFailed,
		"Disputed":          entity.PaymentFailed,
		"Refunded":          entity.PaymentFailed,
		"Created":           entity.PaymentPending,
		"Sent":              entity.PaymentPending,
		"":                  entity.PaymentPending,
		" paid ":            entity.PaymentPaid,
	}
	for raw, want := range cases {
		if got := mapStatus(raw); got != want {
			t.Errorf("mapStatus(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestGatewayMethod(t *testing.T) {
	for method, want := range map[string]string{
		MethodEcoCash:  "ecocash",
		MethodOneMoney: "onemoney",
		MethodTeleCash: "telecash",
	} {
		got, ok := gatewayMethod(method)
		if !ok || got != want {
			t.Errorf("gatewayMethod(%q) = %q, %v; want %q, true", method, got, ok, want)
		}
	}
	if _, ok := gatewayMethod(MethodUSDTransfer); ok {
		t.Error("USD Transfer must not map to a gateway method")
	}
	if _, ok := gatewayMethod("Cash"); ok {
		t.Error("unknown method must not map to a gateway method")
	}
}

func TestPaynowHash(t *testing.T) {
	const want = "EE26B0DD4AF7E749AA1A8EE3C10AE9923F618980772E473F8819A5D4940E0DB27AC185F8A0E1D5F84F88BC887FD67B143732C304CC5FA9AD8E6F57F50028A8FF"
	if got := paynowHash("test"); got != want {
		t.Errorf("paynowHash = %s, want %s", got, want)
	}
}

func TestInitiateMobile(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		form = r.PostForm
		w.Write([]byte("status=Ok&pollurl=" + url.QueryEscape("https://www.paynow.co.zw/interface/poll/?guid=abc")))
	}))
	defer server.Close()

	g := testGateway(server.URL)
	pending := testPending()

	pollURL, err := g.InitiateMobile(context.Background(), pending)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if pollURL != "https://www.paynow.co.zw/interface/poll/?guid=abc" {
		t.Errorf("poll url = %q", pollURL)
	}

	checks := map[string]string{
		"id":             "3001",
		"reference":      "ref-1",
		"amount":         "40.00",
		"additionalinfo": "Tithes",
		"phone":          "263772000000",
		"method":         "ecocash",
		"status":         "Message",
		"authemail":      "finance@example.org",
	}
	for field, want := range checks {
		if got := form.Get(field); got != want {
			t.Errorf("form[%s] = %q, want %q", field, got, want)
		}
	}

	wantHash := paynowHash("3001" + "ref-1" + "40.00" + "Tithes" +
		"https://bot.example/payment-return" + "https://bot.example/payment-result" +
		"finance@example.org" + "263772000000" + "ecocash" + "Message" +
		"usd-integration-key")
	if got := form.Get("hash"); got != wantHash {
		t.Errorf("form[hash] = %q, want %q", got, wantHash)
	}
}

func TestInitiateMobileRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("status=Error&error=" + url.QueryEscape("Invalid integration id")))
	}))
	defer server.Close()

	g := testGateway(server.URL)
	_, err := g.InitiateMobile(context.Background(), testPending())
	if err == nil || !strings.Contains(err.Error(), "Invalid integration id") {
		t.Fatalf("err = %v, want rejection carrying the gateway error", err)
	}
}

func TestInitiateMobileUnsupportedMethod(t *testing.T) {
	g := testGateway("http://127.0.0.1:0")
	pending := testPending()
	pending.Method = MethodUSDTransfer

	_, err := g.InitiateMobile(context.Background(), pending)
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("err = %v, want ErrUnsupportedMethod", err)
	}
}

func TestInitiateMobileUnknownCurrency(t *testing.T) {
	g := testGateway("http://127.0.0.1:0")
	pending := testPending()
	pending.Currency = "GBP"

	if _, err := g.InitiateMobile(context.Background(), pending); err == nil {
		t.Fatal("expected error for currency without an integration")
	}
}

func TestPoll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("reference=ref-1&paynowreference=123&amount=40.00&status=Paid"))
	}))
	defer server.Close()

	g := testGateway(server.URL)
	status, err := g.Poll(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status != entity.PaymentPaid {
		t.Errorf("status = %s, want paid", status)
	}
}
