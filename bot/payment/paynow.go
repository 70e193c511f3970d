package payment

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"PledgePay/entity"
	"PledgePay/internal/config"
	"PledgePay/internal/lib/sl"
)

const remoteTransactionURL = "https://www.paynow.co.zw/interface/remotetransaction"

// Methods accepted for mobile-money express checkout.
const (
	MethodEcoCash     = "EcoCash"
	MethodOneMoney    = "OneMoney"
	MethodTeleCash    = "TeleCash"
	MethodUSDTransfer = "USD Transfer"
)

// ErrUnsupportedMethod is returned for payment methods without an automated
// gateway path, such as manual bank transfers.
var ErrUnsupportedMethod = fmt.Errorf("payment method not supported by gateway")

type integration struct {
	id  string
	key string
}

// Gateway initiates and polls Paynow express-checkout transactions. Each
// supported currency maps to its own Paynow integration.
type Gateway struct {
	log          *slog.Logger
	client       *http.Client
	integrations map[string]integration
	returnURL    string
	resultURL    string
	authEmail    string
	endpoint     string
}

// NewGateway creates a Paynow client from the configured integrations.
func NewGateway(conf *config.Config, log *slog.Logger) *Gateway {
	return &Gateway{
		log:    log.With(sl.Module("paynow")),
		client: http.DefaultClient,
		integrations: map[string]integration{
			"ZWG": {id: conf.Paynow.ZwgIntegrationID, key: conf.Paynow.ZwgIntegrationKey},
			"USD": {id: conf.Paynow.UsdIntegrationID, key: conf.Paynow.UsdIntegrationKey},
		},
		returnURL: conf.Paynow.ReturnURL,
		resultURL: conf.Paynow.ResultURL,
		authEmail: conf.Paynow.AuthEmail,
		endpoint:  remoteTransactionURL,
	}
}

// InitiateMobile starts a mobile-money express checkout and returns the poll
// URL that reports the transaction's status.
func (g *Gateway) InitiateMobile(ctx context.Context, p *entity.PendingPayment) (string, error) {
	method, ok := gatewayMethod(p.Method)
	if !ok {
		return "", ErrUnsupportedMethod
	}

	integ, ok := g.integrations[p.Currency]
	if !ok || integ.id == "" {
		return "", fmt.Errorf("no paynow integration for currency %q", p.Currency)
	}

	// Field order matters: the hash is SHA512 over the values in the order
	// they are sent, followed by the integration key.
	fields := [][2]string{
		{"id", integ.id},
		{"reference", p.Reference},
		{"amount", fmt.Sprintf("%.2f", p.Amount)},
		{"additionalinfo", p.Purpose},
		{"returnurl", g.returnURL},
		{"resulturl", g.resultURL},
		{"authemail", g.authEmail},
		{"phone", p.BillNumber},
		{"method", method},
		{"status", "Message"},
	}

	form := url.Values{}
	var hashInput strings.Builder
	for _, f := range fields {
		form.Set(f[0], f[1])
		hashInput.WriteString(f[1])
	}
	hashInput.WriteString(integ.key)
	form.Set("hash", paynowHash(hashInput.String()))

	values, err := g.post(ctx, form)
	if err != nil {
		return "", err
	}

	if status := values.Get("status"); !strings.EqualFold(status, "Ok") {
		return "", fmt.Errorf("paynow rejected transaction: %s: %s", status, values.Get("error"))
	}

	pollURL := values.Get("pollurl")
	if pollURL == "" {
		return "", fmt.Errorf("paynow response missing poll url")
	}

	g.log.Info("payment initiated",
		slog.String("reference", p.Reference),
		slog.String("currency", p.Currency),
		slog.String("method", method),
	)
	return pollURL, nil
}

// Poll fetches the current transaction status from a Paynow poll URL.
func (g *Gateway) Poll(ctx context.Context, pollURL string) (entity.PaymentStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pollURL, nil)
	if err != nil {
		return entity.PaymentPending, fmt.Errorf("failed to create poll request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return entity.PaymentPending, fmt.Errorf("failed to poll transaction: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return entity.PaymentPending, fmt.Errorf("failed to read poll response: %w", err)
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return entity.PaymentPending, fmt.Errorf("failed to parse poll response: %w", err)
	}

	return mapStatus(values.Get("status")), nil
}

func (g *Gateway) post(ctx context.Context, form url.Values) (url.Values, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("paynow error (status %d): %s", resp.StatusCode, string(body))
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return values, nil
}

// gatewayMethod maps a user-facing method name to Paynow's identifier.
func gatewayMethod(method string) (string, bool) {
	switch method {
	case MethodEcoCash:
		return "ecocash", true
	case MethodOneMoney:
		return "onemoney", true
	case MethodTeleCash:
		return "telecash", true
	default:
		return "", false
	}
}

// mapStatus folds Paynow's transaction states into the ledger's status set.
// Anything unrecognised stays pending so reconciliation keeps polling.
func mapStatus(raw string) entity.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "awaiting delivery", "delivered":
		return entity.PaymentPaid
	case "cancelled":
		return entity.PaymentCancelled
	case "failed", "disputed", "refunded":
		return entity.PaymentFailed
	default:
		return entity.PaymentPending
	}
}

func paynowHash(input string) string {
	sum := sha512.Sum512([]byte(input))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
