// Package reports renders payment-ledger summaries for the admin channel.
package reports

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"PledgePay/entity"
	"PledgePay/internal/lib/sl"
)

// Window a summary report covers.
const reportWindow = 30 * 24 * time.Hour

// Ledger reads confirmed payments.
type Ledger interface {
	PaymentsSince(ctx context.Context, cutoff time.Time) ([]entity.PaymentRecord, error)
}

// Builder renders ledger summaries as WhatsApp-friendly text.
type Builder struct {
	log    *slog.Logger
	ledger Ledger
}

func NewBuilder(ledger Ledger, log *slog.Logger) *Builder {
	return &Builder{
		log:    log.With(sl.Module("reports")),
		ledger: ledger,
	}
}

// Summary returns a per-currency, per-purpose breakdown of the last
// 30 days. The format argument names the export the admin asked for;
// until file export ships both render the same text.
func (b *Builder) Summary(ctx context.Context, format string) (string, error) {
	cutoff := time.Now().Add(-reportWindow)
	records, err := b.ledger.PaymentsSince(ctx, cutoff)
	if err != nil {
		return "", fmt.Errorf("reading ledger: %w", err)
	}

	if len(records) == 0 {
		return "No payments recorded in the last 30 days.", nil
	}

	type bucket struct {
		total float64
		count int
	}
	byCurrency := make(map[string]*bucket)
	byPurpose := make(map[string]*bucket)
	for _, r := range records {
		key := r.Currency
		if byCurrency[key] == nil {
			byCurrency[key] = &bucket{}
		}
		byCurrency[key].total += r.Amount
		byCurrency[key].count++

		pkey := r.Purpose + " (" + r.Currency + ")"
		if byPurpose[pkey] == nil {
			byPurpose[pkey] = &bucket{}
		}
		byPurpose[pkey].total += r.Amount
		byPurpose[pkey].count++
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Payment report (%s), last 30 days\n%d payment(s) since %s\n",
		strings.ToUpper(format), len(records), cutoff.Format("2 Jan 2006"))

	sb.WriteString("\nTotals by currency:")
	for _, key := range sortedKeys(byCurrency) {
		v := byCurrency[key]
		fmt.Fprintf(&sb, "\n%s %.2f across %d payment(s)", key, v.total, v.count)
	}

	sb.WriteString("\n\nBy purpose:")
	for _, key := range sortedKeys(byPurpose) {
		v := byPurpose[key]
		fmt.Fprintf(&sb, "\n%s: %.2f (%d)", key, v.total, v.count)
	}

	b.log.Info("report generated",
		slog.String("format", format),
		slog.Int("records", len(records)),
	)
	return sb.String(), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
