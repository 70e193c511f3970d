// Package payment serves the gateway's browser-facing endpoints: the IPN
// result callback and the return landing page.
package payment

import (
	"log/slog"
	"net/http"

	"PledgePay/internal/lib/sl"
)

// Result acknowledges Paynow's instant payment notification. The poll loop
// is the source of truth for reconciliation; the IPN is logged and acked
// best-effort so the gateway stops retrying.
func Result(log *slog.Logger) http.HandlerFunc {
	log = log.With(sl.Module("payment"))

	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			log.Warn("unparseable payment result", sl.Err(err))
		} else {
			log.Info("payment result notification",
				slog.String("reference", r.PostForm.Get("reference")),
				slog.String("status", r.PostForm.Get("status")),
				slog.String("paynow_reference", r.PostForm.Get("paynowreference")),
			)
		}

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

const returnPage = `<!DOCTYPE html>
<html>
<head>
	<title>Payment - PledgePay</title>
	<meta name="viewport" content="width=device-width, initial-scale=1">
	<style>
		body { font-family: sans-serif; text-align: center; padding: 3em 1em; }
		h1 { color: #1a7f37; }
	</style>
</head>
<body>
	<h1>Thank you!</h1>
	<p>Your payment is being processed. You can close this page and
	return to WhatsApp &mdash; we will send you a confirmation there.</p>
</body>
</html>`

// Return renders the landing page the payer's browser lands on after the
// gateway checkout.
func Return(_ *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(returnPage))
	}
}
