// Package webhook routes the single Meta webhook endpoint: verification
// GETs, encrypted flow exchanges, and standard message payloads all arrive
// on the same path.
package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"PledgePay/bot/whatsapp"
	"PledgePay/internal/flowcrypt"
	"PledgePay/internal/lib/api/response"
	"PledgePay/internal/lib/sl"
)

// Verify handles GET requests for webhook verification
func Verify(log *slog.Logger, bot *whatsapp.WhatsAppBot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.With(sl.Module("webhook")).Debug("webhook verification request")
		bot.HandleWebhookVerification(w, r)
	}
}

// Receive handles POST requests: encrypted flow envelopes go through the
// flow crypto path, message payloads are acknowledged and dispatched
// asynchronously, and system noise is acknowledged and dropped.
func Receive(log *slog.Logger, bot *whatsapp.WhatsAppBot, flows *flowcrypt.Service) http.HandlerFunc {
	log = log.With(sl.Module("webhook"))

	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Error("failed to read request body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("bad request body"))
			return
		}
		defer r.Body.Close()

		if signature := r.Header.Get("X-Hub-Signature-256"); !bot.VerifySignature(body, signature) {
			log.Warn("invalid webhook signature")
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, response.Error("invalid signature"))
			return
		}

		var peek map[string]json.RawMessage
		if err := json.Unmarshal(body, &peek); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid JSON"))
			return
		}

		if isSystemPayload(peek) {
			log.Debug("ignoring system-level webhook payload")
			render.JSON(w, r, response.Ignored())
			return
		}

		if _, ok := peek["encrypted_flow_data"]; ok {
			handleEncryptedFlow(log, flows, body, w, r)
			return
		}

		if _, ok := peek["entry"]; ok {
			w.WriteHeader(http.StatusOK)
			go bot.Dispatch(body)
			return
		}

		log.Debug("unrecognized webhook payload structure")
		render.JSON(w, r, response.Ignored())
	}
}

// handleEncryptedFlow decrypts the exchange, routes it to a screen, and
// replies with the response encrypted under the request's own key and IV.
// Decryption failures answer 421 so Meta re-checks the endpoint's key
// health; no session state is touched on any error.
func handleEncryptedFlow(log *slog.Logger, flows *flowcrypt.Service, body []byte, w http.ResponseWriter, r *http.Request) {
	if flows == nil {
		log.Warn("encrypted flow received but flow crypto is not configured")
		render.Status(r, http.StatusNotImplemented)
		render.JSON(w, r, response.Error("flows not configured"))
		return
	}

	var req flowcrypt.Request
	if err := json.Unmarshal(body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid flow envelope"))
		return
	}
	if req.EncryptedFlowData == "" || req.EncryptedAESKey == "" || req.InitialVector == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing encryption fields"))
		return
	}

	payload, aesKey, iv, err := flows.Decrypt(req)
	if err != nil {
		log.Error("flow decryption failed", sl.Err(err))
		w.WriteHeader(http.StatusMisdirectedRequest)
		return
	}

	encrypted, err := flows.EncryptResponse(aesKey, iv, flows.Respond(payload))
	if err != nil {
		log.Error("flow response encryption failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("encryption failed"))
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(encrypted))
}

// isSystemPayload recognizes deploy/build notifications from the hosting
// platform that share the webhook URL.
func isSystemPayload(peek map[string]json.RawMessage) bool {
	if raw, ok := peek["type"]; ok {
		var t string
		if json.Unmarshal(raw, &t) == nil {
			switch t {
			case "DEPLOY", "BUILD", "STATUS":
				return true
			}
		}
	}
	if _, ok := peek["deployment"]; ok {
		return true
	}
	_, hasProject := peek["project"]
	_, hasStatus := peek["status"]
	return hasProject && hasStatus
}
