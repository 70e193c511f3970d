package whatsapp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"PledgePay/entity"
	"PledgePay/internal/config"
	"PledgePay/internal/lib/sl"
)

const graphAPIURL = "https://graph.facebook.com"

// InboundHandler consumes parsed inbound messages.
type InboundHandler interface {
	HandleInbound(ctx context.Context, msg entity.Inbound)
}

// WhatsAppBot handles WhatsApp messaging via the Graph API
type WhatsAppBot struct {
	log           *slog.Logger
	accessToken   string
	verifyToken   string
	appSecret     string
	phoneNumberID string
	apiVersion    string
	botNumbers    map[string]bool
	handler       InboundHandler
}

// WebhookPayload represents the incoming webhook payload from WhatsApp
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Value struct {
				MessagingProduct string `json:"messaging_product"`
				Metadata         struct {
					DisplayPhoneNumber string `json:"display_phone_number"`
					PhoneNumberID      string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      *struct {
						Body string `json:"body"`
					} `json:"text,omitempty"`
					Button *struct {
						Payload string `json:"payload"`
						Text    string `json:"text"`
					} `json:"button,omitempty"`
					Interactive *struct {
						Type        string `json:"type"`
						ButtonReply *struct {
							ID    string `json:"id"`
							Title string `json:"title"`
						} `json:"button_reply,omitempty"`
						ListReply *struct {
							ID    string `json:"id"`
							Title string `json:"title"`
						} `json:"list_reply,omitempty"`
					} `json:"interactive,omitempty"`
				} `json:"messages"`
			} `json:"value"`
			Field string `json:"field"`
		} `json:"changes"`
	} `json:"entry"`
}

// SendMessageRequest represents the request body for sending a text message
type SendMessageRequest struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

type interactiveRequest struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Interactive      struct {
		Type string `json:"type"`
		Body struct {
			Text string `json:"text"`
		} `json:"body"`
		Action struct {
			Buttons []interactiveButton `json:"buttons,omitempty"`
			Button  string              `json:"button,omitempty"`
			Sections []struct {
				Title string `json:"title,omitempty"`
				Rows  []listRow `json:"rows"`
			} `json:"sections,omitempty"`
		} `json:"action"`
	} `json:"interactive"`
}

type interactiveButton struct {
	Type  string `json:"type"`
	Reply struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reply"`
}

type listRow struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Button is a quick-reply option rendered under a message.
type Button struct {
	ID    string
	Title string
}

// NewWhatsAppBot creates a new WhatsApp bot instance
func NewWhatsAppBot(conf *config.Config, log *slog.Logger) *WhatsAppBot {
	numbers := make(map[string]bool, len(conf.WhatsApp.BotNumbers))
	for _, n := range conf.WhatsApp.BotNumbers {
		numbers[n] = true
	}

	return &WhatsAppBot{
		log:           log.With(sl.Module("whatsappbot")),
		accessToken:   conf.WhatsApp.AccessToken,
		verifyToken:   conf.WhatsApp.VerifyToken,
		appSecret:     conf.WhatsApp.AppSecret,
		phoneNumberID: conf.WhatsApp.PhoneNumberID,
		apiVersion:    conf.WhatsApp.APIVersion,
		botNumbers:    numbers,
	}
}

// SetHandler registers the consumer of parsed inbound messages. Must be
// called before the webhook starts receiving traffic.
func (b *WhatsAppBot) SetHandler(h InboundHandler) {
	b.handler = h
}

// HandleWebhookVerification handles the GET request for webhook verification
func (b *WhatsAppBot) HandleWebhookVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == b.verifyToken {
		b.log.Info("webhook verified")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	b.log.Warn("webhook verification failed",
		slog.String("mode", mode),
		slog.Bool("token_match", token == b.verifyToken),
	)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// Dispatch parses a raw webhook body and processes its messages. The
// webhook handler acknowledges the POST and calls this asynchronously.
func (b *WhatsAppBot) Dispatch(body []byte) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		b.log.Error("failed to parse webhook payload", sl.Err(err))
		return
	}
	b.processPayload(payload)
}

// processPayload extracts inbound messages and hands them to the handler
func (b *WhatsAppBot) processPayload(payload WebhookPayload) {
	if payload.Object != "whatsapp_business_account" || b.handler == nil {
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}

			senderName := ""
			if len(change.Value.Contacts) > 0 {
				senderName = change.Value.Contacts[0].Profile.Name
			}

			for _, message := range change.Value.Messages {
				inbound := entity.Inbound{
					MessageID: message.ID,
					From:      message.From,
					Name:      senderName,
					IsEcho:    b.botNumbers[message.From],
				}

				switch {
				case message.Type == "text" && message.Text != nil:
					inbound.Text = message.Text.Body
				case message.Type == "button" && message.Button != nil:
					inbound.Text = message.Button.Text
					inbound.ButtonID = message.Button.Payload
				case message.Type == "interactive" && message.Interactive != nil:
					if reply := message.Interactive.ButtonReply; reply != nil {
						inbound.Text = reply.Title
						inbound.ButtonID = reply.ID
					}
					if reply := message.Interactive.ListReply; reply != nil {
						inbound.Text = reply.Title
						inbound.ButtonID = reply.ID
					}
				default:
					b.log.Debug("skipping unsupported message type",
						slog.String("type", message.Type),
					)
					continue
				}

				b.log.Info("received message",
					slog.String("sender_phone", inbound.From),
					slog.String("text", inbound.Text),
				)

				b.handler.HandleInbound(context.Background(), inbound)
			}
		}
	}
}

// SendMessage sends a text message to the specified recipient
func (b *WhatsAppBot) SendMessage(recipientPhone, text string) error {
	reqBody := SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               recipientPhone,
		Type:             "text",
	}
	reqBody.Text.PreviewURL = false
	reqBody.Text.Body = text

	if err := b.post(reqBody); err != nil {
		return err
	}

	b.log.Info("message sent successfully", slog.String("recipient_phone", recipientPhone))
	return nil
}

// SendButtons sends a message with up to three quick-reply buttons.
func (b *WhatsAppBot) SendButtons(recipientPhone, text string, buttons []Button) error {
	if len(buttons) > 3 {
		return fmt.Errorf("whatsapp allows at most 3 reply buttons, got %d", len(buttons))
	}

	req := interactiveRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               recipientPhone,
		Type:             "interactive",
	}
	req.Interactive.Type = "button"
	req.Interactive.Body.Text = text
	for _, btn := range buttons {
		var ib interactiveButton
		ib.Type = "reply"
		ib.Reply.ID = btn.ID
		ib.Reply.Title = btn.Title
		req.Interactive.Action.Buttons = append(req.Interactive.Action.Buttons, ib)
	}

	return b.post(req)
}

// SendList sends a list message; used when the options outgrow reply buttons.
func (b *WhatsAppBot) SendList(recipientPhone, text, buttonLabel string, options []Button) error {
	req := interactiveRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               recipientPhone,
		Type:             "interactive",
	}
	req.Interactive.Type = "list"
	req.Interactive.Body.Text = text
	req.Interactive.Action.Button = buttonLabel

	rows := make([]listRow, 0, len(options))
	for _, opt := range options {
		rows = append(rows, listRow{ID: opt.ID, Title: opt.Title})
	}
	req.Interactive.Action.Sections = append(req.Interactive.Action.Sections, struct {
		Title string    `json:"title,omitempty"`
		Rows  []listRow `json:"rows"`
	}{Rows: rows})

	return b.post(req)
}

func (b *WhatsAppBot) post(reqBody any) error {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", graphAPIURL, b.apiVersion, b.phoneNumberID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}

// VerifySignature verifies the X-Hub-Signature-256 header. Verification
// is skipped when no app secret is configured.
func (b *WhatsAppBot) VerifySignature(body []byte, signature string) bool {
	if b.appSecret == "" {
		return true
	}
	if signature == "" {
		return false
	}

	// Signature format: "sha256=<hex_signature>"
	if len(signature) < 8 || signature[:7] != "sha256=" {
		return false
	}

	expectedSig := signature[7:]
	mac := hmac.New(sha256.New, []byte(b.appSecret))
	mac.Write(body)
	actualSig := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expectedSig), []byte(actualSig))
}
