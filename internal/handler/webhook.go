// Package handler exposes the HTTP surface: the Meta webhook endpoint and
// health checks.
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/gasto-obra/backend/internal/domain"
	"github.com/gasto-obra/backend/internal/logging"
	"github.com/gasto-obra/backend/internal/transport/whatsapp"
)

type messageRouter interface {
	HandleMessage(ctx context.Context, msg domain.InboundMessage)
}

// WebhookHandler receives WhatsApp Business webhook deliveries. Meta retries
// on any non-200, so deliveries are acked immediately and processed in the
// background.
type WebhookHandler struct {
	router      messageRouter
	verifyToken string
}

func NewWebhookHandler(router messageRouter, verifyToken string) *WebhookHandler {
	return &WebhookHandler{router: router, verifyToken: verifyToken}
}

// Verify answers Meta's subscription handshake: echo hub.challenge when the
// verify token matches.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		logging.FromContext(r.Context()).Warn("webhook verification rejected", "mode", mode)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// webhookPayload mirrors the slice of the Cloud API notification we consume:
// the first message and its sender profile. Everything else (statuses, read
// receipts) is ignored.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text *struct {
						Body string `json:"body"`
					} `json:"text"`
					Image *struct {
						ID      string `json:"id"`
						Caption string `json:"caption"`
					} `json:"image"`
					Audio *struct {
						ID string `json:"id"`
					} `json:"audio"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// message extracts the first inbound message, if the delivery carries one.
func (p *webhookPayload) message() (domain.InboundMessage, bool) {
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			if len(value.Messages) == 0 {
				continue
			}
			raw := value.Messages[0]

			msg := domain.InboundMessage{
				From: whatsapp.NormalizePhone(raw.From),
				Type: domain.MessageType(raw.Type),
			}
			if len(value.Contacts) > 0 {
				msg.ContactName = value.Contacts[0].Profile.Name
			}

			switch {
			case raw.Type == "text" && raw.Text != nil:
				msg.Text = raw.Text.Body
			case raw.Type == "image" && raw.Image != nil:
				msg.MediaID = raw.Image.ID
				msg.Caption = raw.Image.Caption
			case raw.Type == "audio" && raw.Audio != nil:
				msg.MediaID = raw.Audio.ID
			default:
				return domain.InboundMessage{}, false
			}
			return msg, true
		}
	}
	return domain.InboundMessage{}, false
}

// Receive acks a webhook delivery and hands any message to the router. The
// 200 goes out before processing: a slow model call must not push Meta into
// its retry backoff.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Warn("undecodable webhook payload", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	msg, ok := payload.message()
	w.WriteHeader(http.StatusOK)
	if !ok {
		return
	}

	// Detach from the request: its context dies when the 200 is written.
	ctx := logging.WithLogger(context.WithoutCancel(r.Context()), log)
	go h.router.HandleMessage(ctx, msg)
}
