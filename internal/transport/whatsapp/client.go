// Package whatsapp is the Cloud API transport: outbound text messages and the
// two-step media download. Inbound traffic arrives on the webhook handler, not
// here.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gasto-obra/backend/internal/logging"
)

const defaultBaseURL = "https://graph.facebook.com/v21.0"

type Client struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	httpClient    *http.Client
}

type Option func(*Client)

// WithBaseURL points the client at a test server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

func NewClient(phoneNumberID, accessToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:       defaultBaseURL,
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type outboundText struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

// Send delivers a text message to the given phone number.
func (c *Client) Send(ctx context.Context, to, text string) error {
	log := logging.FromContext(ctx)

	payload := outboundText{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               NormalizePhone(to),
		Type:             "text",
	}
	payload.Text.Body = text

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("Send: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("Send: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("Send: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	log.Debug("whatsapp message sent", "to", payload.To, "length", len(text))
	return nil
}

// Media is downloaded message content.
type Media struct {
	Data     []byte
	MimeType string
}

type mediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// DownloadMedia fetches a received image or audio. The Cloud API hands out a
// short-lived URL first; the actual content is behind a second authorized GET.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) (*Media, error) {
	var info mediaInfo
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%s", c.baseURL, mediaID), &info); err != nil {
		return nil, fmt.Errorf("DownloadMedia: media info: %w", err)
	}
	if info.MimeType == "" {
		info.MimeType = "application/octet-stream"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("DownloadMedia: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("DownloadMedia: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DownloadMedia: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 25<<20))
	if err != nil {
		return nil, fmt.Errorf("DownloadMedia: read body: %w", err)
	}

	return &Media{Data: data, MimeType: info.MimeType}, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// NormalizePhone collapses Argentine mobile numbers: WhatsApp reports them
// with a "549" prefix but the send API wants "54".
func NormalizePhone(phone string) string {
	if len(phone) == 13 && phone[:3] == "549" {
		return "54" + phone[3:]
	}
	return phone
}
