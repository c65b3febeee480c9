package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Cloud API defaults.
const (
	DefaultGraphBaseURL = "https://graph.facebook.com"
	DefaultGraphVersion = "v22.0"
	DefaultSendTimeout  = 10 * time.Second
)

// CloudAPISender sends messages through the WhatsApp Cloud API.
type CloudAPISender struct {
	token         string
	phoneNumberID string
	baseURL       string
	version       string
	client        *http.Client
}

var _ Sender = (*CloudAPISender)(nil)

// CloudOption configures a CloudAPISender.
type CloudOption func(*CloudAPISender)

// WithGraphBaseURL overrides the Graph API host, mainly for tests.
func WithGraphBaseURL(u string) CloudOption {
	return func(s *CloudAPISender) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithGraphVersion sets the Graph API version segment.
func WithGraphVersion(v string) CloudOption {
	return func(s *CloudAPISender) {
		if v != "" {
			s.version = v
		}
	}
}

// WithCloudHTTPClient sets the HTTP client.
func WithCloudHTTPClient(c *http.Client) CloudOption {
	return func(s *CloudAPISender) {
		if c != nil {
			s.client = c
		}
	}
}

// NewCloudAPISender creates a sender for the given access token and phone number id.
// With either missing every send is skipped with a warning.
func NewCloudAPISender(token, phoneNumberID string, opts ...CloudOption) *CloudAPISender {
	s := &CloudAPISender{
		token:         token,
		phoneNumberID: phoneNumberID,
		baseURL:       DefaultGraphBaseURL,
		version:       DefaultGraphVersion,
		client:        &http.Client{Timeout: DefaultSendTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type cloudMedia struct {
	Link     string `json:"link"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type cloudLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type cloudText struct {
	Body string `json:"body"`
}

type cloudMessage struct {
	MessagingProduct string         `json:"messaging_product"`
	To               string         `json:"to"`
	Type             string         `json:"type"`
	Text             *cloudText     `json:"text,omitempty"`
	Document         *cloudMedia    `json:"document,omitempty"`
	Image            *cloudMedia    `json:"image,omitempty"`
	Location         *cloudLocation `json:"location,omitempty"`
}

func newCloudMessage(to, kind string) cloudMessage {
	return cloudMessage{MessagingProduct: "whatsapp", To: to, Type: kind}
}

func (s *CloudAPISender) SendText(ctx context.Context, to, body string) error {
	m := newCloudMessage(to, "text")
	m.Text = &cloudText{Body: body}
	return s.post(ctx, m)
}

func (s *CloudAPISender) SendDocument(ctx context.Context, to, url, caption, filename string) error {
	m := newCloudMessage(to, "document")
	m.Document = &cloudMedia{Link: url, Caption: caption, Filename: filename}
	return s.post(ctx, m)
}

func (s *CloudAPISender) SendLocation(ctx context.Context, to string, lat, lng float64, name, address string) error {
	m := newCloudMessage(to, "location")
	m.Location = &cloudLocation{Latitude: lat, Longitude: lng, Name: name, Address: address}
	return s.post(ctx, m)
}

func (s *CloudAPISender) SendImage(ctx context.Context, to, url, caption string) error {
	m := newCloudMessage(to, "image")
	m.Image = &cloudMedia{Link: url, Caption: caption}
	return s.post(ctx, m)
}

func (s *CloudAPISender) post(ctx context.Context, m cloudMessage) error {
	if s.token == "" || s.phoneNumberID == "" {
		slog.Warn("CloudAPISender.post: token or phone number id not configured, message dropped", "to", m.To, "type", m.Type)
		return nil
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", m.Type, err)
	}
	endpoint := fmt.Sprintf("%s/%s/%s/messages", s.baseURL, s.version, s.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", m.Type, m.To, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send %s to %s: status %d: %s", m.Type, m.To, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	slog.Debug("CloudAPISender.post: message sent", "to", m.To, "type", m.Type)
	return nil
}
