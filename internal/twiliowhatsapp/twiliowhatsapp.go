// Package twiliowhatsapp wraps the Twilio Messaging API as a WhatsApp transport.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// AddressPrefix marks a Twilio address as a WhatsApp number.
const AddressPrefix = "whatsapp:"

// TwilioWhatsAppSender is the send surface shared by Client and MockClient.
type TwilioWhatsAppSender interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendMedia(ctx context.Context, to string, body string, mediaURL string) error
	SendLocation(ctx context.Context, to string, lat, lng float64, label string) error
}

// Opts holds the Twilio account settings.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the account SID. Falls back to TWILIO_ACCOUNT_SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the auth token. Falls back to TWILIO_AUTH_TOKEN.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending number. Falls back to TWILIO_FROM_NUMBER.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Client sends WhatsApp messages through Twilio.
type Client struct {
	api       messageCreator
	fromWhats string // "whatsapp:+1234567890"
}

var _ TwilioWhatsAppSender = (*Client)(nil)

// NewClient builds a client, reading unset options from the environment.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("twiliowhatsapp.NewClient: config loaded",
		"account_sid_set", cfg.AccountSID != "",
		"auth_token_set", cfg.AuthToken != "",
		"from_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newClient(rest.Api, cfg.FromWhats), nil
}

func newClient(api messageCreator, from string) *Client {
	return &Client{api: api, fromWhats: Address(from)}
}

// Address returns number in Twilio's WhatsApp address form.
func Address(number string) string {
	if strings.HasPrefix(number, AddressPrefix) {
		return number
	}
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	return AddressPrefix + number
}

func (c *Client) create(to string, params *twilioApi.CreateMessageParams) error {
	params.SetTo(Address(to))
	params.SetFrom(c.fromWhats)
	resp, err := c.api.CreateMessage(params)
	if err != nil {
		slog.Error("Client.create: Twilio request failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	if resp != nil && resp.Sid != nil {
		slog.Debug("Client.create: message queued", "to", to, "sid", *resp.Sid)
	}
	return nil
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetBody(body)
	return c.create(to, params)
}

// SendMedia sends a document or image by URL with an optional caption.
func (c *Client) SendMedia(ctx context.Context, to string, body string, mediaURL string) error {
	params := &twilioApi.CreateMessageParams{}
	if body != "" {
		params.SetBody(body)
	}
	params.SetMediaUrl([]string{mediaURL})
	return c.create(to, params)
}

// SendLocation sends a pin using Twilio's geo persistent action.
func (c *Client) SendLocation(ctx context.Context, to string, lat, lng float64, label string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetBody(label)
	params.SetPersistentAction([]string{GeoAction(lat, lng, label)})
	return c.create(to, params)
}

// GeoAction formats a "geo:" persistent action.
func GeoAction(lat, lng float64, label string) string {
	action := fmt.Sprintf("geo:%f,%f", lat, lng)
	if label != "" {
		action += "|" + label
	}
	return action
}

// SentMessage is one call recorded by MockClient.
type SentMessage struct {
	To       string
	Body     string
	MediaURL string
	Geo      string
}

// MockClient records sends instead of calling Twilio.
type MockClient struct {
	SentMessages []SentMessage
	Err          error
}

var _ TwilioWhatsAppSender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{SentMessages: []SentMessage{}}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return m.Err
}

func (m *MockClient) SendMedia(ctx context.Context, to string, body string, mediaURL string) error {
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body, MediaURL: mediaURL})
	return m.Err
}

func (m *MockClient) SendLocation(ctx context.Context, to string, lat, lng float64, label string) error {
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: label, Geo: GeoAction(lat, lng, label)})
	return m.Err
}
