// Package whatsapp wraps the Whatsmeow client used as LeadPipe's self-hosted WhatsApp transport.
//
// It logs a linked device in, sends text, link and location messages, and
// exposes the underlying client so callers can subscribe to inbound events.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is where the whatsmeow device store lives when no DSN is given.
	DefaultSQLitePath = "/var/lib/leadpipe/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = "s.whatsapp.net"
)

var (
	ErrNotConnected   = errors.New("whatsapp client not initialized")
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	ErrEmptyBody      = errors.New("message body cannot be empty")
)

// WhatsAppSender is the send surface shared by Client and MockClient.
type WhatsAppSender interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendLink(ctx context.Context, to string, url string, text string) error
	SendLocation(ctx context.Context, to string, lat, lng float64, name, address string) error
}

// Opts holds the whatsmeow device store and login settings.
type Opts struct {
	DBDSN       string // whatsmeow database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // print the raw pairing code instead of a QR block
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput writes the login QR code to path instead of stdout.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode prints the login code as text.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client wraps a connected whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
}

var _ WhatsAppSender = (*Client)(nil)

// driverFor picks the database/sql driver for a whatsmeow store DSN.
func driverFor(dsn string) string {
	if store.DetectDSNType(dsn) == "postgres" {
		return "postgres"
	}
	if !strings.Contains(dsn, "foreign_keys") {
		slog.Warn("whatsapp.driverFor: SQLite DSN without foreign keys; whatsmeow recommends enabling them",
			"dsn_example", "file:"+dsn+"?_foreign_keys=on")
	}
	return "sqlite3"
}

// NewClient opens the device store, logs in if needed and connects.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DBDSN == "" {
		cfg.DBDSN = DefaultSQLitePath
	}
	driver := driverFor(cfg.DBDSN)
	slog.Debug("whatsapp.NewClient: opening device store", "driver", driver, "qr_path_set", cfg.QRPath != "", "numeric_code", cfg.NumericCode)

	container, err := sqlstore.New(ctx, driver, cfg.DBDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize whatsmeow store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device from whatsmeow store: %w", err)
	}

	waClient := whatsmeow.NewClient(device, waLog.Stdout("Client", "INFO", true))
	if waClient.Store.ID != nil {
		if err := waClient.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to WhatsApp: %w", err)
		}
		slog.Info("whatsapp.NewClient: connected", "jid", waClient.Store.ID.String())
		return &Client{waClient: waClient}, nil
	}

	slog.Info("whatsapp.NewClient: device not linked, starting login")
	qrChan, _ := waClient.GetQRChannel(ctx)
	if err := waClient.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}
	out := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		out = f
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			slog.Info("whatsapp.NewClient: login event", "event", evt.Event)
			continue
		}
		if cfg.NumericCode {
			fmt.Fprintln(out, evt.Code)
		} else {
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, out)
		}
	}
	slog.Info("whatsapp.NewClient: connected after login")
	return &Client{waClient: waClient}, nil
}

func (c *Client) send(ctx context.Context, to string, msg *waE2E.Message) error {
	if c == nil || c.waClient == nil || c.waClient.Store == nil {
		return ErrNotConnected
	}
	if to == "" {
		return ErrEmptyRecipient
	}
	jid := types.NewJID(to, JIDSuffix)
	if _, err := c.waClient.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	return nil
}

// SendMessage sends a plain text message.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if body == "" {
		return ErrEmptyBody
	}
	slog.Debug("Client.SendMessage", "to", to, "body_length", len(body))
	return c.send(ctx, to, &waE2E.Message{Conversation: proto.String(body)})
}

// SendLink sends text with a URL the app renders as a link preview.
// Documents and images are delivered this way since they are referenced by URL.
func (c *Client) SendLink(ctx context.Context, to string, url string, text string) error {
	if url == "" {
		return ErrEmptyBody
	}
	body := url
	if text != "" {
		body = text + "\n" + url
	}
	slog.Debug("Client.SendLink", "to", to, "url", url)
	return c.send(ctx, to, &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(body),
			MatchedText: proto.String(url),
		},
	})
}

// SendLocation sends a map pin.
func (c *Client) SendLocation(ctx context.Context, to string, lat, lng float64, name, address string) error {
	slog.Debug("Client.SendLocation", "to", to, "lat", lat, "lng", lng)
	return c.send(ctx, to, &waE2E.Message{
		LocationMessage: &waE2E.LocationMessage{
			DegreesLatitude:  proto.Float64(lat),
			DegreesLongitude: proto.Float64(lng),
			Name:             proto.String(name),
			Address:          proto.String(address),
		},
	})
}

// GetClient returns the underlying whatsmeow client for event handling
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// Disconnect closes the websocket.
func (c *Client) Disconnect() {
	if c != nil && c.waClient != nil {
		c.waClient.Disconnect()
	}
}

// SentMessage is one call recorded by MockClient.
type SentMessage struct {
	Kind    string
	To      string
	Body    string
	URL     string
	Lat     float64
	Lng     float64
	Name    string
	Address string
}

// MockClient records sends instead of talking to WhatsApp.
type MockClient struct {
	Sent []SentMessage
	Err  error
}

var _ WhatsAppSender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.Sent = append(m.Sent, SentMessage{Kind: "text", To: to, Body: body})
	return m.Err
}

func (m *MockClient) SendLink(ctx context.Context, to string, url string, text string) error {
	m.Sent = append(m.Sent, SentMessage{Kind: "link", To: to, Body: text, URL: url})
	return m.Err
}

func (m *MockClient) SendLocation(ctx context.Context, to string, lat, lng float64, name, address string) error {
	m.Sent = append(m.Sent, SentMessage{Kind: "location", To: to, Lat: lat, Lng: lng, Name: name, Address: address})
	return m.Err
}
