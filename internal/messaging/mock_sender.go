package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// LogSender writes outbound messages to the log. Used when no transport is configured.
type LogSender struct{}

var _ Sender = LogSender{}

func (LogSender) SendText(ctx context.Context, to, body string) error {
	slog.Info("LogSender.SendText", "to", to, "body", body)
	return nil
}

func (LogSender) SendDocument(ctx context.Context, to, url, caption, filename string) error {
	slog.Info("LogSender.SendDocument", "to", to, "url", url, "caption", caption, "filename", filename)
	return nil
}

func (LogSender) SendLocation(ctx context.Context, to string, lat, lng float64, name, address string) error {
	slog.Info("LogSender.SendLocation", "to", to, "lat", lat, "lng", lng, "name", name, "address", address)
	return nil
}

func (LogSender) SendImage(ctx context.Context, to, url, caption string) error {
	slog.Info("LogSender.SendImage", "to", to, "url", url, "caption", caption)
	return nil
}

// Delivery is one message recorded by MockSender.
type Delivery struct {
	To  string
	Msg models.Outbound
}

// MockSender records deliveries in order. Safe for concurrent use.
type MockSender struct {
	mu   sync.Mutex
	sent []Delivery
	// Err, when set, is returned by every call after recording it.
	Err error
}

var _ Sender = (*MockSender)(nil)

func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) record(to string, msg models.Outbound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Delivery{To: to, Msg: msg})
	return m.Err
}

func (m *MockSender) SendText(ctx context.Context, to, body string) error {
	return m.record(to, models.Text(body))
}

func (m *MockSender) SendDocument(ctx context.Context, to, url, caption, filename string) error {
	return m.record(to, models.Document(url, caption, filename))
}

func (m *MockSender) SendLocation(ctx context.Context, to string, lat, lng float64, name, address string) error {
	return m.record(to, models.Location(lat, lng, name, address))
}

func (m *MockSender) SendImage(ctx context.Context, to, url, caption string) error {
	return m.record(to, models.Image(url, caption))
}

// Sent returns a copy of every delivery so far.
func (m *MockSender) Sent() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.sent...)
}

// SentTo returns the messages delivered to one recipient, in order.
func (m *MockSender) SentTo(to string) []models.Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Outbound
	for _, d := range m.sent {
		if d.To == to {
			out = append(out, d.Msg)
		}
	}
	return out
}

// Reset forgets recorded deliveries.
func (m *MockSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
