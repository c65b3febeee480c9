package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/twiliowhatsapp"
)

// emptyTwiML acknowledges a Twilio webhook without replying inline.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioService delivers replies through Twilio and receives inbound
// messages from Twilio's webhook.
type TwilioService struct {
	client   twiliowhatsapp.TwilioWhatsAppSender
	vertical string
	inbound  chan models.Inbound
	mu       sync.RWMutex
	stopped  bool
}

var (
	_ Sender = (*TwilioService)(nil)
	_ Source = (*TwilioService)(nil)
)

// NewTwilioService creates a service whose inbound messages are tagged with vertical.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender, vertical string) *TwilioService {
	return &TwilioService{
		client:   client,
		vertical: vertical,
		inbound:  make(chan models.Inbound, DefaultChannelBufferSize),
	}
}

// Start is a no-op; inbound traffic arrives through TwilioWebhookHandler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the inbound channel. Later sends fail with ErrServiceStopped.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.inbound)
	slog.Info("TwilioService.Stop: stopped")
	return nil
}

// Inbound returns the channel of messages received by the webhook.
func (s *TwilioService) Inbound() <-chan models.Inbound {
	return s.inbound
}

func (s *TwilioService) recipient(to string) (string, error) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return "", ErrServiceStopped
	}
	return CanonicalizeRecipient(to)
}

func (s *TwilioService) SendText(ctx context.Context, to, body string) error {
	canonical, err := s.recipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, canonical, body)
}

func (s *TwilioService) SendDocument(ctx context.Context, to, url, caption, filename string) error {
	canonical, err := s.recipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMedia(ctx, canonical, caption, url)
}

func (s *TwilioService) SendLocation(ctx context.Context, to string, lat, lng float64, name, address string) error {
	canonical, err := s.recipient(to)
	if err != nil {
		return err
	}
	label := name
	if address != "" {
		label = strings.TrimSpace(name + " " + address)
	}
	return s.client.SendLocation(ctx, canonical, lat, lng, label)
}

func (s *TwilioService) SendImage(ctx context.Context, to, url, caption string) error {
	canonical, err := s.recipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMedia(ctx, canonical, caption, url)
}

// ParseTwilioForm converts a Twilio inbound webhook form into an Inbound message.
func ParseTwilioForm(r *http.Request, vertical string) (models.Inbound, error) {
	if err := r.ParseForm(); err != nil {
		return models.Inbound{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	from := strings.TrimPrefix(r.FormValue("From"), twiliowhatsapp.AddressPrefix)
	identity, err := CanonicalizeRecipient(from)
	if err != nil {
		return models.Inbound{}, err
	}
	return models.Inbound{
		Vertical:  vertical,
		Identity:  identity,
		Text:      r.FormValue("Body"),
		MessageID: r.FormValue("MessageSid"),
		Received:  time.Now(),
	}, nil
}

// TwilioWebhookHandler accepts Twilio's inbound message webhook and queues
// the message on Inbound().
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	msg, err := ParseTwilioForm(r, s.vertical)
	if err != nil {
		slog.Warn("TwilioService.TwilioWebhookHandler: ignoring request", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	slog.Debug("TwilioService.TwilioWebhookHandler: message received", "from", msg.Identity, "message_id", msg.MessageID)
	s.safeEmit(msg)

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, emptyTwiML)
}

func (s *TwilioService) safeEmit(msg models.Inbound) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("TwilioService.safeEmit: service stopped, dropping message", "from", msg.Identity)
		return
	}
	select {
	case s.inbound <- msg:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService.safeEmit: inbound channel blocked, dropping message", "from", msg.Identity, "timeout", DefaultChannelTimeout)
	}
}
