package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// Constants for inbound channel handling
const (
	// DefaultChannelBufferSize is the inbound channel capacity
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an emitter waits on a full channel
	DefaultChannelTimeout = 1 * time.Second
)

// WhatsAppService sends through the whatsmeow client and turns incoming
// whatsmeow message events into Inbound messages.
type WhatsAppService struct {
	client    whatsapp.WhatsAppSender
	waClient  *whatsapp.Client
	vertical  string
	inbound   chan models.Inbound
	handlerID uint32
	mu        sync.RWMutex
	stopped   bool
}

var (
	_ Sender = (*WhatsAppService)(nil)
	_ Source = (*WhatsAppService)(nil)
)

// NewWhatsAppService wraps client. Inbound messages are tagged with vertical.
func NewWhatsAppService(client whatsapp.WhatsAppSender, vertical string) *WhatsAppService {
	s := &WhatsAppService{
		client:   client,
		vertical: vertical,
		inbound:  make(chan models.Inbound, DefaultChannelBufferSize),
	}
	if wa, ok := client.(*whatsapp.Client); ok {
		s.waClient = wa
	}
	return s
}

// Start registers the whatsmeow event handler. With a mock client there
// are no events to subscribe to.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService.Start: no live client, skipping event handler")
		return nil
	}
	s.handlerID = s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if msg, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(msg)
		}
	})
	slog.Info("WhatsAppService.Start: event handler registered", "vertical", s.vertical)
	return nil
}

// Stop unregisters the event handler and closes the inbound channel.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.waClient != nil && s.waClient.GetClient() != nil && s.handlerID != 0 {
		s.waClient.GetClient().RemoveEventHandler(s.handlerID)
	}
	close(s.inbound)
	slog.Info("WhatsAppService.Stop: stopped")
	return nil
}

// Inbound returns the channel of received text messages.
func (s *WhatsAppService) Inbound() <-chan models.Inbound {
	return s.inbound
}

func (s *WhatsAppService) SendText(ctx context.Context, to, body string) error {
	canonical, err := CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, canonical, body)
}

func (s *WhatsAppService) SendDocument(ctx context.Context, to, url, caption, filename string) error {
	canonical, err := CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if caption == "" {
		caption = filename
	}
	return s.client.SendLink(ctx, canonical, url, caption)
}

func (s *WhatsAppService) SendLocation(ctx context.Context, to string, lat, lng float64, name, address string) error {
	canonical, err := CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendLocation(ctx, canonical, lat, lng, name, address)
}

func (s *WhatsAppService) SendImage(ctx context.Context, to, url, caption string) error {
	canonical, err := CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendLink(ctx, canonical, url, caption)
}

// handleIncomingMessage forwards one-to-one text messages.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}
	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = evt.Message.GetConversation()
	case evt.Message.ExtendedTextMessage != nil:
		text = evt.Message.GetExtendedTextMessage().GetText()
	default:
		slog.Debug("WhatsAppService.handleIncomingMessage: ignoring non-text message", "from", evt.Info.Sender.User)
		return
	}

	msg := models.Inbound{
		Vertical:  s.vertical,
		Identity:  evt.Info.Sender.User,
		Text:      text,
		MessageID: string(evt.Info.ID),
		Received:  evt.Info.Timestamp,
	}
	if msg.Received.IsZero() {
		msg.Received = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return
	}
	select {
	case s.inbound <- msg:
		slog.Debug("WhatsAppService.handleIncomingMessage: forwarded", "from", msg.Identity, "message_id", msg.MessageID)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService.handleIncomingMessage: inbound channel blocked, dropping message", "from", msg.Identity, "timeout", DefaultChannelTimeout)
	}
}
