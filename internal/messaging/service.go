// Package messaging delivers bot replies over the configured WhatsApp transport
// and turns transport-specific inbound payloads into models.Inbound.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

var (
	// ErrInvalidRecipient is returned when an identity has too few digits to be a phone number.
	ErrInvalidRecipient = errors.New("invalid recipient")
	// ErrServiceStopped is returned by services that have been stopped.
	ErrServiceStopped = errors.New("messaging service stopped")
)

// MinRecipientDigits is the shortest identity accepted as a phone number.
const MinRecipientDigits = 6

var nonDigitRegex = regexp.MustCompile(`\D`)

// Sender delivers outbound messages to a single identity.
// Every call is best-effort; callers log failures and move on.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendDocument(ctx context.Context, to, url, caption, filename string) error
	SendLocation(ctx context.Context, to string, lat, lng float64, name, address string) error
	SendImage(ctx context.Context, to, url, caption string) error
}

// Source is a push transport that produces inbound messages.
type Source interface {
	Start(ctx context.Context) error
	Stop() error
	Inbound() <-chan models.Inbound
}

// CanonicalizeRecipient strips everything but digits from an identity.
func CanonicalizeRecipient(raw string) (string, error) {
	canonical := nonDigitRegex.ReplaceAllString(raw, "")
	if len(canonical) < MinRecipientDigits {
		return "", fmt.Errorf("%w: %q has fewer than %d digits", ErrInvalidRecipient, raw, MinRecipientDigits)
	}
	return canonical, nil
}

// Send maps one outbound message onto the matching Sender call.
func Send(ctx context.Context, s Sender, to string, m models.Outbound) error {
	switch m.Kind {
	case models.OutboundText:
		return s.SendText(ctx, to, m.Body)
	case models.OutboundDocument:
		return s.SendDocument(ctx, to, m.URL, m.Caption, m.Filename)
	case models.OutboundLocation:
		return s.SendLocation(ctx, to, m.Lat, m.Lng, m.Name, m.Address)
	case models.OutboundImage:
		return s.SendImage(ctx, to, m.URL, m.Caption)
	default:
		return fmt.Errorf("%w: %q", models.ErrUnknownKind, m.Kind)
	}
}

// SendAll sends msgs in order. A failed message is logged and the rest are
// still attempted; the returned error joins all failures.
func SendAll(ctx context.Context, s Sender, to string, msgs []models.Outbound, observe func(kind string, err error)) error {
	var errs []error
	for i, m := range msgs {
		err := Send(ctx, s, to, m)
		if observe != nil {
			observe(string(m.Kind), err)
		}
		if err != nil {
			slog.Error("messaging.SendAll: delivery failed", "to", to, "index", i, "kind", m.Kind, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
