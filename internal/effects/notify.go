package effects

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Notifier tells staff about a new lead.
type Notifier interface {
	Notify(ctx context.Context, lead models.EnrichedLead) error
}

// WebhookNotifier posts the flattened lead to an email-relay webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

var _ Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier creates a notifier. An empty url disables it.
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = newHTTPClient()
	}
	return &WebhookNotifier{url: url, client: client}
}

func (n *WebhookNotifier) Notify(ctx context.Context, lead models.EnrichedLead) error {
	if n.url == "" {
		slog.Warn("WebhookNotifier.Notify: webhook URL not configured, skipping", "lead_id", lead.ID)
		return nil
	}
	if _, err := doJSON(ctx, n.client, http.MethodPost, n.url, lead.Flatten()); err != nil {
		return fmt.Errorf("email webhook for %s: %w", lead.ID, err)
	}
	slog.Info("WebhookNotifier.Notify: notification sent", "lead_id", lead.ID, "vertical", lead.Vertical)
	return nil
}

// SendGridConfig holds the SendGrid settings.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	To        string
}

// SendGridNotifier emails a lead summary through SendGrid.
type SendGridNotifier struct {
	// send returns the response status and body.
	send func(ctx context.Context, email *mail.SGMailV3) (int, string, error)
	cfg  SendGridConfig
}

var _ Notifier = (*SendGridNotifier)(nil)

// NewSendGridNotifier returns nil when the API key or recipient is missing.
func NewSendGridNotifier(cfg SendGridConfig) *SendGridNotifier {
	if cfg.APIKey == "" || cfg.To == "" {
		return nil
	}
	if cfg.FromName == "" {
		cfg.FromName = "LeadPipe"
	}
	client := sendgrid.NewSendClient(cfg.APIKey)
	return &SendGridNotifier{
		cfg: cfg,
		send: func(ctx context.Context, email *mail.SGMailV3) (int, string, error) {
			resp, err := client.SendWithContext(ctx, email)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		},
	}
}

func (n *SendGridNotifier) Notify(ctx context.Context, lead models.EnrichedLead) error {
	if n == nil || n.send == nil {
		return errors.New("sendgrid notifier not configured")
	}
	from := mail.NewEmail(n.cfg.FromName, n.cfg.FromEmail)
	to := mail.NewEmail("", n.cfg.To)
	subject := fmt.Sprintf("Nuevo registro %s (%s)", lead.Vertical, lead.Kind)
	body := leadSummary(lead)
	message := mail.NewSingleEmail(from, subject, to, body, "<pre>"+html.EscapeString(body)+"</pre>")

	status, respBody, err := n.send(ctx, message)
	if err != nil {
		slog.Error("SendGridNotifier.Notify: send failed", "lead_id", lead.ID, "error", err)
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if status >= 400 {
		slog.Error("SendGridNotifier.Notify: error status", "lead_id", lead.ID, "status", status, "body", respBody)
		return fmt.Errorf("sendgrid returned status %d", status)
	}
	slog.Info("SendGridNotifier.Notify: email sent", "lead_id", lead.ID, "to", n.cfg.To, "status", status)
	return nil
}

// leadSummary renders the collected and derived fields as plain text.
func leadSummary(lead models.EnrichedLead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vertical: %s\nFlujo: %s\nWhatsApp: %s\n\n", lead.Vertical, lead.Kind, lead.Identity)
	for _, f := range lead.Fields {
		fmt.Fprintf(&b, "%s: %s\n", f.Key, f.Value)
	}
	fmt.Fprintf(&b, "\nIdioma: %s\nPaís: %s\nCategoría: %s\nInterés: %s (%d)\nCliente: %s\nFuente: %s\n",
		lead.Language, lead.Country, lead.ServiceCategory, lead.InterestLevel, lead.InterestScore, lead.ClientType, lead.Source)
	return b.String()
}

// MultiNotifier notifies through every configured channel.
type MultiNotifier []Notifier

var _ Notifier = MultiNotifier(nil)

func (m MultiNotifier) Notify(ctx context.Context, lead models.EnrichedLead) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, lead); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
