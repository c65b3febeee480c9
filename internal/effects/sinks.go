package effects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// PersistenceSink records completed leads and lookup audits.
// store.SQLiteStore and store.PostgresStore satisfy it.
type PersistenceSink interface {
	PersistLead(ctx context.Context, lead models.EnrichedLead) error
	PersistQuery(ctx context.Context, audit models.QueryAudit) error
}

// SheetsSink posts flattened rows to a spreadsheet webhook (e.g. an Apps Script).
type SheetsSink struct {
	url    string
	client *http.Client
}

var _ PersistenceSink = (*SheetsSink)(nil)

// NewSheetsSink creates a sink posting to url. An empty url disables it.
func NewSheetsSink(url string, client *http.Client) *SheetsSink {
	if client == nil {
		client = newHTTPClient()
	}
	return &SheetsSink{url: url, client: client}
}

func (s *SheetsSink) PersistLead(ctx context.Context, lead models.EnrichedLead) error {
	return s.post(ctx, lead.Flatten(), "lead", lead.ID)
}

func (s *SheetsSink) PersistQuery(ctx context.Context, audit models.QueryAudit) error {
	row := map[string]string{
		"id":           audit.ID,
		"negocio_tipo": audit.Vertical,
		"flujo":        "consulta",
		"wa_from":      audit.Identity,
		"recurso":      audit.Resource,
		"referencia":   audit.Reference,
		"encontrado":   strconv.FormatBool(audit.Found),
		"canal":        models.Channel,
	}
	return s.post(ctx, row, "query", audit.ID)
}

func (s *SheetsSink) post(ctx context.Context, row map[string]string, what, id string) error {
	if s.url == "" {
		slog.Warn("SheetsSink.post: webhook URL not configured, row not saved", "kind", what, "id", id)
		return nil
	}
	if _, err := doJSON(ctx, s.client, http.MethodPost, s.url, row); err != nil {
		return fmt.Errorf("sheets %s %s: %w", what, id, err)
	}
	slog.Debug("SheetsSink.post: row saved", "kind", what, "id", id)
	return nil
}

// MultiSink fans a write out to every sink concurrently. One sink failing
// does not stop the others; all failures are joined.
type MultiSink []PersistenceSink

var _ PersistenceSink = MultiSink(nil)

func (m MultiSink) PersistLead(ctx context.Context, lead models.EnrichedLead) error {
	return m.each(func(s PersistenceSink) error { return s.PersistLead(ctx, lead) })
}

func (m MultiSink) PersistQuery(ctx context.Context, audit models.QueryAudit) error {
	return m.each(func(s PersistenceSink) error { return s.PersistQuery(ctx, audit) })
}

func (m MultiSink) each(fn func(PersistenceSink) error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(m))
	for i, s := range m {
		if s == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = fn(s)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
