package effects

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BTreeMap/LeadPipe/internal/enrich"
	"github.com/BTreeMap/LeadPipe/internal/metrics"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Pipeline turns a completed LeadRecord into its side effects:
// create in the business API, enrich, persist, notify.
type Pipeline struct {
	api        ExternalAPI
	sink       PersistenceSink
	notifier   Notifier
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

func WithExternalAPI(api ExternalAPI) PipelineOption {
	return func(p *Pipeline) { p.api = api }
}

func WithSink(s PersistenceSink) PipelineOption {
	return func(p *Pipeline) { p.sink = s }
}

func WithNotifier(n Notifier) PipelineOption {
	return func(p *Pipeline) { p.notifier = n }
}

func WithDispatcher(d *Dispatcher) PipelineOption {
	return func(p *Pipeline) { p.dispatcher = d }
}

func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates a pipeline. Missing collaborators are skipped at run time.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.dispatcher == nil {
		p.dispatcher = NewDispatcher(WithDispatcherMetrics(p.metrics))
	}
	return p
}

// Submit schedules the effects of a completed flow and returns immediately.
func (p *Pipeline) Submit(rec models.LeadRecord, eff models.EffectSet, source string) {
	p.dispatcher.Go("lead", func(ctx context.Context) error {
		_, err := p.Process(ctx, rec, eff, source)
		return err
	})
}

// SubmitAudit schedules persisting a lookup audit note.
func (p *Pipeline) SubmitAudit(audit models.QueryAudit) {
	if p.sink == nil {
		return
	}
	p.dispatcher.Go("audit", func(ctx context.Context) error {
		return p.sink.PersistQuery(ctx, audit)
	})
}

// Process runs the effects synchronously. Each step is independent: a
// failing collaborator is logged and the remaining steps still run. The
// returned error joins every failure.
func (p *Pipeline) Process(ctx context.Context, rec models.LeadRecord, eff models.EffectSet, source string) (models.EnrichedLead, error) {
	var errs []error
	log := slog.With("lead_id", rec.ID, "vertical", rec.Vertical, "kind", rec.Kind, "identity", rec.Identity)

	if eff.Create && p.api != nil {
		res, err := p.api.Create(ctx, eff.Resource, rec.Payload())
		switch {
		case err != nil:
			log.Error("Pipeline.Process: create failed", "resource", eff.Resource, "error", err)
			errs = append(errs, err)
		case !res.OK:
			log.Warn("Pipeline.Process: create rejected", "resource", eff.Resource)
		case eff.IDField != "":
			id := res.ID
			if id == "" {
				id = eff.IDFallback
			}
			rec.Set(eff.IDField, id)
		}
	}

	lead := enrich.Enrich(rec, source)

	if eff.Persist && p.sink != nil {
		if err := p.sink.PersistLead(ctx, lead); err != nil {
			log.Error("Pipeline.Process: persist failed", "error", err)
			errs = append(errs, err)
		}
	}
	if eff.Notify && p.notifier != nil {
		if err := p.notifier.Notify(ctx, lead); err != nil {
			log.Error("Pipeline.Process: notify failed", "error", err)
			errs = append(errs, err)
		}
	}

	p.metrics.ObserveLead(rec.Vertical, rec.Kind)
	log.Info("Pipeline.Process: lead processed", "category", lead.ServiceCategory, "interest", lead.InterestTier, "client_type", lead.ClientType)
	return lead, errors.Join(errs...)
}

// Wait blocks until all submitted effects have finished.
func (p *Pipeline) Wait() {
	p.dispatcher.Wait()
}

// Shutdown waits for submitted effects until ctx is done.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	return p.dispatcher.Shutdown(ctx)
}
