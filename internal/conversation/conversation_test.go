package conversation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

type recordingEffects struct {
	mu      sync.Mutex
	records []models.LeadRecord
	sources []string
	audits  []models.QueryAudit
}

func (r *recordingEffects) Submit(rec models.LeadRecord, eff models.EffectSet, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	r.sources = append(r.sources, source)
}

func (r *recordingEffects) SubmitAudit(audit models.QueryAudit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, audit)
}

func (r *recordingEffects) recordCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func newTestBot(t *testing.T, vertical string, sender messaging.Sender, eff EffectSubmitter) (*Bot, *store.InMemorySessionStore) {
	t.Helper()
	v, err := flow.Lookup(vertical, flow.DefaultAssets())
	if err != nil {
		t.Fatalf("Lookup(%s): %v", vertical, err)
	}
	engine, err := flow.NewEngine(v)
	if err != nil {
		t.Fatalf("NewEngine(%s): %v", vertical, err)
	}
	sessions := store.NewInMemorySessionStore(store.WithVertical(v.Name), store.WithInitialStage(v.Initial))
	opts := []BotOption{WithSender(sender)}
	if eff != nil {
		opts = append(opts, WithEffects(eff))
	}
	return NewBot(engine, sessions, opts...), sessions
}

var agencyScript = []string{"hola", "Ana", "2", "clínica en Lima", "alto", "ana@x.com"}

func TestBotAgencyFlowSubmitsLeadOnce(t *testing.T) {
	sender := messaging.NewMockSender()
	eff := &recordingEffects{}
	bot, sessions := newTestBot(t, flow.VerticalAgency, sender, eff)
	ctx := context.Background()
	const who = "51999000111"

	for _, text := range agencyScript {
		if _, err := bot.Handle(ctx, who, text); err != nil {
			t.Fatalf("Handle(%q): %v", text, err)
		}
	}

	if eff.recordCount() != 1 {
		t.Fatalf("Expected exactly one lead record, got %d", eff.recordCount())
	}
	rec := eff.records[0]
	if rec.Value("nombre") != "Ana" || rec.Value("contacto") != "ana@x.com" {
		t.Errorf("Unexpected record fields: %+v", rec.Fields)
	}
	if eff.sources[0] != "bot_agencia_desarrollo" {
		t.Errorf("Unexpected source %q", eff.sources[0])
	}
	if _, err := sessions.Get(ctx, who); !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("Expected the session to be cleared, got %v", err)
	}
	sent := sender.SentTo(who)
	if len(sent) != len(agencyScript) {
		t.Fatalf("Expected one reply per message, got %d", len(sent))
	}
	if !strings.Contains(sent[len(sent)-1].Body, "ana@x.com") {
		t.Errorf("Expected the summary last, got %q", sent[len(sent)-1].Body)
	}
}

func TestBotExitClearsSession(t *testing.T) {
	sender := messaging.NewMockSender()
	bot, sessions := newTestBot(t, flow.VerticalAgency, sender, nil)
	ctx := context.Background()

	bot.Handle(ctx, "51911", "hola")
	bot.Handle(ctx, "51911", "Ana")
	res, err := bot.Handle(ctx, "51911", "  SALIR ")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Outcome != flow.OutcomeExit {
		t.Errorf("Expected exit outcome, got %s", res.Outcome)
	}
	if _, err := sessions.Get(ctx, "51911"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("Expected no session after exit, got %v", err)
	}
}

func TestBotCourierQuerySubmitsAudit(t *testing.T) {
	sender := messaging.NewMockSender()
	eff := &recordingEffects{}
	bot, _ := newTestBot(t, flow.VerticalCourier, sender, eff)

	res, err := bot.Handle(context.Background(), "51922", "ABC123")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Outcome != flow.OutcomeQuery {
		t.Fatalf("Expected query outcome, got %s", res.Outcome)
	}
	if len(eff.audits) != 1 || eff.audits[0].Reference != "ABC123" {
		t.Fatalf("Expected one audit for ABC123, got %+v", eff.audits)
	}
	if eff.recordCount() != 0 {
		t.Errorf("A query must not produce a lead record")
	}
}

func TestBotRejectsEmptyIdentity(t *testing.T) {
	bot, _ := newTestBot(t, flow.VerticalGeneric, messaging.NewMockSender(), nil)
	if _, err := bot.Handle(context.Background(), "", "hola"); !errors.Is(err, models.ErrEmptyIdentity) {
		t.Fatalf("Expected ErrEmptyIdentity, got %v", err)
	}
}

func TestBotDeliveryFailureDoesNotFailStep(t *testing.T) {
	sender := messaging.NewMockSender()
	sender.Err = errors.New("transport down")
	bot, sessions := newTestBot(t, flow.VerticalAgency, sender, nil)
	ctx := context.Background()

	if _, err := bot.Handle(ctx, "51933", "hola"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	sess, err := sessions.Get(ctx, "51933")
	if err != nil || sess.Stage != "ASK_NAME" {
		t.Fatalf("Expected the step to commit despite delivery failure, got %+v, %v", sess, err)
	}
}

// Interleaving messages from several identities through the router yields,
// per identity, exactly the replies of a sequential run.
func TestRouterInterleavingMatchesSequential(t *testing.T) {
	identities := []string{"51900000001", "51900000002", "51900000003", "34600000004"}

	reference := messaging.NewMockSender()
	refBot, _ := newTestBot(t, flow.VerticalAgency, reference, nil)
	for _, text := range agencyScript {
		if _, err := refBot.Handle(context.Background(), "ref", text); err != nil {
			t.Fatalf("reference Handle: %v", err)
		}
	}
	want := reference.SentTo("ref")

	sender := messaging.NewMockSender()
	eff := &recordingEffects{}
	bot, _ := newTestBot(t, flow.VerticalAgency, sender, eff)
	r := NewRouter(map[string]MessageHandler{flow.VerticalAgency: bot}, WithShards(3), WithDefaultVertical(flow.VerticalAgency))
	r.Start(context.Background())

	for step, text := range agencyScript {
		for i, id := range identities {
			msg := models.Inbound{Identity: id, Text: text, MessageID: fmt.Sprintf("%d-%d", step, i)}
			if err := r.Enqueue(context.Background(), msg); err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
		}
	}
	r.Stop()

	for _, id := range identities {
		if got := sender.SentTo(id); !reflect.DeepEqual(got, want) {
			t.Errorf("Replies for %s differ from the sequential run:\n got %v\nwant %v", id, got, want)
		}
	}
	if eff.recordCount() != len(identities) {
		t.Errorf("Expected %d leads, got %d", len(identities), eff.recordCount())
	}
}

func TestRouterDropsDuplicateMessageIDs(t *testing.T) {
	sender := messaging.NewMockSender()
	bot, _ := newTestBot(t, flow.VerticalAgency, sender, nil)
	r := NewRouter(map[string]MessageHandler{flow.VerticalAgency: bot},
		WithDefaultVertical(flow.VerticalAgency), WithDedup(store.NewInMemoryDedup(time.Minute)))
	r.Start(context.Background())

	msg := models.Inbound{Identity: "51944", Text: "hola", MessageID: "wamid.same"}
	for i := 0; i < 3; i++ {
		if err := r.Enqueue(context.Background(), msg); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	r.Stop()

	if n := len(sender.SentTo("51944")); n != 1 {
		t.Fatalf("Expected one reply for a redelivered message, got %d", n)
	}
}

func TestRouterUnknownVertical(t *testing.T) {
	r := NewRouter(map[string]MessageHandler{})
	err := r.Enqueue(context.Background(), models.Inbound{Vertical: "bakery", Identity: "51"})
	if !errors.Is(err, ErrUnknownVertical) {
		t.Fatalf("Expected ErrUnknownVertical, got %v", err)
	}
}

type blockingHandler struct {
	release chan struct{}
	mu      sync.Mutex
	seen    []string
}

func (b *blockingHandler) Handle(ctx context.Context, identity, text string) (flow.StepResult, error) {
	<-b.release
	b.mu.Lock()
	b.seen = append(b.seen, text)
	b.mu.Unlock()
	return flow.StepResult{}, nil
}

func TestRouterQueueFullDropsMessage(t *testing.T) {
	h := &blockingHandler{release: make(chan struct{})}
	r := NewRouter(map[string]MessageHandler{"x": h},
		WithShards(1), WithQueueSize(1), WithEnqueueTimeout(20*time.Millisecond))
	r.Start(context.Background())
	ctx := context.Background()

	// One message is picked up by the worker and blocks, one fills the queue.
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = r.Enqueue(ctx, models.Inbound{Vertical: "x", Identity: "51", Text: fmt.Sprint(i)})
		time.Sleep(10 * time.Millisecond)
	}
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Expected ErrQueueFull, got %v", err)
	}
	close(h.release)
	r.Stop()

	if err := r.Enqueue(ctx, models.Inbound{Vertical: "x", Identity: "51"}); !errors.Is(err, ErrRouterStopped) {
		t.Errorf("Expected ErrRouterStopped after Stop, got %v", err)
	}
}

type panickyHandler struct {
	mu    sync.Mutex
	calls int
}

func (p *panickyHandler) Handle(ctx context.Context, identity, text string) (flow.StepResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if text == "boom" {
		panic("boom")
	}
	return flow.StepResult{}, nil
}

func TestRouterRecoversFromPanics(t *testing.T) {
	h := &panickyHandler{}
	r := NewRouter(map[string]MessageHandler{"x": h}, WithShards(1))
	r.Start(context.Background())
	r.Enqueue(context.Background(), models.Inbound{Vertical: "x", Identity: "51", Text: "boom"})
	r.Enqueue(context.Background(), models.Inbound{Vertical: "x", Identity: "51", Text: "ok"})
	r.Stop()

	if h.calls != 2 {
		t.Fatalf("Expected the worker to survive the panic and handle both messages, got %d calls", h.calls)
	}
}

func TestRouterConsume(t *testing.T) {
	sender := messaging.NewMockSender()
	bot, _ := newTestBot(t, flow.VerticalGeneric, sender, nil)
	r := NewRouter(map[string]MessageHandler{flow.VerticalGeneric: bot})
	r.Start(context.Background())

	src := make(chan models.Inbound, 2)
	src <- models.Inbound{Vertical: flow.VerticalGeneric, Identity: "51955", Text: "hola"}
	close(src)
	r.Consume(context.Background(), src)
	r.Stop()

	if len(sender.SentTo("51955")) == 0 {
		t.Fatal("Expected a reply for the consumed message")
	}
}
