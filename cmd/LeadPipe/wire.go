package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/api"
	"github.com/BTreeMap/LeadPipe/internal/conversation"
	"github.com/BTreeMap/LeadPipe/internal/effects"
	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/lockfile"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/metrics"
	"github.com/BTreeMap/LeadPipe/internal/scheduler"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/LeadPipe/internal/whatsapp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// leadStore is what the SQL stores offer the rest of the process.
type leadStore interface {
	effects.PersistenceSink
	api.LeadLister
	store.DedupRepo
	scheduler.Pruner
	Close() error
}

// transport is the messaging side selected by --provider.
type transport struct {
	sender messaging.Sender
	source messaging.Source
	// twilioWebhook is set for the twilio provider.
	twilioWebhook http.HandlerFunc
	close         func()
}

// run wires every component and blocks until ctx is cancelled or the HTTP server fails.
func run(ctx context.Context, flags Flags) error {
	if err := ensureDirectoriesExist(flags); err != nil {
		return err
	}

	if store.DetectDSNType(flags.leadDSN) == "sqlite3" {
		lock, err := lockfile.AcquireLock(flags.stateDir)
		if err != nil {
			return fmt.Errorf("acquire state lock: %w", err)
		}
		defer func() {
			if err := lock.Release(); err != nil {
				slog.Warn("run: releasing lock failed", "error", err)
			}
		}()
	}

	leads, err := openLeadStore(flags.leadDSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := leads.Close(); err != nil {
			slog.Warn("run: closing lead store failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	externalAPI := effects.NewHTTPExternalAPI(buildAPIOptions(flags.config)...)
	pipeline := buildPipeline(flags, leads, externalAPI, m)

	tr, err := buildTransport(ctx, flags)
	if err != nil {
		return err
	}
	defer tr.close()

	var rdb *redis.Client
	if flags.config.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: flags.config.RedisAddr, Password: flags.config.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("connect redis %s: %w", flags.config.RedisAddr, err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				slog.Warn("run: closing redis failed", "error", err)
			}
		}()
	}

	handlers := make(map[string]conversation.MessageHandler, len(flags.verticals))
	var (
		banner   string
		sweepers []scheduler.Sweeper
	)
	for _, name := range flags.verticals {
		v, err := flow.Lookup(name, flags.config.Assets)
		if err != nil {
			return err
		}
		sessions, err := newSessionStore(v, flags.sessionTTL, rdb)
		if err != nil {
			return fmt.Errorf("build %s sessions: %w", name, err)
		}
		if sw, ok := sessions.(scheduler.Sweeper); ok {
			sweepers = append(sweepers, sw)
		}
		bot, err := buildBot(v, sessions, flags, externalAPI, tr.sender, pipeline, m)
		if err != nil {
			return err
		}
		handlers[name] = bot
		if name == flags.vertical {
			banner = v.Banner
		}
	}

	sched, err := buildScheduler(flags.config, sweepers, leads)
	if err != nil {
		return err
	}
	sched.Start()

	router := conversation.NewRouter(handlers,
		conversation.WithShards(flags.shards),
		conversation.WithDefaultVertical(flags.vertical),
		conversation.WithDedup(leads),
		conversation.WithRouterMetrics(m),
	)
	router.Start(ctx)

	if tr.source != nil {
		if err := tr.source.Start(ctx); err != nil {
			router.Stop()
			sched.Stop(ctx)
			return fmt.Errorf("start %s source: %w", flags.provider, err)
		}
	}

	server := api.NewServer(router, buildServerOptions(flags, banner, leads, tr, reg)...)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	if tr.source != nil {
		g.Go(func() error {
			router.Consume(gctx, tr.source.Inbound())
			return nil
		})
	}

	<-gctx.Done()
	if ctx.Err() != nil {
		slog.Info("run: shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if sErr := server.Shutdown(shutdownCtx); sErr != nil {
		slog.Warn("run: API server shutdown failed", "error", sErr)
	}
	if tr.source != nil {
		if sErr := tr.source.Stop(); sErr != nil {
			slog.Warn("run: stopping source failed", "error", sErr)
		}
	}
	if err = g.Wait(); err != nil {
		slog.Error("run: API server stopped", "error", err)
	}
	router.Stop()
	sched.Stop(shutdownCtx)
	if sErr := pipeline.Shutdown(shutdownCtx); sErr != nil {
		slog.Warn("run: side effects did not finish", "error", sErr)
	}
	return err
}

// ensureDirectoriesExist creates the state directory when SQLite files live there.
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(flags.leadDSN) != "sqlite3" && flags.provider != ProviderWhatsmeow {
		return nil
	}
	if err := os.MkdirAll(flags.stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir %s: %w", flags.stateDir, err)
	}
	return nil
}

func openLeadStore(dsn string) (leadStore, error) {
	switch store.DetectDSNType(dsn) {
	case "postgres":
		s, err := store.NewPostgresStore(store.WithPostgresDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("open postgres lead store: %w", err)
		}
		return s, nil
	default:
		s, err := store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("open sqlite lead store %s: %w", dsn, err)
		}
		return s, nil
	}
}

// buildAPIOptions maps the per-vertical API base URLs onto resources.
func buildAPIOptions(config Config) []effects.APIOption {
	var opts []effects.APIOption
	for resource, base := range config.APIBaseURLs {
		if base != "" {
			opts = append(opts, effects.WithBaseURL(resource, base))
		}
	}
	return opts
}

// buildNotifier returns the configured staff notifiers.
func buildNotifier(config Config) effects.MultiNotifier {
	notifiers := effects.MultiNotifier{effects.NewWebhookNotifier(config.EmailWebhookURL, nil)}
	if sg := effects.NewSendGridNotifier(effects.SendGridConfig{
		APIKey:    config.SendGridAPIKey,
		FromEmail: config.SendGridFrom,
		To:        config.NotifyEmailTo,
	}); sg != nil {
		notifiers = append(notifiers, sg)
	}
	return notifiers
}

func buildPipeline(flags Flags, leads effects.PersistenceSink, api effects.ExternalAPI, m *metrics.Metrics) *effects.Pipeline {
	dispatcher := effects.NewDispatcher(effects.WithTaskTimeout(flags.effectTimeout), effects.WithDispatcherMetrics(m))
	return effects.NewPipeline(
		effects.WithExternalAPI(api),
		effects.WithSink(effects.MultiSink{leads, effects.NewSheetsSink(flags.config.SheetsURL, nil)}),
		effects.WithNotifier(buildNotifier(flags.config)),
		effects.WithDispatcher(dispatcher),
		effects.WithMetrics(m),
	)
}

// buildTransport creates the sender and, for pushed providers, the inbound source.
func buildTransport(ctx context.Context, flags Flags) (transport, error) {
	config := flags.config
	noop := func() {}
	switch flags.provider {
	case ProviderCloud:
		sender := messaging.NewCloudAPISender(config.WhatsAppToken, config.PhoneNumberID)
		if sender == nil {
			return transport{}, errors.New("cloud provider needs WHATSAPP_TOKEN and WHATSAPP_PHONE_NUMBER_ID")
		}
		return transport{sender: sender, close: noop}, nil
	case ProviderTwilio:
		client, err := twiliowhatsapp.NewClient(buildTwilioOptions(config)...)
		if err != nil {
			return transport{}, fmt.Errorf("create twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client, flags.vertical)
		return transport{sender: svc, source: svc, twilioWebhook: svc.TwilioWebhookHandler, close: noop}, nil
	case ProviderWhatsmeow:
		client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(flags)...)
		if err != nil {
			return transport{}, fmt.Errorf("create whatsmeow client: %w", err)
		}
		svc := messaging.NewWhatsAppService(client, flags.vertical)
		return transport{sender: svc, source: svc, close: client.Disconnect}, nil
	case ProviderLog:
		slog.Warn("buildTransport: replies are only logged", "provider", flags.provider)
		return transport{sender: messaging.LogSender{}, close: noop}, nil
	default:
		return transport{}, fmt.Errorf("unknown messaging provider %q", flags.provider)
	}
}

func buildTwilioOptions(config Config) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if config.TwilioAccountSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(config.TwilioAccountSID))
	}
	if config.TwilioAuthToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(config.TwilioAuthToken))
	}
	if config.TwilioFrom != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(config.TwilioFrom))
	}
	return opts
}

func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	opts := []whatsapp.Option{whatsapp.WithDBDSN(flags.whatsappDSN)}
	if flags.qrOutput != "" {
		opts = append(opts, whatsapp.WithQRCodeOutput(flags.qrOutput))
	}
	if flags.numeric {
		opts = append(opts, whatsapp.WithNumericCode())
	}
	return opts
}

// buildSessionOptions configures the session store of one vertical.
func buildSessionOptions(v *flow.Vertical, ttl time.Duration, rdb *redis.Client) []store.Option {
	opts := []store.Option{
		store.WithVertical(v.Name),
		store.WithInitialStage(v.Initial),
		store.WithTTL(ttl),
	}
	if rdb != nil {
		opts = append(opts, store.WithRedisClient(rdb))
	}
	return opts
}

func newSessionStore(v *flow.Vertical, ttl time.Duration, rdb *redis.Client) (store.SessionStore, error) {
	opts := buildSessionOptions(v, ttl, rdb)
	if rdb == nil {
		return store.NewInMemorySessionStore(opts...), nil
	}
	return store.NewRedisSessionStore(opts...)
}

// buildBot assembles the engine and bot for one vertical.
func buildBot(v *flow.Vertical, sessions store.SessionStore, flags Flags, lookup flow.StatusLookup,
	sender messaging.Sender, pipeline *effects.Pipeline, m *metrics.Metrics) (*conversation.Bot, error) {
	engine, err := flow.NewEngine(v, flow.WithLookup(lookup), flow.WithStrictValidation(flags.strict))
	if err != nil {
		return nil, fmt.Errorf("build %s engine: %w", v.Name, err)
	}
	bot := conversation.NewBot(engine, sessions,
		conversation.WithSender(sender),
		conversation.WithEffects(pipeline),
		conversation.WithMetrics(m),
	)
	slog.Info("buildBot: vertical ready", "vertical", v.Name, "stages", len(v.Stages), "sessions", fmt.Sprintf("%T", sessions))
	return bot, nil
}

// buildScheduler registers the maintenance jobs.
func buildScheduler(config Config, sweepers []scheduler.Sweeper, pruner scheduler.Pruner) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler()
	if len(sweepers) > 0 {
		if err := sched.AddJob(config.SessionSweepSpec, "session-sweep", scheduler.SweepJob(sweepers...)); err != nil {
			return nil, fmt.Errorf("schedule session sweep: %w", err)
		}
	}
	if pruner != nil && config.DedupRetention > 0 {
		job := scheduler.PruneJob(pruner, config.DedupRetention, DefaultShutdownTimeout)
		if err := sched.AddJob(config.DedupPruneSpec, "dedup-prune", job); err != nil {
			return nil, fmt.Errorf("schedule dedup prune: %w", err)
		}
	}
	return sched, nil
}

func buildServerOptions(flags Flags, banner string, leads api.LeadLister, tr transport, reg *prometheus.Registry) []api.Option {
	opts := []api.Option{
		api.WithAddr(flags.apiAddr),
		api.WithVerifyToken(flags.config.VerifyToken),
		api.WithDefaultVertical(flags.vertical),
		api.WithBanner(banner),
		api.WithLeadLister(leads),
		api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
	}
	if tr.twilioWebhook != nil {
		opts = append(opts, api.WithTwilioWebhook(tr.twilioWebhook))
	}
	return opts
}
