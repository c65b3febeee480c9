package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/effects"
	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/scheduler"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir holds the lead database, the whatsmeow device store and the lock file
	DefaultStateDir = "/var/lib/leadpipe"
	// DefaultLeadDBFileName is the SQLite lead database filename
	DefaultLeadDBFileName = "leadpipe.db"
	// DefaultWhatsAppDBFileName is the whatsmeow device store filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultAPIAddr matches the port the webhook has always been served on
	DefaultAPIAddr = ":3000"
	// DefaultShutdownTimeout bounds graceful shutdown
	DefaultShutdownTimeout = 20 * time.Second
	// DefaultDedupRetention is how long inbound message IDs are kept for redelivery checks
	DefaultDedupRetention = 7 * 24 * time.Hour
)

// Messaging providers.
const (
	ProviderCloud     = "cloud"
	ProviderTwilio    = "twilio"
	ProviderWhatsmeow = "whatsmeow"
	ProviderLog       = "log"
)

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.LogLevel)

	flags := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping LeadPipe", "default_vertical", flags.vertical, "verticals", flags.verticals,
		"provider", flags.provider, "api_addr", flags.apiAddr, "state_dir", flags.stateDir)
	if err := run(ctx, flags); err != nil {
		slog.Error("LeadPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("LeadPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	LogLevel         string
	APIAddr          string
	StateDir         string
	LeadDBDSN        string
	WhatsAppDBDSN    string
	Vertical         string
	Verticals        string
	Provider         string
	VerifyToken      string
	WhatsAppToken    string
	PhoneNumberID    string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	RedisAddr        string
	RedisPassword    string
	SessionTTL       time.Duration
	SheetsURL        string
	EmailWebhookURL  string
	SendGridAPIKey   string
	SendGridFrom     string
	NotifyEmailTo    string
	APIBaseURLs      map[string]string
	EffectTimeout    time.Duration
	Shards           int
	StrictValidation bool
	Assets           flow.Assets
	SessionSweepSpec string
	DedupPruneSpec   string
	DedupRetention   time.Duration
}

// Flags holds the resolved settings after command line overrides.
type Flags struct {
	qrOutput      string
	numeric       bool
	stateDir      string
	leadDSN       string
	whatsappDSN   string
	apiAddr       string
	vertical      string
	verticals     []string
	provider      string
	strict        bool
	sessionTTL    time.Duration
	effectTimeout time.Duration
	shards        int
	config        Config
}

// initializeLogger sets up the default slog logger.
func initializeLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

// loadEnvironmentConfig reads .env (when present) and the environment.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("loadEnvironmentConfig: no .env file loaded", "error", err)
	}

	config := Config{
		LogLevel:         util.GetEnv("LOG_LEVEL", "INFO"),
		APIAddr:          os.Getenv("API_ADDR"),
		StateDir:         util.GetEnv("LEADPIPE_STATE_DIR", DefaultStateDir),
		LeadDBDSN:        util.GetEnv("DATABASE_DSN", os.Getenv("DATABASE_URL")),
		WhatsAppDBDSN:    os.Getenv("WHATSMEOW_DB_DSN"),
		Vertical:         util.GetEnv("BOT_VERTICAL", flow.VerticalAgency),
		Verticals:        os.Getenv("BOT_VERTICALS"),
		Provider:         strings.ToLower(os.Getenv("MESSAGING_PROVIDER")),
		VerifyToken:      os.Getenv("WEBHOOK_VERIFY_TOKEN"),
		WhatsAppToken:    os.Getenv("WHATSAPP_TOKEN"),
		PhoneNumberID:    os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		SessionTTL:       util.ParseDurationEnv("SESSION_TTL", store.DefaultSessionTTL),
		SheetsURL:        os.Getenv("SHEETS_WEBHOOK_URL"),
		EmailWebhookURL:  os.Getenv("EMAIL_WEBHOOK_URL"),
		SendGridAPIKey:   os.Getenv("SENDGRID_API_KEY"),
		SendGridFrom:     os.Getenv("SENDGRID_FROM_EMAIL"),
		NotifyEmailTo:    os.Getenv("NOTIFY_EMAIL_TO"),
		APIBaseURLs: map[string]string{
			models.ResourceAppointments: os.Getenv("API_BASE_URL_CLINIC"),
			models.ResourceTracking:     os.Getenv("API_BASE_URL_COURIER"),
			models.ResourceLeads:        os.Getenv("API_BASE_URL_INMO"),
			models.ResourceOrders:       os.Getenv("API_BASE_URL_RESTAURANT"),
		},
		EffectTimeout:    util.ParseDurationEnv("SIDE_EFFECT_TIMEOUT", effects.DefaultTaskTimeout),
		Shards:           util.ParseIntEnv("ROUTER_SHARDS", 8),
		StrictValidation: util.ParseBoolEnv("STRICT_VALIDATION", false),
		SessionSweepSpec: util.GetEnv("SESSION_SWEEP_SCHEDULE", scheduler.DefaultSessionSweepSpec),
		DedupPruneSpec:   util.GetEnv("DEDUP_PRUNE_SCHEDULE", scheduler.DefaultDedupPruneSpec),
		DedupRetention:   util.ParseDurationEnv("DEDUP_RETENTION", DefaultDedupRetention),
		Assets: flow.Assets{
			CatalogURL:          os.Getenv("CATALOG_URL"),
			BrochureURL:         os.Getenv("BROCHURE_URL"),
			ProjectsBrochureURL: os.Getenv("PROJECTS_BROCHURE_URL"),
			MenuURL:             os.Getenv("MENU_URL"),
			MenuImageURL:        os.Getenv("MENU_IMAGE_URL"),
		},
	}
	if config.APIAddr == "" {
		config.APIAddr = DefaultAPIAddr
		if port := os.Getenv("PORT"); port != "" {
			config.APIAddr = ":" + port
		}
	}
	if config.Provider == "" {
		config.Provider = ProviderLog
		if config.WhatsAppToken != "" {
			config.Provider = ProviderCloud
		}
	}

	slog.Debug("loadEnvironmentConfig: environment loaded",
		"state_dir", config.StateDir,
		"lead_dsn_set", config.LeadDBDSN != "",
		"vertical", config.Vertical,
		"provider", config.Provider,
		"verify_token_set", config.VerifyToken != "",
		"redis_set", config.RedisAddr != "",
		"sheets_set", config.SheetsURL != "",
		"sendgrid_set", config.SendGridAPIKey != "")
	return config
}

// parseCommandLineFlags parses args on fs with environment defaults.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) Flags {
	qrOutput := fs.String("qr-output", "", "path to write the whatsmeow login QR code")
	numeric := fs.Bool("numeric-code", false, "print the whatsmeow login code instead of a QR block")
	stateDir := fs.String("state-dir", config.StateDir, "state directory (overrides $LEADPIPE_STATE_DIR)")
	leadDSN := fs.String("db-dsn", config.LeadDBDSN, "lead database DSN, postgres or sqlite path (overrides $DATABASE_DSN / $DATABASE_URL)")
	waDSN := fs.String("whatsmeow-dsn", config.WhatsAppDBDSN, "whatsmeow device store DSN (overrides $WHATSMEOW_DB_DSN)")
	apiAddr := fs.String("api-addr", config.APIAddr, "HTTP listen address (overrides $API_ADDR / $PORT)")
	vertical := fs.String("vertical", config.Vertical, "default vertical: "+strings.Join(flow.Names(), ", ")+" (overrides $BOT_VERTICAL)")
	verticals := fs.String("verticals", config.Verticals, "comma separated verticals to serve under /webhook/{vertical}; \"all\" for every one (overrides $BOT_VERTICALS)")
	provider := fs.String("provider", config.Provider, "messaging provider: cloud, twilio, whatsmeow or log (overrides $MESSAGING_PROVIDER)")
	strict := fs.Bool("strict-validation", config.StrictValidation, "require an email or phone number at contact prompts (overrides $STRICT_VALIDATION)")
	sessionTTL := fs.Duration("session-ttl", config.SessionTTL, "idle session lifetime (overrides $SESSION_TTL)")
	effectTimeout := fs.Duration("effect-timeout", config.EffectTimeout, "per side-effect deadline (overrides $SIDE_EFFECT_TIMEOUT)")
	shards := fs.Int("shards", config.Shards, "conversation worker count (overrides $ROUTER_SHARDS)")

	if err := fs.Parse(args); err != nil {
		slog.Warn("parseCommandLineFlags: parse failed", "error", err)
	}

	flags := Flags{
		qrOutput:      *qrOutput,
		numeric:       *numeric,
		stateDir:      *stateDir,
		leadDSN:       *leadDSN,
		whatsappDSN:   *waDSN,
		apiAddr:       *apiAddr,
		vertical:      *vertical,
		verticals:     parseVerticals(*verticals, *vertical),
		provider:      strings.ToLower(*provider),
		strict:        *strict,
		sessionTTL:    *sessionTTL,
		effectTimeout: *effectTimeout,
		shards:        *shards,
		config:        config,
	}
	if flags.leadDSN == "" {
		flags.leadDSN = filepath.Join(flags.stateDir, DefaultLeadDBFileName)
	}
	if flags.whatsappDSN == "" {
		flags.whatsappDSN = "file:" + filepath.Join(flags.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	slog.Debug("parseCommandLineFlags: flags parsed", "state_dir", flags.stateDir, "lead_dsn_type", store.DetectDSNType(flags.leadDSN),
		"vertical", flags.vertical, "verticals", flags.verticals, "provider", flags.provider, "strict", flags.strict)
	return flags
}

// parseVerticals turns a comma list into vertical names, always including the default.
func parseVerticals(list, def string) []string {
	if strings.EqualFold(strings.TrimSpace(list), "all") {
		return flow.Names()
	}
	out := []string{def}
	seen := map[string]bool{def: true}
	for _, name := range strings.Split(list, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
