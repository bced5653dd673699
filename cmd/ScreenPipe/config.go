package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ScreenPipe state data
	DefaultStateDir = "/var/lib/screenpipe"
	// DefaultAppDBFileName is the application SQLite database filename
	DefaultAppDBFileName = "screenpipe.db"
	// DefaultWhatsAppDBFileName is the whatsmeow session database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

// Transports accepted by TRANSPORT.
const (
	TransportNone     = "none"
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
)

// AI providers accepted by AI_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds environment configuration. Flags override a subset of it.
type Config struct {
	StateDir string `envconfig:"SCREENPIPE_STATE_DIR" default:"/var/lib/screenpipe"`
	LogLevel string `envconfig:"SCREENPIPE_LOG_LEVEL" default:"debug"`

	DatabaseURL   string `envconfig:"DATABASE_URL"`
	WhatsAppDBDSN string `envconfig:"WHATSAPP_DB_DSN"`
	RedisURL      string `envconfig:"REDIS_URL"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"screenpipe"`

	FlowFile string `envconfig:"FLOW_FILE"`
	FAQFile  string `envconfig:"FAQ_FILE"`

	APIAddr       string        `envconfig:"API_ADDR" default:":8080"`
	Transport     string        `envconfig:"TRANSPORT" default:"none"`
	AdminNumber   string        `envconfig:"ADMIN_NUMBER"`
	OutreachDelay time.Duration `envconfig:"OUTREACH_DELAY" default:"1s"`

	AIProvider        string        `envconfig:"AI_PROVIDER" default:"openai"`
	AIModel           string        `envconfig:"AI_MODEL"`
	AIFallbackEnabled bool          `envconfig:"AI_FALLBACK_ENABLED"`
	AITimeout         time.Duration `envconfig:"AI_TIMEOUT" default:"10s"`
	AIDebug           bool          `envconfig:"AI_DEBUG"`
	OpenAIKey         string        `envconfig:"OPENAI_API_KEY"`
	GeminiKey         string        `envconfig:"GEMINI_API_KEY"`

	TwilioAccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFrom       string `envconfig:"TWILIO_WHATSAPP_FROM"`

	// unset thresholds keep models.DefaultCriteria
	MinExperience   *float64 `envconfig:"CRITERIA_MIN_EXPERIENCE"`
	MinCTC          *float64 `envconfig:"CRITERIA_MIN_CTC"`
	MaxCTC          *float64 `envconfig:"CRITERIA_MAX_CTC"`
	MaxNoticeDays   *float64 `envconfig:"CRITERIA_MAX_NOTICE_DAYS"`
	MinIncentive    *float64 `envconfig:"CRITERIA_MIN_INCENTIVE"`
	AllowedProducts []string `envconfig:"CRITERIA_ALLOWED_PRODUCTS"`
}

// Flags holds command line values that are not configuration overrides.
type Flags struct {
	qrOutput string
	numeric  bool
	validate bool
}

// initializeLogger installs a text handler on stdout at the given level.
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

// parseLogLevel falls back to debug for unknown names.
func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelDebug
	}
	return l
}

// loadEnvironmentConfig loads .env (when present) and parses the environment.
func loadEnvironmentConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// parseCommandLineFlags applies flag overrides onto cfg.
func parseCommandLineFlags(cfg *Config, args []string) (Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("screenpipe", flag.ContinueOnError)
	fs.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory for ScreenPipe data (overrides $SCREENPIPE_STATE_DIR)")
	fs.StringVar(&cfg.DatabaseURL, "db-dsn", cfg.DatabaseURL, "application database DSN (overrides $DATABASE_URL)")
	fs.StringVar(&cfg.WhatsAppDBDSN, "whatsapp-db-dsn", cfg.WhatsAppDBDSN, "whatsmeow session database DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL for conversation state (overrides $REDIS_URL)")
	fs.StringVar(&cfg.FlowFile, "flow-file", cfg.FlowFile, "interview flow CSV (overrides $FLOW_FILE)")
	fs.StringVar(&cfg.FAQFile, "faq-file", cfg.FAQFile, "FAQ CSV (overrides $FAQ_FILE)")
	fs.StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "messaging transport: none, whatsapp or twilio (overrides $TRANSPORT)")
	fs.StringVar(&cfg.AdminNumber, "admin-number", cfg.AdminNumber, "number notified about candidates and errors (overrides $ADMIN_NUMBER)")
	fs.StringVar(&flags.qrOutput, "qr-output", "", "path to write login QR code")
	fs.BoolVar(&flags.numeric, "numeric-code", false, "use numeric login code instead of QR code")
	fs.BoolVar(&flags.validate, "validate", false, "load and validate the flow, FAQ and criteria, then exit")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	cfg.AIProvider = strings.ToLower(strings.TrimSpace(cfg.AIProvider))

	slog.Debug("flags parsed",
		"stateDir", cfg.StateDir,
		"dbDSN_set", cfg.DatabaseURL != "",
		"redis_set", cfg.RedisURL != "",
		"transport", cfg.Transport,
		"apiAddr", cfg.APIAddr,
		"validate", flags.validate)
	return flags, nil
}

// appDSN is DATABASE_URL or a SQLite file in the state directory.
func (c Config) appDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.StateDir, DefaultAppDBFileName)
}

// whatsAppDSN is WHATSAPP_DB_DSN or a SQLite file with foreign keys on.
func (c Config) whatsAppDSN() string {
	if c.WhatsAppDBDSN != "" {
		return c.WhatsAppDBDSN
	}
	return "file:" + filepath.Join(c.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// criteria overlays the CRITERIA_* values on the defaults.
func (c Config) criteria() models.QualificationCriteria {
	crit := models.DefaultCriteria()
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&crit.MinExperience, c.MinExperience)
	set(&crit.MinCTC, c.MinCTC)
	set(&crit.MaxCTC, c.MaxCTC)
	set(&crit.MaxNoticeDays, c.MaxNoticeDays)
	set(&crit.MinIncentive, c.MinIncentive)
	if len(c.AllowedProducts) > 0 {
		products := make([]string, 0, len(c.AllowedProducts))
		for _, p := range c.AllowedProducts {
			if p = strings.TrimSpace(p); p != "" {
				products = append(products, p)
			}
		}
		crit.AllowedProducts = products
	}
	return crit
}

// check rejects values no component can act on.
func (c Config) check() error {
	switch c.Transport {
	case TransportNone, TransportWhatsApp, TransportTwilio:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	switch c.AIProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown AI provider %q", c.AIProvider)
	}
	if c.StateDir == "" {
		return fmt.Errorf("state directory not set")
	}
	return nil
}
