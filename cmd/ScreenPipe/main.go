// Command ScreenPipe runs the candidate screening bot: the HTTP API, the
// interview engine and, when configured, a WhatsApp or Twilio transport.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BTreeMap/ScreenPipe/internal/api"
	"github.com/BTreeMap/ScreenPipe/internal/flow"
	"github.com/BTreeMap/ScreenPipe/internal/flowconfig"
	"github.com/BTreeMap/ScreenPipe/internal/genai"
	"github.com/BTreeMap/ScreenPipe/internal/lockfile"
	"github.com/BTreeMap/ScreenPipe/internal/messaging"
	"github.com/BTreeMap/ScreenPipe/internal/models"
	"github.com/BTreeMap/ScreenPipe/internal/notify"
	"github.com/BTreeMap/ScreenPipe/internal/qualify"
	"github.com/BTreeMap/ScreenPipe/internal/store"
	"github.com/BTreeMap/ScreenPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/ScreenPipe/internal/whatsapp"
)

func main() {
	initializeLogger("debug")

	cfg, err := loadEnvironmentConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(2)
	}
	flags, err := parseCommandLineFlags(&cfg, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	initializeLogger(cfg.LogLevel)
	if err := cfg.check(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}

	if flags.validate {
		if err := validate(cfg); err != nil {
			slog.Error("Validation failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Flow, FAQ and criteria are valid")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping ScreenPipe", "state_dir", cfg.StateDir, "transport", cfg.Transport, "api_addr", cfg.APIAddr)
	if err := run(ctx, cfg, flags); err != nil {
		slog.Error("ScreenPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ScreenPipe exited successfully")
}

// loadScript reads the flow and FAQ files; empty paths use the bundled tables.
func loadScript(cfg Config) (*models.FlowDefinition, models.FAQTable, error) {
	def, err := flowconfig.LoadFlow(cfg.FlowFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load flow: %w", err)
	}
	faq, err := flowconfig.LoadFAQ(cfg.FAQFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load faq: %w", err)
	}
	return def, faq, nil
}

// validate builds an engine over an in-memory store, which checks the flow
// graph and the criteria, and touches nothing on disk.
func validate(cfg Config) error {
	def, faq, err := loadScript(cfg)
	if err != nil {
		return err
	}
	criteria, err := qualify.NewCriteriaStore(cfg.criteria())
	if err != nil {
		return fmt.Errorf("criteria: %w", err)
	}
	_, err = flow.NewEngine(def, store.NewInMemoryStore(), criteria, flow.WithFAQ(faq))
	return err
}

// openStore opens the SQL store and, with REDIS_URL, layers Redis over it.
// The returned RedisStore is nil when Redis is not configured.
func openStore(ctx context.Context, cfg Config) (store.Store, *store.RedisStore, error) {
	dsn := cfg.appDSN()
	slog.Debug("Opening application store", "dsn_type", store.DetectDSNType(dsn))
	durable, err := store.Open(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	if cfg.RedisURL == "" {
		return durable, nil, nil
	}
	hot, err := store.NewRedisStore(ctx, store.WithRedisURL(cfg.RedisURL), store.WithRedisPrefix(cfg.RedisPrefix))
	if err != nil {
		durable.Close()
		return nil, nil, fmt.Errorf("open redis: %w", err)
	}
	return store.NewLayeredStore(durable, hot), hot, nil
}

// buildAssistant returns nil when no key is configured for the provider.
func buildAssistant(ctx context.Context, cfg Config, def *models.FlowDefinition, faq models.FAQTable) (flow.Assistant, error) {
	opts := []genai.Option{
		genai.WithSystemPrompt(genai.BuildSystemPrompt(def, faq)),
		genai.WithModel(cfg.AIModel),
	}
	if cfg.AIDebug {
		opts = append(opts, genai.WithDebug(cfg.StateDir))
	}
	switch cfg.AIProvider {
	case ProviderGemini:
		if cfg.GeminiKey == "" {
			return nil, nil
		}
		return genai.NewGeminiClient(ctx, append(opts, genai.WithAPIKey(cfg.GeminiKey))...)
	default:
		if cfg.OpenAIKey == "" {
			return nil, nil
		}
		return genai.NewClient(append(opts, genai.WithAPIKey(cfg.OpenAIKey))...)
	}
}

// transport is the messaging service plus whatever it needs closed on exit.
type transport struct {
	service messaging.Service
	twilio  *messaging.TwilioService
	close   func()
}

func buildTransport(ctx context.Context, cfg Config, flags Flags) (*transport, error) {
	switch cfg.Transport {
	case TransportWhatsApp:
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(cfg.whatsAppDSN())}
		if flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(flags.qrOutput))
		}
		if flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return nil, fmt.Errorf("whatsapp: %w", err)
		}
		return &transport{service: messaging.NewWhatsAppService(client), close: client.Close}, nil
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(cfg.TwilioAccountSID),
			twiliowhatsapp.WithAuthToken(cfg.TwilioAuthToken),
			twiliowhatsapp.WithFromWhats(cfg.TwilioFrom),
		)
		if err != nil {
			return nil, fmt.Errorf("twilio: %w", err)
		}
		svc := messaging.NewTwilioService(client)
		return &transport{service: svc, twilio: svc, close: func() {}}, nil
	default:
		return &transport{service: messaging.NewLogService(), close: func() {}}, nil
	}
}

// run wires every module and blocks until ctx is cancelled or the server fails.
func run(ctx context.Context, cfg Config, flags Flags) error {
	lock, err := lockfile.Acquire(cfg.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	def, faq, err := loadScript(cfg)
	if err != nil {
		return err
	}
	criteria, err := qualify.NewCriteriaStore(cfg.criteria())
	if err != nil {
		return fmt.Errorf("criteria: %w", err)
	}

	st, redisStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	tr, err := buildTransport(ctx, cfg, flags)
	if err != nil {
		return err
	}
	defer tr.close()

	notifier := notify.NewAdminNotifier(tr.service, cfg.AdminNumber)
	if !notifier.Enabled() {
		slog.Warn("ADMIN_NUMBER not set; admin notifications will only be logged")
	}

	engineOpts := []flow.Option{
		flow.WithFAQ(faq),
		flow.WithCandidateSink(st),
		flow.WithChatLogger(st),
		flow.WithNotificationSink(notifier),
		flow.WithAITimeout(cfg.AITimeout),
	}
	assistant, err := buildAssistant(ctx, cfg, def, faq)
	if err != nil {
		return fmt.Errorf("ai assistant: %w", err)
	}
	if assistant != nil {
		engineOpts = append(engineOpts, flow.WithAssistant(assistant, cfg.AIFallbackEnabled))
	} else if cfg.AIFallbackEnabled {
		slog.Warn("AI_FALLBACK_ENABLED is set but no API key is configured", "provider", cfg.AIProvider)
	}
	if redisStore != nil {
		engineOpts = append(engineOpts, flow.WithLocker(store.NewRedisLocker(redisStore.Client(), redisStore.Prefix(), store.DefaultLockTTL)))
	}
	engine, err := flow.NewEngine(def, st, criteria, engineOpts...)
	if err != nil {
		return err
	}

	if err := tr.service.Start(ctx); err != nil {
		return fmt.Errorf("start messaging: %w", err)
	}
	defer tr.service.Stop()
	handler := messaging.NewResponseHandler(tr.service, engine,
		messaging.WithDedup(st),
		messaging.WithErrorNotifier(notifier),
	)
	handlerCtx, stopHandler := context.WithCancel(ctx)
	handler.Start(handlerCtx)
	defer func() {
		stopHandler()
		handler.Wait()
	}()

	apiOpts := []api.Option{
		api.WithAddr(cfg.APIAddr),
		api.WithMessagingService(tr.service),
		api.WithNotifier(notifier),
		api.WithOutreachDelay(cfg.OutreachDelay),
	}
	if tr.twilio != nil {
		apiOpts = append(apiOpts, api.WithTwilioWebhook(tr.twilio))
	}
	server := api.NewServer(engine, st, criteria, apiOpts...)
	defer server.Close()

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
