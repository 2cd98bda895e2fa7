// Command replyd runs the SMS auto-responder daemon: it polls a transport
// for inbound messages, generates replies through the LLM/rules/fallback
// pipeline, and sends them back out, with rate limiting and guardrails in
// between.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/theory-cloud/replytheory/pkg/config"
	"github.com/theory-cloud/replytheory/pkg/events"
	"github.com/theory-cloud/replytheory/pkg/guardrail"
	"github.com/theory-cloud/replytheory/pkg/limited"
	"github.com/theory-cloud/replytheory/pkg/llm"
	"github.com/theory-cloud/replytheory/pkg/metrics"
	"github.com/theory-cloud/replytheory/pkg/observability"
	obszap "github.com/theory-cloud/replytheory/pkg/observability/zap"
	"github.com/theory-cloud/replytheory/pkg/relay"
	"github.com/theory-cloud/replytheory/pkg/responder"
	"github.com/theory-cloud/replytheory/pkg/rules"
	"github.com/theory-cloud/replytheory/pkg/sanitization"
	"github.com/theory-cloud/replytheory/pkg/store"
	"github.com/theory-cloud/replytheory/pkg/transport"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var validateOnly bool

	flag.StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
	flag.BoolVar(&validateOnly, "validate", false, "validate the configuration and exit")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replyd: %v\n", err)
		return 2
	}
	if validateOnly {
		fmt.Println("replyd: configuration OK")
		return 0
	}

	logger, err := obszap.NewZapLogger(observability.LoggerConfig{
		Format: cfg.Observability.LogFormat,
		Level:  cfg.Observability.LogLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "replyd: logger: %v\n", err)
		return 2
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon failed", map[string]any{"error": err.Error()})
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg config.Config, logger observability.StructuredLogger) error {
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	validator, err := guardrail.NewValidator(cfg.Guardrail.ToGuardrailConfig(),
		guardrail.WithScanner(sanitization.NewDetector()),
		guardrail.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("guardrail: %w", err)
	}

	engine := rules.NewEngine(rules.NewFileStore(cfg.Store.RulesPath),
		rules.WithLogger(logger))

	limiter, err := limited.New(cfg.RateLimit.ToLimiterConfig())
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	responderOpts := []responder.Option{
		responder.WithEngine(engine),
		responder.WithStore(db),
		responder.WithLogger(logger),
	}
	if cfg.SMS.AIMode {
		provider, err := llm.NewRegistry().Create(cfg.LLM.ToLLMConfig())
		if err != nil {
			return fmt.Errorf("llm provider: %w", err)
		}
		responderOpts = append(responderOpts, responder.WithProvider(provider))
		logger.Info("llm provider ready", map[string]any{
			"provider": provider.Name(),
			"model":    cfg.LLM.Model,
		})
	}
	orchestrator, err := responder.New(cfg.ToResponderConfig(), validator, responderOpts...)
	if err != nil {
		return fmt.Errorf("responder: %w", err)
	}

	sender, receiver, err := buildTransport(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	bus := events.NewMemoryBus()
	defer bus.Close()
	if cfg.Events.WebhookURL != "" {
		notifier, err := events.NewWebhookNotifier(cfg.Events.WebhookURL,
			time.Duration(cfg.Events.WebhookTimeoutSeconds)*time.Second, logger)
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
		if err := notifier.Attach(bus, cfg.Events.WebhookEventTypes...); err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
	}

	pipelineMetrics := metrics.New()
	if addr := cfg.Observability.MetricsAddr; addr != "" {
		go serveMetrics(ctx, addr, pipelineMetrics, logger)
	}

	go maintain(ctx, cfg, db, limiter, logger)

	r := relay.New(relay.Config{
		PollInterval:   time.Duration(cfg.SMS.PollIntervalSeconds) * time.Second,
		AutoReply:      cfg.SMS.AutoReply,
		AllowedNumbers: cfg.SMS.AllowedNumbers,
		IgnoredNumbers: cfg.SMS.IgnoredNumbers,
		ProviderName:   cfg.LLM.Provider,
	}, receiver, sender, orchestrator, limiter, db,
		relay.WithBus(bus),
		relay.WithMetrics(pipelineMetrics),
		relay.WithLogger(logger))

	return r.Run(ctx)
}

func buildTransport(ctx context.Context, cfg config.Config, logger observability.StructuredLogger) (transport.Sender, transport.Receiver, error) {
	switch cfg.Transport.Mode {
	case "termux":
		bridge := transport.NewTermuxBridge(cfg.Transport.ToTermuxConfig(),
			transport.WithTermuxLogger(logger))
		if !bridge.Available(ctx) {
			logger.Warn("termux API not responding yet")
		}
		return bridge, bridge, nil
	case "aws":
		snsOpts := []transport.SNSOption{transport.WithSNSLogger(logger)}
		if cfg.Transport.SNSSenderID != "" {
			snsOpts = append(snsOpts, transport.WithSenderID(cfg.Transport.SNSSenderID))
		}
		sender, err := transport.NewSNSSender(ctx, cfg.Transport.AWSRegion, snsOpts...)
		if err != nil {
			return nil, nil, err
		}
		receiver, err := transport.NewSQSReceiver(ctx, cfg.Transport.AWSRegion, cfg.Transport.SQSQueueURL,
			transport.WithSQSLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return sender, receiver, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport mode %q", cfg.Transport.Mode)
	}
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger observability.StructuredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", map[string]any{"addr": addr})
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", map[string]any{"error": err.Error()})
	}
}

// maintain runs the hourly housekeeping: prune old messages when retention is
// configured and drop idle rate-limiter state.
func maintain(ctx context.Context, cfg config.Config, db *store.Store, limiter *limited.RateLimiter, logger observability.StructuredLogger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		removed := limiter.CleanupOldRecipients(48 * time.Hour)
		if removed > 0 {
			logger.Debug("limiter state pruned", map[string]any{"recipients": removed})
		}

		if cfg.Store.RetentionDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -cfg.Store.RetentionDays)
			pruned, err := db.PruneMessages(ctx, cutoff)
			if err != nil {
				logger.Warn("message prune failed", map[string]any{"error": err.Error()})
			} else if pruned > 0 {
				logger.Info("messages pruned", map[string]any{"count": pruned})
			}
		}
	}
}
