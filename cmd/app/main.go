package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketbot/internal/ai"
	"marketbot/internal/broadcast"
	"marketbot/internal/cache"
	"marketbot/internal/config"
	"marketbot/internal/engine"
	"marketbot/internal/httpserver"
	"marketbot/internal/logging"
	"marketbot/internal/metrics"
	"marketbot/internal/repo"
	"marketbot/internal/rewardjobs"
	"marketbot/internal/wa"
	"marketbot/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting marketbot", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	repository, err := repo.New(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed", "error", err)
	}

	aiClient := ai.New(ai.Config{
		BaseURL: cfg.AIBaseURL,
		APIKey:  cfg.AIAPIKey,
		Model:   cfg.AIModel,
		Timeout: cfg.AITimeout,
	}, logger, metricRegistry)

	waClient, err := wa.New(ctx, wa.Config{
		StorePath: cfg.WhatsAppStorePath,
		LogLevel:  cfg.WhatsAppLogLevel,
		MediaDir:  cfg.MediaDir,
		Metrics:   metricRegistry,
	}, logger)
	if err != nil {
		return fmt.Errorf("init whatsapp client: %w", err)
	}
	defer waClient.Close()

	gateway := &waGateway{client: waClient}
	bot := engine.New(repository, gateway, aiClient, redisClient, engine.Config{
		CommunityCode:     cfg.CommunityCode,
		PaymentLink:       cfg.PaymentLink,
		BotPhone:          cfg.BotPhone,
		LinkInstagram:     cfg.LinkInstagram,
		LinkTikTok:        cfg.LinkTikTok,
		LinkFacebook:      cfg.LinkFacebook,
		LinkVendorGroup:   cfg.LinkVendorGroup,
		LinkCustomerGroup: cfg.LinkCustomerGroup,
		SupportEmail:      cfg.SupportEmail,
		SupportPhone:      cfg.SupportPhone,
	}, logger, metricRegistry)
	waClient.SetEventProcessor(&eventRouter{engine: bot})

	dispatcher := broadcast.New(repository, gateway, logger, metricRegistry)

	jobs, err := rewardjobs.New(repository, logger)
	if err != nil {
		return fmt.Errorf("init reward jobs: %w", err)
	}
	jobs.Start()
	defer jobs.Stop()

	waCtx, waCancel := context.WithCancel(ctx)
	defer waCancel()
	go func() {
		if err := waClient.Start(waCtx); err != nil {
			logger.Error("whatsapp client stopped", "error", err)
			stop()
		}
	}()

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Dependencies{
		Store:      repository,
		Dispatcher: dispatcher,
		Gateway:    gateway,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}

// waGateway adapts the WhatsApp client to the engine's Gateway interface.
type waGateway struct {
	client *wa.Client
}

func (g *waGateway) SendText(ctx context.Context, to, body string) error {
	return g.client.SendText(ctx, to, body)
}

func (g *waGateway) SendButtons(ctx context.Context, to, body string, buttons []engine.Button) error {
	converted := make([]wa.Button, 0, len(buttons))
	for _, b := range buttons {
		converted = append(converted, wa.Button{ID: b.ID, Label: b.Label})
	}
	return g.client.SendButtons(ctx, to, body, converted)
}

func (g *waGateway) SendList(ctx context.Context, to, body, action string, sections []engine.ListSection) error {
	converted := make([]wa.ListSection, 0, len(sections))
	for _, s := range sections {
		rows := make([]wa.ListRow, 0, len(s.Rows))
		for _, r := range s.Rows {
			rows = append(rows, wa.ListRow{ID: r.ID, Title: r.Title, Description: r.Description})
		}
		converted = append(converted, wa.ListSection{Title: s.Title, Rows: rows})
	}
	return g.client.SendList(ctx, to, body, action, converted)
}

func (g *waGateway) SendImage(ctx context.Context, to, mediaRef, caption string) error {
	return g.client.SendImage(ctx, to, mediaRef, caption)
}

func (g *waGateway) SendVideo(ctx context.Context, to, mediaRef, caption string) error {
	return g.client.SendVideo(ctx, to, mediaRef, caption)
}

// eventRouter feeds normalized inbound events into the conversation engine.
type eventRouter struct {
	engine *engine.Engine
}

func (r *eventRouter) ProcessEvent(ctx context.Context, evt wa.Event) {
	switch evt.Kind {
	case wa.EventText:
		r.engine.HandleText(ctx, evt.Phone, evt.Text)
	case wa.EventButton:
		r.engine.HandleButton(ctx, evt.Phone, evt.ButtonID)
	case wa.EventMedia:
		r.engine.HandleMedia(ctx, evt.Phone, evt.MediaRef, evt.MediaMIME, evt.Caption)
	}
}
