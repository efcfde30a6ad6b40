package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalix/reverseotp/internal/auth"
	"github.com/signalix/reverseotp/internal/clock"
	"github.com/signalix/reverseotp/internal/config"
	"github.com/signalix/reverseotp/internal/db"
	httphandler "github.com/signalix/reverseotp/internal/http"
	"github.com/signalix/reverseotp/internal/http/handlers"
	"github.com/signalix/reverseotp/internal/logging"
	"github.com/signalix/reverseotp/internal/repo"
	"github.com/signalix/reverseotp/internal/schedule"
	"github.com/signalix/reverseotp/internal/whatsapp"
)

func main() {
	// Load .env from CWD if present (env vars override)
	_ = godotenv.Load(".env")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the reverse OTP HTTP server",
		RunE:  func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context()) },
	}
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply audit log migrations to DATABASE_URL",
		RunE:  func(cmd *cobra.Command, _ []string) error { return migrate(cmd.Context()) },
	}
	rootCmd := &cobra.Command{
		Use:           "reverse-otp",
		Short:         "WhatsApp reverse OTP login service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCmd.RunE,
	}
	rootCmd.AddCommand(serveCmd, migrateCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "reverse-otp:", err)
		stop()
		os.Exit(1)
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.DevMode)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func migrate(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}
	database, err := db.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

func serve(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// The audit log is optional; pending requests always live in memory.
	audit := repo.NewNopAuditRepo()
	if cfg.DatabaseURL != "" {
		database, err := db.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := db.Migrate(database); err != nil {
			return err
		}
		audit = repo.NewAuditRepo(database)
		logger.Info("verification audit log enabled")
	}

	clk := clock.New()
	pending := repo.NewPendingRepo()

	transport := whatsapp.NewClient(whatsapp.Config{
		AccessToken:   cfg.WhatsApp.AccessToken,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		VerifyToken:   cfg.WhatsApp.VerifyToken,
		APIURL:        cfg.WhatsApp.APIURL,
		APIVersion:    cfg.WhatsApp.APIVersion,
		MaxRetries:    cfg.WhatsApp.MaxRetries,
		Timeout:       cfg.WhatsApp.Timeout,
	}, nil, logger.Named("whatsapp"))

	issuer := auth.NewIssuer(cfg.CredentialSecret, cfg.CredentialIssuer, cfg.CredentialTTL, clk)
	service := auth.NewService(pending, cfg.RequestTTL, logger.Named("requests"))
	verifier := auth.NewVerifier(pending, issuer, transport, audit, auth.VerifierOptions{
		LoginBaseURL:       cfg.LoginBaseURL,
		EnforceSenderMatch: cfg.EnforceSenderMatch,
	}, logger.Named("verifier"))
	if !cfg.EnforceSenderMatch {
		logger.Warn("sender match disabled: any phone relaying a valid code can complete a login")
	}

	sweeper := schedule.NewSweeper(pending, clk, logger)
	if err := sweeper.Start(cfg.SweepSchedule); err != nil {
		return err
	}
	defer sweeper.Stop()

	router := httphandler.NewRouter(httphandler.Handlers{
		OTP:     handlers.NewOTPHandler(service, transport, clk, logger.Named("api")),
		Webhook: handlers.NewWebhookHandler(verifier, transport, clk, cfg.WebhookTimeout, logger.Named("webhook")),
		Health:  handlers.NewHealthHandler(transport),
	}, issuer, logger.Named("http"))

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Webhook deliveries are bounded by WebhookTimeout, replies included.
		WriteTimeout: cfg.WebhookTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}
