package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/nats-io/nats.go"

	"alertcenter/internal/channel"
	"alertcenter/internal/clock"
	"alertcenter/internal/config"
	"alertcenter/internal/domain"
	"alertcenter/internal/logging"
	"alertcenter/internal/store"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable alert delivery service.
type Service struct {
	source       config.ConfigSource
	cfg          config.Config
	logger       *slog.Logger
	closeLog     func()
	store        store.Store
	registry     *channel.Registry
	inApp        *channel.InApp
	orchestrator *Orchestrator
	scheduler    *Scheduler
	httpSrv      *http.Server
	readyFlag    atomic.Bool
	clock        clock.Clock
}

// NewService builds service instance from config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	st, err := buildStore(cfg)
	if err != nil {
		closeLog()
		return nil, err
	}

	service := &Service{
		source:   source,
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		store:    st,
		clock:    clk,
	}

	service.buildChannels()
	service.buildOrchestrator()
	service.buildHTTPServer()

	if err := service.seedRecipients(context.Background()); err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	return service, nil
}

// buildStore selects the persistence backend for the configured mode.
// Params: validated config.
// Returns: store implementation or backend setup error.
func buildStore(cfg config.Config) (store.Store, error) {
	switch config.NormalizeServiceMode(cfg.Service.Mode) {
	case config.ServiceModeSingle:
		return store.NewMemoryStore(), nil
	case config.ServiceModeNATS:
		return store.NewNATSStore(store.NATSStoreConfig{
			URL:                cfg.Store.NATS.URL,
			AlertBucket:        cfg.Store.NATS.AlertBucket,
			RecipientBucket:    cfg.Store.NATS.RecipientBucket,
			PreferenceBucket:   cfg.Store.NATS.PreferenceBucket,
			DeliveryBucket:     cfg.Store.NATS.DeliveryBucket,
			AllowCreateBuckets: cfg.Store.NATS.AllowCreateBuckets,
		})
	default:
		return nil, fmt.Errorf("service.mode %q is not supported", cfg.Service.Mode)
	}
}

// buildChannels registers the delivery channel set in fixed order.
// Params: none.
// Returns: nothing; registration order defines fan-out order.
func (s *Service) buildChannels() {
	s.inApp = channel.NewInApp(s.cfg.Channel.InApp, s.mirrorConn(), s.logger)
	s.registry = channel.NewRegistry(
		s.inApp,
		channel.NewEmail(s.cfg.Channel.Email, s.logger),
		channel.NewSMS(s.cfg.Channel.SMS, s.logger),
		channel.NewTelegram(s.cfg.Channel.Telegram),
	)
}

// mirrorConn returns the NATS connection for the in-app feed mirror.
// Params: none.
// Returns: live connection in nats mode, nil in single mode.
func (s *Service) mirrorConn() *nats.Conn {
	if natsStore, ok := s.store.(*store.NATSStore); ok {
		return natsStore.Conn()
	}
	return nil
}

// buildOrchestrator wires the orchestrator and reminder scheduler.
// Params: none.
// Returns: nothing.
func (s *Service) buildOrchestrator() {
	s.orchestrator = NewOrchestrator(s.store, s.registry, s.clock, OrchestratorOptions{
		ReminderInterval: s.cfg.Service.ReminderInterval(),
		DefaultSnooze:    time.Duration(s.cfg.Service.DefaultSnoozeHours) * time.Hour,
		MaxSnooze:        time.Duration(s.cfg.Service.MaxSnoozeHours) * time.Hour,
	}, s.logger)
	s.scheduler = NewScheduler(s.orchestrator, s.cfg.Service.ReminderInterval(), s.logger)
}

// buildHTTPServer wires the admin mux with probes, metrics, and the API.
// Params: none.
// Returns: nothing.
func (s *Service) buildHTTPServer() {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.HTTP.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.HTTP.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})
	mux.HandleFunc(s.cfg.HTTP.MetricsPath, func(writer http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(writer, true)
	})

	api := NewAPIHandler(s.store, s.orchestrator, s.scheduler, s.inApp, s.clock, s.logger, s.cfg.HTTP.MaxBodyBytes)
	api.Register(mux)

	s.httpSrv = &http.Server{
		Addr:              s.cfg.HTTP.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// seedRecipients loads the configured recipient directory into the store.
// Params: startup context.
// Returns: store write error.
func (s *Service) seedRecipients(ctx context.Context) error {
	for _, seed := range s.cfg.Recipient {
		recipient := domain.Recipient{
			ID:             seed.ID,
			TeamID:         seed.Team,
			Role:           seed.Role,
			Email:          seed.Email,
			Phone:          seed.Phone,
			TelegramChatID: seed.TelegramChatID,
		}
		if err := s.store.PutRecipient(ctx, recipient); err != nil {
			return fmt.Errorf("seed recipient %q: %w", seed.ID, err)
		}
	}
	if len(s.cfg.Recipient) > 0 {
		s.logger.Info("recipient directory seeded", "count", len(s.cfg.Recipient))
	}
	return nil
}

// Run starts service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	shutdownCtx, shutdownCancel := context.WithCancel(ctx)
	defer shutdownCancel()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.HTTP.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if !s.cfg.Service.SchedulerDisabled {
		s.scheduler.Start(shutdownCtx)
	}

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
		return s.shutdown()
	}
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.scheduler.Stop()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", "error", err.Error())
		markErr(fmt.Errorf("store close: %w", err))
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}
