package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"jobflow/internal/api"
	"jobflow/internal/command"
	"jobflow/internal/config"
	"jobflow/internal/email"
	"jobflow/internal/engine"
	"jobflow/internal/handlers/demolog"
	"jobflow/internal/handlers/listusers"
	"jobflow/internal/handlers/mailmerge"
	"jobflow/internal/handlers/reporting"
	"jobflow/internal/handlers/sendemail"
	"jobflow/internal/history"
	"jobflow/internal/identity"
	"jobflow/internal/job"
	"jobflow/internal/logging"
	"jobflow/internal/report"
	"jobflow/internal/routing"
	"jobflow/internal/scheduler"
	"jobflow/internal/store"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := logging.NewLogger(cfg)
	log.Logger = logger

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	repo := store.NewSQLiteRepo(db)
	if n, err := repo.RecoverStale(context.Background(), time.Now()); err == nil {
		logger.Info().Int("recovered", n).Msg("failed stale running executions")
	} else {
		logger.Error().Err(err).Msg("recover stale executions")
	}

	if cfg.SeedFile != "" {
		seed, err := store.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("load seed")
		}
		res, err := repo.ImportSeed(context.Background(), seed)
		if err != nil {
			logger.Fatal().Err(err).Msg("import seed")
		}
		logger.Info().
			Int("definitions", res.Definitions).
			Int("users", res.Users).
			Int("contacts", res.Contacts).
			Int("templates", res.Templates).
			Msg("seed imported")
	}

	// Handlers registry
	var sender email.Sender = email.NewLogSender(logger)
	if cfg.MailWebhook != "" {
		sender = email.NewWebhookSender(cfg.MailWebhook, 30*time.Second, logger)
	}
	gen := reporting.NewGenerator(report.ManifestExporter{}, cfg.ReportDir, logger)
	reg := job.NewRegistry()
	job.Register[command.DemoLog](reg, demolog.New(logger))
	job.Register[command.ListUsers](reg, listusers.New(repo, logger))
	job.Register[command.GenerateReport](reg, reporting.NewGenerateHandler(gen, logger))
	job.Register[command.SendEmail](reg, sendemail.New(sender, logger))
	job.Register[command.SendReportEmail](reg, reporting.NewEmailHandler(gen, sender, logger))
	job.Register[command.SendMailMerge](reg, mailmerge.New(repo, sender, logger))
	if missing := reg.Missing(command.RegisteredNames()); len(missing) > 0 {
		logger.Fatal().Strs("commands", missing).Msg("catalog commands without a handler")
	}
	logger.Info().Strs("commands", reg.Names()).Msg("handlers registered")

	policy, err := history.ParseAlertPolicy(cfg.AlertPolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("alert policy")
	}
	rec := history.NewRecorder(repo, history.Options{
		FailureAlertThreshold: cfg.FailureAlertThreshold,
		AlertPolicy:           policy,
	}, logger)
	scope := identity.NewInitializer(repo, cfg.ServiceUser, logger)
	exec := job.NewExecutor(reg, scope, rec, rec, logger)

	var (
		eng       *engine.Engine
		jobEngine job.Engine
		recurring api.RecurringRegistry
	)
	if cfg.UseEngine {
		opts := engine.DefaultOptions()
		opts.Workers = cfg.Workers
		opts.MaxAttempts = cfg.MaxAttempts
		opts.BaseBackoff = cfg.RetryBackoff
		eng = engine.New(opts, logger)
		jobEngine, recurring = eng, eng
	}
	router := routing.NewService(job.NewDispatcher(exec, jobEngine, logger), logger)
	syncer := scheduler.NewService(repo, router, cfg.SyncDelay, logger)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.NewServer(api.Deps{
			Repo:      repo,
			Router:    router,
			Sync:      syncer,
			Recurring: recurring,
			Logger:    logger,
			Debug:     cfg.Debug,
		}),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// Start before serving so early dispatches are not refused.
	if eng != nil {
		eng.Start(ctx)
		g.Go(func() error { return eng.Run(ctx) })
	}
	g.Go(func() error {
		// Sync errors are logged only; POST /api/definitions/sync retries.
		if err := syncer.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("schedule sync failed")
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelTimeout()
		return srv.Shutdown(ctxTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("exited with error")
		os.Exit(1)
	}
}
