package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/live-caption-history/internal/captionfilter"
	"github.com/MimeLyc/live-caption-history/internal/config"
	"github.com/MimeLyc/live-caption-history/internal/history"
	"github.com/MimeLyc/live-caption-history/internal/httpapi"
	"github.com/MimeLyc/live-caption-history/internal/langdetect"
	"github.com/MimeLyc/live-caption-history/internal/llm"
	"github.com/MimeLyc/live-caption-history/internal/metrics"
	"github.com/MimeLyc/live-caption-history/internal/service"
	"github.com/MimeLyc/live-caption-history/internal/session"
	"github.com/MimeLyc/live-caption-history/internal/termmap"
	"github.com/MimeLyc/live-caption-history/internal/translator"
	"github.com/MimeLyc/live-caption-history/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the caption HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(runCtx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another captiond instance is already using %s", cfg.Storage.DataDir)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("Failed to release lock: %v", err)
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Storage.Backend, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("Failed to close store: %v", err)
		}
	}()

	detector := langdetect.NewDetector()
	filter := captionfilter.New(captionfilter.WithSettings(cfg.Filter))
	manager := history.NewManager(store, detector,
		history.WithSettings(cfg.History.Settings()),
		history.WithLocation(cfg.Location()),
	)
	manager.LoadFromStorage(ctx)
	defer func() {
		destroyCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := manager.Destroy(destroyCtx); err != nil {
			log.Error("Failed to persist history on shutdown: %v", err)
		}
	}()

	sessionOpts := []session.Option{session.WithTarget(cfg.Translate.TargetLanguage)}
	if cfg.TranslationEnabled() {
		client, err := llm.NewClient(&llm.Config{
			APIKey:      cfg.LLM.APIKey,
			APIURL:      cfg.LLM.APIURL,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			AppName:     cfg.LLM.AppName,
		})
		if err != nil {
			return fmt.Errorf("create llm client: %w", err)
		}
		sessionOpts = append(sessionOpts,
			session.WithTranslator(translator.NewLLMTranslator(client, translator.WithTermMap(loadGlossary(cfg)))),
			session.WithTranslateTimeout(time.Duration(cfg.LLM.Timeout)*time.Second),
		)
	} else {
		log.Info("LLM_API_KEY not set, captions are recorded untranslated")
	}
	sess := session.New(filter, manager, detector, sessionOpts...)

	settings, err := config.NewRuntimeSettingsStore(cfg.RuntimeSettingsPath(), config.RuntimeSettingsFromFilter(cfg.Filter))
	if err != nil {
		return fmt.Errorf("create settings store: %w", err)
	}
	settings.OnChange(func(next config.RuntimeSettings) {
		filter.UpdateSettings(next.FilterSettings())
	})

	reg, err := metrics.NewRegistry(sess)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	srv := httpapi.NewServer(sess,
		httpapi.WithRuntimeSettingsStore(settings),
		httpapi.WithMetrics(reg),
	)

	cronEng := cron.New(cron.WithLocation(cfg.Location()))
	retention := service.NewRetentionService(manager, cfg.History.Retention(), cfg.History.RetentionCron, cronEng)

	return runWithComponents(ctx, cfg, retention, cronEng, srv, settings.Watch)
}

// loadGlossary reads the translation glossary. A missing or unreadable file
// leaves translation without one.
func loadGlossary(cfg *config.Config) termmap.TermMap {
	path := cfg.GlossaryPath()
	tm, err := termmap.Load(path)
	switch {
	case err == nil:
		log.Info("Loaded %d glossary terms from %s", len(tm), path)
		return tm
	case errors.Is(err, fs.ErrNotExist):
		log.Debug("No glossary at %s", path)
	default:
		log.Warn("Ignoring glossary %s: %v", path, err)
	}
	return termmap.TermMap{}
}

func runWithComponents(
	ctx context.Context,
	cfg *config.Config,
	sched scheduler,
	cronEng cronEngine,
	httpSrv httpServer,
	watch func(context.Context) error,
) error {
	if err := sched.Schedule(ctx); err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}
	cronEng.Start()
	defer cronEng.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Listening on %s", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if watch != nil {
		g.Go(func() error {
			if err := watch(gctx); err != nil {
				log.Warn("Settings file watch stopped: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
