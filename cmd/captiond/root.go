package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/live-caption-history/internal/config"
	"github.com/MimeLyc/live-caption-history/internal/persistence"
	"github.com/MimeLyc/live-caption-history/pkg/log"
)

type commandContext struct {
	envFile *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(envFile *string) *commandContext {
	return &commandContext{envFile: envFile}
}

// ensureConfig loads the .env file, the environment and, when present, the
// runtime filter settings file.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if c.envFile != nil && strings.TrimSpace(*c.envFile) != "" {
			if err := godotenv.Load(*c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				c.configErr = fmt.Errorf("load env file: %w", err)
				return
			}
		}
		log.InitLogger(log.ParseLevel(os.Getenv("LOG_LEVEL")))

		cfg, err := config.NewFromEnv()
		if err != nil {
			c.configErr = err
			return
		}
		settings, err := config.LoadRuntimeSettingsFile(cfg.RuntimeSettingsPath())
		switch {
		case err == nil:
			if err := settings.Validate(); err != nil {
				log.Warn("Ignoring invalid settings file %s: %v", cfg.RuntimeSettingsPath(), err)
				break
			}
			config.WithRuntimeSettings(settings)(cfg)
		case !errors.Is(err, fs.ErrNotExist):
			log.Warn("Ignoring settings file %s: %v", cfg.RuntimeSettingsPath(), err)
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) openStore(ctx context.Context) (persistence.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return openStore(ctx, cfg)
}

func openStore(ctx context.Context, cfg *config.Config) (persistence.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		return persistence.NewRedisStore(ctx, persistence.RedisConfig{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
	default:
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return persistence.NewSQLiteStore(cfg.DBPath())
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	ctx := newCommandContext(&envFile)

	rootCmd := &cobra.Command{
		Use:           "captiond",
		Short:         "Live caption filtering, translation and meeting history",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading configuration")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))

	return rootCmd
}
