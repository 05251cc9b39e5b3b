package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/manash/memestudio/internal/config"
	"github.com/manash/memestudio/internal/memegen"
	"github.com/manash/memestudio/internal/server"
)

var (
	flagPort   string
	flagSQLite string
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the meme backend API",
		Long: `Serve the /api endpoints the shell and other clients talk to.

Templates come from memegen.link. AI generation is enabled when
OPENAI_API_KEY is set. Memes are stored in PostgreSQL when DATABASE_URL
is set and in SQLite otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			return runServe(ctx, app)
		},
	}
	cmd.Flags().StringVarP(&flagPort, "port", "p", "", "listen port (defaults to PORT)")
	cmd.Flags().StringVar(&flagSQLite, "db", "", "SQLite database path (defaults to SQLITE_PATH or ~/.memestudio/memes.db)")
	return cmd
}

func runServe(ctx context.Context, app *App) error {
	cfg, err := loadConfig(app)
	if err != nil {
		return err
	}
	if flagPort != "" {
		cfg.Port = flagPort
	}
	if flagSQLite != "" {
		cfg.SQLitePath = flagSQLite
	}
	logger := config.NewLogger(cfg.AppEnv, app.Err, flagVerbose)

	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer st.Close()

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithCORSOrigins(cfg.CORSOrigins),
		server.WithMaxUpload(cfg.MaxUploadBytes),
	}
	gen, err := app.NewGenerator(cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("AI generation disabled")
	} else {
		logger.Info().Str("generator", gen.Name()).Msg("AI generation enabled")
		opts = append(opts, server.WithGenerator(gen))
	}

	templates := memegen.New(cfg.MemegenBaseURL, cfg.HTTPTimeout, logger)
	api := server.New(templates, st, opts...)
	httpServer := server.NewHTTPServer(cfg, api.Routes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()
	logger.Info().
		Str("addr", httpServer.Addr()).
		Bool("postgres", cfg.UsePostgres()).
		Msg("API listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
