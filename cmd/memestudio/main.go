package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/manash/memestudio/internal/config"
	"github.com/manash/memestudio/internal/display"
	"github.com/manash/memestudio/internal/image"
	"github.com/manash/memestudio/internal/imagegen"
	"github.com/manash/memestudio/internal/imagegen/openai"
	"github.com/manash/memestudio/internal/service"
	"github.com/manash/memestudio/internal/service/httpapi"
	"github.com/manash/memestudio/internal/store"
	"github.com/manash/memestudio/internal/store/postgres"
	"github.com/manash/memestudio/internal/store/sqlite"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagAPIURL  string
	flagUser    string
	flagTimeout int
	flagVerbose bool
)

type App struct {
	In           io.Reader
	Out          io.Writer
	Err          io.Writer
	LookupEnv    config.LookupFunc
	NewBackend   func(cfg *service.Config, logger zerolog.Logger) service.Backend
	NewSaver     func(opts ...image.Option) *image.Saver
	NewDisplayer func(out io.Writer, fetcher display.Fetcher) *display.Displayer
	OpenStore    func(ctx context.Context, cfg *config.Config) (store.MemeStore, error)
	NewGenerator func(cfg *config.Config, logger zerolog.Logger) (imagegen.Generator, error)
}

func DefaultApp() *App {
	return &App{
		In:        os.Stdin,
		Out:       os.Stdout,
		Err:       os.Stderr,
		LookupEnv: os.LookupEnv,
		NewBackend: func(cfg *service.Config, logger zerolog.Logger) service.Backend {
			return httpapi.New(cfg, logger)
		},
		NewSaver:     image.NewSaver,
		NewDisplayer: display.New,
		OpenStore:    openStore,
		NewGenerator: newGenerator,
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.MemeStore, error) {
	if cfg.UsePostgres() {
		st, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	st, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func newGenerator(cfg *config.Config, logger zerolog.Logger) (imagegen.Generator, error) {
	p, err := openai.New(&imagegen.Config{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.OpenAIModel,
		TimeoutSec: int(cfg.HTTPTimeout / time.Second),
		Verbose:    flagVerbose,
	}, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotenv(); err != nil {
		return err
	}
	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memestudio",
		Short: "Create memes from templates or AI prompts",
		Long: `memestudio creates memes by overlaying text on templates or by
generating images from a prompt, and keeps them in a personal gallery.

Run without a subcommand to start the interactive shell.

Examples:
  memestudio serve
  memestudio templates drake
  memestudio create manual --template drake --text "writing tests" --text "writing more tests" --save
  memestudio create ai --prompt "cats reviewing pull requests" --output cats.png
  memestudio gallery`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, app)
		},
	}
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Err)

	cmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "backend URL (defaults to MEMESTUDIO_API_URL)")
	cmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "user id (defaults to MEMESTUDIO_USER_ID)")
	cmd.PersistentFlags().IntVar(&flagTimeout, "timeout", 0, "request timeout in seconds (defaults to MEMESTUDIO_HTTP_TIMEOUT)")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")

	cmd.AddCommand(
		newShellCmd(app),
		newServeCmd(app),
		newTemplatesCmd(app),
		newGalleryCmd(app),
		newCreateCmd(app),
		newHealthCmd(app),
	)
	return cmd
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(app *App) (*config.Config, error) {
	cfg, err := config.Load(app.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if flagAPIURL != "" {
		cfg.APIURL = flagAPIURL
	}
	if flagUser != "" {
		cfg.UserID = flagUser
	}
	if flagTimeout > 0 {
		cfg.HTTPTimeout = time.Duration(flagTimeout) * time.Second
	}
	return cfg, nil
}

// cliLogger keeps client commands quiet unless --verbose is set.
func cliLogger(app *App, cfg *config.Config) zerolog.Logger {
	logger := config.NewLogger(cfg.AppEnv, app.Err, flagVerbose)
	if !flagVerbose {
		logger = logger.Level(zerolog.WarnLevel)
	}
	return logger
}

func newBackend(app *App, cfg *config.Config, logger zerolog.Logger) service.Backend {
	return app.NewBackend(&service.Config{
		BaseURL:    cfg.APIURL,
		TimeoutSec: int(cfg.HTTPTimeout / time.Second),
		Verbose:    flagVerbose,
	}, logger)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
