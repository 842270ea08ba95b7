package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/townspark/townspark/internal/apiclient"
	"github.com/townspark/townspark/internal/app"
	"github.com/townspark/townspark/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand(os.Environ).Run(ctx, args)
}

// runner carries what every command action needs besides its own flags.
type runner struct {
	environ func() []string
}

func newRootCommand(environ func() []string) *cli.Command {
	r := &runner{environ: environ}

	return &cli.Command{
		Name:  "townspark",
		Usage: "TownSpark session gateway and command-line client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file merged into the environment",
				Value: defaultEnvFile,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "TownSpark API base URL",
			},
			&cli.StringFlag{
				Name:  "auth--storage",
				Usage: "where the CLI keeps its session (file|env|keyring|memory)",
			},
		},
		Commands: []*cli.Command{
			r.serveCommand(),
			r.loginCommand(),
			r.signupCommand(),
			r.logoutCommand(),
			r.whoamiCommand(),
			r.statusCommand(),
			r.issuesCommand(),
		},
	}
}

func (r *runner) serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the browser session gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
			&cli.StringFlag{
				Name:  "telemetry--exporter",
				Usage: "log export (none|stdout|otlp-grpc|otlp-http)",
				Value: string(app.DefaultConfigLogExporter),
			},
		},
		Action: r.serveAction,
	}
}

func (r *runner) serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := r.setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

// setup loads the configuration and installs logging.
func (r *runner) setup(ctx context.Context, cmd *cli.Command) (*app.Config, observability.ShutdownFunc, error) {
	environ, err := withEnvFile(r.environ, cmd.String("env-file"), cmd.IsSet("env-file"))
	if err != nil {
		return nil, nil, err
	}

	cfg, err := loadConfig(cmd.String("config"), cmd, environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, cfg.ObservabilityOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	return cfg, shutdown, nil
}

// session loads the configuration and returns a client bound to the CLI session.
func (r *runner) session(ctx context.Context, cmd *cli.Command) (*apiclient.Client, observability.ShutdownFunc, error) {
	cfg, shutdown, err := r.setup(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}

	store, err := cfg.Auth.NewSession()
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, err
	}

	errOut := cmd.Root().ErrWriter
	if errOut == nil {
		errOut = os.Stderr
	}
	client, err := cfg.NewClient(store, apiclient.WithAuthExpiredHandler(func(context.Context) {
		_, _ = fmt.Fprintln(errOut, "Your session has expired. Run `townspark login` to sign in again.")
	}))
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, fmt.Errorf("failed to create API client: %w", err)
	}

	return client, shutdown, nil
}
