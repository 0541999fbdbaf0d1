package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/merchflow/harvester/internal/checkpoint"
	"github.com/merchflow/harvester/internal/config"
	"github.com/merchflow/harvester/internal/fetch"
	"github.com/merchflow/harvester/internal/logger"
	"github.com/merchflow/harvester/internal/output"
	"github.com/merchflow/harvester/internal/pipeline"
	"github.com/merchflow/harvester/internal/store"
	"github.com/spf13/cobra"
)

func startCmd() *cobra.Command {
	var (
		debug bool
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the harvest orchestrator",
		Long: `Start the harvest orchestrator. It wakes at eight fixed daily clock
points, resumes any run left unfinished by a previous process, and exits
with a non-zero code on the first fatal error so a supervisor can restart it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.WithConfigFile(cfgFile))
			if err != nil {
				return err
			}

			var opts []logger.Option
			if debug || cfg.Debug {
				opts = append(opts, logger.WithDebug())
			}
			if quiet || cfg.Quiet {
				opts = append(opts, logger.WithQuiet())
			}
			opts = append(opts, logger.WithFormat(cfg.LogFormat))
			lg := logger.NewLogger(opts...)

			ctx, stop := signal.NotifyContext(
				cmd.Context(), os.Interrupt, syscall.SIGTERM,
			)
			defer stop()
			ctx = logger.WithLogger(ctx, lg)

			flags, err := checkpoint.Open(cfg.Paths.CheckpointDB)
			if err != nil {
				lg.Fatal("failed to open checkpoint store", "err", err)
			}
			defer func() { _ = flags.Close() }()

			db, err := store.New(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
			if err != nil {
				lg.Fatal("failed to connect to database", "err", err)
			}
			defer db.Close()

			fetcher := fetch.New(fetch.Config{
				Workers:    cfg.Fetch.Workers,
				MaxRetries: cfg.Fetch.MaxRetries,
				RetryDelay: cfg.Fetch.RetryDelay,
				Timeout:    cfg.Fetch.Timeout,
			})
			defer fetcher.Shutdown()

			writer := output.NewWriter()
			defer func() { _ = writer.Close() }()

			p := pipeline.New(cfg, flags, fetcher, writer, db)
			if err := p.Run(ctx); err != nil {
				lg.Fatal("pipeline terminated", "err", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress console logging")
	return cmd
}
