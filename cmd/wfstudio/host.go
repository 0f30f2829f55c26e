package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/wfstudio/pkg/channel"
	"github.com/ormasoftchile/wfstudio/pkg/logging"
	"github.com/ormasoftchile/wfstudio/pkg/metrics"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Serve the studio protocol over stdio",
	Long: `Serve the studio message protocol over stdin/stdout.
Each line is one JSON message {type, requestId, payload}. The host answers
until stdin is closed or it receives SIGINT/SIGTERM. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serveStdio(ctx)
	},
}

func serveStdio(ctx context.Context) error {
	bus := channel.NewStreamBus(os.Stdin, os.Stdout, logging.Component(logger, "stdio"))
	srv := newHost(bus)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-srv.Ready()
		if err := bus.Listen(); err != nil {
			logger.Error().Err(err).Msg("read stdin")
		}
		// stdin closed: stop serving
		cancel()
	}()
	err := srv.Serve(ctx)

	summary := metrics.Summarize(srv.Metrics().Drain())
	for _, s := range summary {
		logger.Info().
			Str("type", s.Type).
			Int("count", s.Count).
			Int("failures", s.Failures).
			Int("cancelled", s.Cancelled).
			Dur("mean", s.Mean()).
			Msg("request summary")
	}
	return err
}
