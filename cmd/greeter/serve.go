package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"dqx0.com/go/greeter/app"
	"dqx0.com/go/greeter/internal/config"
	"dqx0.com/go/greeter/internal/logging"
)

func newServeCmd(opts *rootOptions, def *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the greeting server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.String("addr", def.Addr, "listen address")
	f.String("transport", def.Transport, "server transport: httpx or net")
	f.Bool("gzip", def.Gzip, "gzip responses for clients that accept it")
	opts.v.BindPFlag("addr", f.Lookup("addr"))
	opts.v.BindPFlag("transport", f.Lookup("transport"))
	opts.v.BindPFlag("gzip", f.Lookup("gzip"))
	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := config.Load(opts.v, opts.cfgFile)
	if err != nil {
		return err
	}
	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return errors.WithStack(err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := app.Run(ctx, cfg, logger)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s listening on %s (%s transport)\n",
		color.New(color.Bold).Sprint("greeter"),
		color.New(color.Bold, color.FgHiGreen).Sprint("http://"+h.Addr()),
		cfg.Transport)

	<-h.Done()
	logger.Info("stopped", "requests", h.Requests())
	fmt.Fprintf(out, "greeter stopped after %d requests\n", h.Requests())
	return h.Err()
}
