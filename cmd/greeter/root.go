package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dqx0.com/go/greeter/internal/config"
)

// rootOptions carries what the persistent flags select.
type rootOptions struct {
	cfgFile string
	v       *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: config.New()}
	def := config.Default()

	root := &cobra.Command{
		Use:   "greeter",
		Short: "Serve plain-text greetings over HTTP",
		Long: `greeter answers GET / with "Hello World!" and GET /{name} with
"Hello {name}!". Settings come from flags, GREETER_* environment variables,
an optional greeter.yaml and built-in defaults, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.cfgFile, "config", "", "config file (default: greeter.{yaml,json,toml} in . or $HOME/.greeter)")
	pf.String("log-level", def.Log.Level, "log level: debug, info, warn or error")
	pf.String("log-format", def.Log.Format, "log format: text or json")
	pf.String("log-file", def.Log.File, "log to this file with rotation instead of stderr")
	opts.v.BindPFlag("log.level", pf.Lookup("log-level"))
	opts.v.BindPFlag("log.format", pf.Lookup("log-format"))
	opts.v.BindPFlag("log.file", pf.Lookup("log-file"))

	serve := newServeCmd(opts, def)
	root.AddCommand(serve, newRoutesCmd(), newVersionCmd())
	// Serving is the default action.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}
