// Command pulsar manages and runs extract-load connections.
//
// A connection is a YAML file under the connections directory naming a
// source connector, a destination and a runner. Typical use:
//
//	pulsar init faker --executable "python source.py" --destination print
//	pulsar list-streams faker
//	pulsar set-streams faker users,purchases
//	pulsar run faker
//
// Process settings come from flags, PULSAR_* environment variables and a
// .env file in the working directory, in that order of precedence.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pulsar/pkg/config"
	"github.com/ajitpratap0/pulsar/pkg/logger"
	"github.com/ajitpratap0/pulsar/pkg/observability"
)

var version = "0.1.0"

// Setting keys, also the persistent flag names.
const (
	keyLogLevel       = "log-level"
	keyLogEncoding    = "log-encoding"
	keyConnectionsDir = "connections-dir"
	keyMetricsAddr    = "metrics-addr"
	keyTracing        = "tracing"
)

type app struct {
	v      *viper.Viper
	log    *zap.Logger
	getenv func(string) string

	shutdownTracing func(context.Context) error
}

func newApp() *app {
	v := viper.New()
	v.SetEnvPrefix("PULSAR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return &app{v: v, log: zap.NewNop(), getenv: os.Getenv}
}

func (a *app) store() *config.Store {
	return config.NewStore(a.v.GetString(keyConnectionsDir))
}

func (a *app) setup(*cobra.Command, []string) error {
	log, err := logger.New(logger.Config{
		Level:    a.v.GetString(keyLogLevel),
		Encoding: a.v.GetString(keyLogEncoding),
	})
	if err != nil {
		return err
	}
	a.log = log.With(zap.String("component", "pulsar-cli"))

	if a.v.GetBool(keyTracing) {
		cfg := observability.DefaultConfig()
		cfg.ServiceVersion = version
		shutdown, err := observability.Init(cfg)
		if err != nil {
			return err
		}
		a.shutdownTracing = shutdown
	}
	return nil
}

func (a *app) teardown(cmd *cobra.Command, _ []string) error {
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(context.WithoutCancel(cmd.Context())); err != nil {
			a.log.Warn("failed to flush traces", zap.Error(err))
		}
	}
	_ = a.log.Sync()
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "pulsar",
		Short: "Pulsar - extract-load pipelines for Airbyte-protocol sources",
		Long: `Pulsar runs any source connector speaking the Airbyte protocol and loads
its records and checkpoints into a destination, resuming every run from the
last checkpoint the destination holds.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	flags := root.PersistentFlags()
	flags.String(keyLogLevel, "info", "Log level (debug, info, warn, error)")
	flags.String(keyLogEncoding, "console", "Log encoding (console, json)")
	flags.String(keyConnectionsDir, config.DefaultConnectionsDir, "Directory holding connection files")
	flags.String(keyMetricsAddr, "", "Serve Prometheus metrics on this address during runs, e.g. :9090")
	flags.Bool(keyTracing, false, "Export OpenTelemetry spans to stderr")
	_ = a.v.BindPFlags(flags)

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newListCmd(a),
		newListStreamsCmd(a),
		newSetStreamsCmd(a),
		newSpecCmd(a),
		newCheckCmd(a),
		newDiscoverCmd(a),
		newRunCmd(a),
		newRunEnvVarsCmd(a),
	)
	return root
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(newApp()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
