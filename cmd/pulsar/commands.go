package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pulsar/internal/pipeline"
	"github.com/ajitpratap0/pulsar/pkg/config"
	"github.com/ajitpratap0/pulsar/pkg/destination"
	"github.com/ajitpratap0/pulsar/pkg/destination/sinks"
	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
	"github.com/ajitpratap0/pulsar/pkg/logger"
	"github.com/ajitpratap0/pulsar/pkg/metrics"
	"github.com/ajitpratap0/pulsar/pkg/protocol"
	"github.com/ajitpratap0/pulsar/pkg/source"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Pulsar v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newInitCmd(a *app) *cobra.Command {
	var executable, dockerImage, dest, runner string

	cmd := &cobra.Command{
		Use:   "init <connection>",
		Short: "Create a connection from the source specification",
		Long: `Create a connection file pre-filled from the connector specification.

Example:
  pulsar init faker --docker-image airbyte/source-faker:0.1.4 --destination bigquery`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			kind, err := destination.ParseKind(dest)
			if err != nil {
				return err
			}
			runnerKind, err := pipeline.ParseKind(runner)
			if err != nil {
				return err
			}

			driver, err := source.New(source.Options{
				Executable:  executable,
				DockerImage: dockerImage,
				Logger:      a.log,
			})
			if err != nil {
				return err
			}
			spec, err := driver.Spec(cmd.Context())
			if err != nil {
				return err
			}
			sourceConfig, err := protocol.SampleConfig(spec.ConnectionSpecification)
			if err != nil {
				return err
			}
			destConfig, err := sinks.SampleConfig(kind)
			if err != nil {
				return err
			}
			runnerConfig, err := pipeline.SampleConfig(runnerKind)
			if err != nil {
				return err
			}

			conn, err := config.NewFromTemplate(name, config.Template{
				Executable:        executable,
				DockerImage:       dockerImage,
				SourceConfig:      sourceConfig,
				Destination:       string(kind),
				Destinations:      destinationNames(),
				DestinationConfig: destConfig,
				Runner:            string(runnerKind),
				Runners:           pipeline.KindNames(),
				RunnerConfig:      runnerConfig,
			})
			if err != nil {
				return err
			}
			store := a.store()
			if err := store.Init(conn); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connection %q created in %s\n", name, store.Path(name))
			if spec.DocumentationURL != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Source documentation: %s\n", spec.DocumentationURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&executable, "executable", "e", "", "Command launching the source connector")
	cmd.Flags().StringVarP(&dockerImage, "docker-image", "i", "", "Docker image of the source connector")
	cmd.Flags().StringVarP(&dest, "destination", "d", string(destination.KindPrint), "Destination connector: "+strings.Join(destinationNames(), ", "))
	cmd.Flags().StringVarP(&runner, "runner", "r", string(pipeline.KindDirect), "Runner type: "+strings.Join(pipeline.KindNames(), ", "))
	cmd.MarkFlagsMutuallyExclusive("executable", "docker-image")
	return cmd
}

func destinationNames() []string {
	names := make([]string, 0, len(destination.Kinds()))
	for _, k := range destination.Kinds() {
		names = append(names, string(k))
	}
	return names
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := a.store().List()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

// loadSource loads connection name and creates its source driver.
func (a *app) loadSource(name string) (*source.Driver, error) {
	conn, err := a.store().Load(name)
	if err != nil {
		return nil, err
	}
	def, err := conn.Definition()
	if err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return pipeline.NewSource(def, pipeline.BuildOptions{Logger: a.log.With(zap.String("connection", name))})
}

func newListStreamsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list-streams <connection>",
		Short: "List the streams the source exposes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := a.loadSource(args[0])
			if err != nil {
				return err
			}
			streams, err := driver.AvailableStreams(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range streams {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}

func newSetStreamsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-streams <connection> <stream>[,<stream>...]",
		Short: "Select the streams a connection syncs",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := a.store()
			conn, err := store.Load(args[0])
			if err != nil {
				return err
			}
			if err := conn.SetStreams(args[1:]); err != nil {
				return err
			}
			if err := store.Save(conn); err != nil {
				return err
			}
			def, err := conn.Definition()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Streams of %q set to %s\n", args[0], strings.Join(def.Source.Streams, ","))
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode output")
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func newSpecCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "spec <connection>",
		Short: "Print the source connector specification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := a.loadSource(args[0])
			if err != nil {
				return err
			}
			spec, err := driver.Spec(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, spec)
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <connection>",
		Short: "Check the source configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := a.loadSource(args[0])
			if err != nil {
				return err
			}
			status, err := driver.Check(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(cmd, status); err != nil {
				return err
			}
			if !status.Succeeded() {
				return errors.Newf(errors.ErrorTypeConfig, "connection check of %q failed: %s", args[0], status.Message)
			}
			return nil
		},
	}
}

func newDiscoverCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discover <connection>",
		Short: "Print the source catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := a.loadSource(args[0])
			if err != nil {
				return err
			}
			catalog, err := driver.Discover(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, catalog)
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <connection>",
		Short: "Run a connection",
		Long: `Run a connection: read the destination checkpoint, extract the selected
streams from the source starting at that checkpoint and load them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.store().Load(args[0])
			if err != nil {
				return err
			}
			return a.run(cmd, conn)
		},
	}
}

func newRunEnvVarsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run-env-vars",
		Short: "Run the connection passed through environment variables",
		Long: fmt.Sprintf(`Run the connection encoded in %s (base64 YAML) with the source
command taken from %s. This is how a packaged pipeline image runs.`, config.EnvYAMLConfig, config.EnvEntrypoint),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := config.FromEnvironment(a.getenv)
			if err != nil {
				return err
			}
			return a.run(cmd, conn)
		},
	}
}

func (a *app) run(cmd *cobra.Command, conn *config.Connection) (err error) {
	def, err := conn.Definition()
	if err != nil {
		return err
	}
	runner, err := pipeline.NewRunner(def.RemoteRunner)
	if err != nil {
		return err
	}

	ctx := logger.WithConnection(cmd.Context(), conn.Name)
	ctx = logger.WithRunID(ctx, uuid.New().String())
	log := logger.WithContext(ctx, a.log)

	if addr := a.v.GetString(keyMetricsAddr); addr != "" {
		stop, err := serveMetrics(addr, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	p, err := pipeline.Build(ctx, conn.Name, def, pipeline.BuildOptions{Logger: log, Stdout: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Warn("failed to close destination", zap.Error(cerr))
			if err == nil {
				err = cerr
			}
		}
	}()

	result, err := runner.Run(ctx, p)
	if err != nil {
		log.Error("pipeline execution failed", zap.Error(err), zap.Any("details", errorDetails(err)))
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Connection %q: %d records loaded in %s\n", conn.Name, result.Records, result.Duration.Round(time.Millisecond))
	return nil
}

func errorDetails(err error) map[string]interface{} {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// serveMetrics serves /metrics on addr until the returned function is called.
func serveMetrics(addr string, log *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeResource, "failed to listen on %s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
