// Package source drives connector executables through the spec, discover,
// check and read actions and exposes their output as a pull-based stream
// of protocol messages.
//
// Each action runs one process. Inputs are written to a private temporary
// directory as config.json, catalog.json and state.json and passed with
// --config, --catalog and --state. The process and the directory are
// released when the MessageStream is closed, which every exit path does.
package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
	"github.com/ajitpratap0/pulsar/pkg/logger"
	"github.com/ajitpratap0/pulsar/pkg/protocol"
)

// Connector actions.
const (
	ActionSpec     = "spec"
	ActionDiscover = "discover"
	ActionCheck    = "check"
	ActionRead     = "read"
)

const (
	configFile  = "config.json"
	catalogFile = "catalog.json"
	stateFile   = "state.json"

	defaultWaitDelay = 5 * time.Second
)

// Options configures a Driver. Exactly one of Executable and DockerImage
// is required; an Executable that looks like a connector image reference
// is run with docker.
type Options struct {
	Executable  string
	DockerImage string
	// Config is the connector configuration document. It is serialized as
	// JSON and must be set for every action except spec.
	Config interface{}
	Policy ParsePolicy
	Logger *zap.Logger
	// Diagnostics receives the LOG and TRACE messages that precede the
	// result of spec, discover and check. They are logged when nil.
	Diagnostics func(*protocol.Message)
	// TempDir is the parent of per-action artifact directories.
	TempDir string
	// WaitDelay bounds how long a killed process may keep its output
	// pipes open before they are closed forcibly.
	WaitDelay time.Duration
}

// Driver runs connector actions. A Driver holds no per-run state and may
// start several actions concurrently; each has its own process and
// artifact directory.
type Driver struct {
	opts     Options
	launcher Launcher
	logger   *zap.Logger
}

// New validates opts and selects a launcher.
func New(opts Options) (*Driver, error) {
	var launcher Launcher
	switch {
	case opts.Executable != "" && opts.DockerImage != "":
		return nil, errors.New(errors.ErrorTypeConfig, "source takes either executable or docker_image, not both")
	case opts.DockerImage != "":
		launcher = &DockerLauncher{Image: opts.DockerImage}
	case IsDockerImage(opts.Executable):
		launcher = &DockerLauncher{Image: opts.Executable}
	case opts.Executable != "":
		launcher = &ExecutableLauncher{Executable: opts.Executable}
	default:
		return nil, errors.New(errors.ErrorTypeConfig, "source executable or docker_image is required")
	}

	policy, err := ParseParsePolicy(string(opts.Policy))
	if err != nil {
		return nil, err
	}
	opts.Policy = policy
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = defaultWaitDelay
	}

	return &Driver{
		opts:     opts,
		launcher: launcher,
		logger:   logger.OrNop(opts.Logger).With(zap.String("component", "source"), zap.String("connector", launcher.String())),
	}, nil
}

// Launcher returns the launcher selected for the connector.
func (d *Driver) Launcher() Launcher {
	return d.launcher
}

// Spec returns the connector specification. It needs no configuration.
func (d *Driver) Spec(ctx context.Context) (*protocol.ConnectorSpecification, error) {
	msg, err := d.result(ctx, ActionSpec, protocol.TypeSpec)
	if err != nil {
		return nil, err
	}
	return msg.Spec, nil
}

// Discover returns every stream the connector exposes.
func (d *Driver) Discover(ctx context.Context) (*protocol.Catalog, error) {
	msg, err := d.result(ctx, ActionDiscover, protocol.TypeCatalog)
	if err != nil {
		return nil, err
	}
	return msg.Catalog, nil
}

// Check validates the configuration against the connector. A failed check
// is a status, not an error.
func (d *Driver) Check(ctx context.Context) (*protocol.ConnectionStatus, error) {
	msg, err := d.result(ctx, ActionCheck, protocol.TypeConnectionStatus)
	if err != nil {
		return nil, err
	}
	return msg.ConnectionStatus, nil
}

// AvailableStreams returns the names of the discovered streams.
func (d *Driver) AvailableStreams(ctx context.Context) ([]string, error) {
	catalog, err := d.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.StreamNames(), nil
}

// BuildConfiguredCatalog discovers the catalog and selects streams from it.
// An empty selection selects every stream.
func (d *Driver) BuildConfiguredCatalog(ctx context.Context, selection []string) (*protocol.ConfiguredCatalog, error) {
	catalog, err := d.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return protocol.BuildConfiguredCatalog(catalog, selection)
}

// Extract starts a read of catalog, resuming from state when it is not
// empty. The returned stream must be closed.
func (d *Driver) Extract(ctx context.Context, catalog *protocol.ConfiguredCatalog, state json.RawMessage) (*MessageStream, error) {
	if catalog == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configured catalog is required for action read")
	}
	return d.start(ctx, ActionRead, catalog, state)
}

// FirstRecord reads catalog until the first record and stops the process.
func (d *Driver) FirstRecord(ctx context.Context, catalog *protocol.ConfiguredCatalog) (*protocol.Record, error) {
	stream, err := d.Extract(ctx, catalog, nil)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	for {
		msg, err := stream.Next(ctx)
		if err == io.EOF {
			return nil, errors.New(errors.ErrorTypeNotFound, "source produced no records")
		}
		if err != nil {
			return nil, err
		}
		switch msg.Type {
		case protocol.TypeRecord:
			return msg.Record, nil
		case protocol.TypeLog, protocol.TypeTrace:
			d.diagnostic(msg)
		}
	}
}

// result runs action and returns its first message that is neither LOG nor TRACE.
func (d *Driver) result(ctx context.Context, action string, want protocol.Type) (*protocol.Message, error) {
	stream, err := d.start(ctx, action, nil, nil)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	for {
		msg, err := stream.Next(ctx)
		if err == io.EOF {
			return nil, errors.Newf(errors.ErrorTypeSourceProtocol, "no result produced by %s", action)
		}
		if err != nil {
			return nil, err
		}
		switch msg.Type {
		case protocol.TypeLog, protocol.TypeTrace:
			d.diagnostic(msg)
		case want:
			return msg, nil
		default:
			return nil, errors.Newf(errors.ErrorTypeSourceProtocol, "unexpected %s message in response to %s", msg.Type, action).
				WithDetail("line", string(msg.Raw))
		}
	}
}

func (d *Driver) diagnostic(msg *protocol.Message) {
	if d.opts.Diagnostics != nil {
		d.opts.Diagnostics(msg)
		return
	}
	if msg.Log != nil && !msg.Synthetic {
		d.logger.Info(msg.Log.Message, zap.String("source_level", msg.Log.Level))
	}
}

// start writes the artifacts for action and launches the process.
func (d *Driver) start(ctx context.Context, action string, catalog *protocol.ConfiguredCatalog, state json.RawMessage) (stream *MessageStream, err error) {
	if action != ActionSpec && d.opts.Config == nil {
		return nil, errors.Newf(errors.ErrorTypeConfig, "config is required for action %s", action)
	}

	dir, err := os.MkdirTemp(d.opts.TempDir, "pulsar-source-*")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeResource, "failed to create source artifact directory")
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	args := []string{action}
	if action != ActionSpec {
		p, err := d.writeArtifact(dir, configFile, d.opts.Config)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", p)
	}
	if catalog != nil {
		p, err := d.writeArtifact(dir, catalogFile, catalog)
		if err != nil {
			return nil, err
		}
		args = append(args, "--catalog", p)
	}
	if !json.IsEmpty(state) {
		p, err := d.writeArtifact(dir, stateFile, state)
		if err != nil {
			return nil, err
		}
		args = append(args, "--state", p)
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := d.launcher.Command(procCtx, dir, args)
	cmd.WaitDelay = d.opts.WaitDelay
	stderr := &zapio.Writer{Log: d.logger.With(zap.String("stream", "stderr"), zap.String("action", action)), Level: zapcore.InfoLevel}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, errors.ErrorTypeResource, "failed to open source stdout")
	}

	d.logger.Debug("starting source", zap.String("action", action), zap.Strings("args", cmd.Args))
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, errors.Wrapf(err, errors.ErrorTypeResource, "failed to start source for %s", action).
			WithDetail("command", cmd.Args)
	}

	return newMessageStream(action, d.opts.Policy, d.logger, cmd, cancel, stdout, stderr, dir), nil
}

func (d *Driver) writeArtifact(dir, name string, v interface{}) (string, error) {
	var data []byte
	if raw, ok := v.(json.RawMessage); ok {
		data = raw
	} else {
		var err error
		if data, err = json.Marshal(v); err != nil {
			return "", errors.Wrapf(err, errors.ErrorTypeConfig, "failed to serialize %s", name)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
		return "", errors.Wrapf(err, errors.ErrorTypeResource, "failed to write %s", name)
	}
	return d.launcher.ArtifactPath(dir, name), nil
}
