package source

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
	"github.com/ajitpratap0/pulsar/pkg/protocol"
	"github.com/ajitpratap0/pulsar/pkg/testutil"
)

const (
	specLine    = `{"type":"SPEC","spec":{"documentationUrl":"https://docs.example.com/faker","connectionSpecification":{"type":"object","properties":{"count":{"type":"integer"}}}}}`
	catalogLine = `{"type":"CATALOG","catalog":{"streams":[{"name":"users","json_schema":{},"supported_sync_modes":["full_refresh","incremental"],"default_cursor_field":["updated_at"]},{"name":"orders","json_schema":{},"supported_sync_modes":["full_refresh"]}]}}`
	statusLine  = `{"type":"CONNECTION_STATUS","connectionStatus":{"status":"SUCCEEDED"}}`
	logLine     = `{"type":"LOG","log":{"level":"INFO","message":"starting"}}`
)

func record(stream string, id int) string {
	return `{"type":"RECORD","record":{"stream":"` + stream + `","data":{"id":` + string(rune('0'+id)) + `},"emitted_at":1700000000000}}`
}

func newDriver(t *testing.T, conn *testutil.Connector, mutate ...func(*Options)) *Driver {
	t.Helper()
	opts := Options{
		Executable: conn.Executable,
		Config:     map[string]interface{}{"count": 2},
		Logger:     testutil.TestLogger(t),
		TempDir:    t.TempDir(),
		WaitDelay:  100 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&opts)
	}
	d, err := New(opts)
	require.NoError(t, err)
	return d
}

func drain(t *testing.T, ctx context.Context, s *MessageStream) ([]*protocol.Message, error) {
	t.Helper()
	var out []*protocol.Message
	for {
		msg, err := s.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
}

func TestSpecSurfacesLeadingDiagnostics(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	conn := testutil.WriteConnector(t, testutil.FakeConnector{Spec: []string{logLine, specLine}})
	var diagnostics []*protocol.Message
	d := newDriver(t, conn, func(o *Options) {
		o.Config = nil
		o.Diagnostics = func(m *protocol.Message) { diagnostics = append(diagnostics, m) }
	})

	spec, err := d.Spec(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://docs.example.com/faker", spec.DocumentationURL)
	assert.Contains(t, string(spec.ConnectionSpecification), `"count"`)

	require.Len(t, diagnostics, 1)
	assert.Equal(t, "starting", diagnostics[0].Log.Message)

	invocations := conn.Invocations(t)
	require.Len(t, invocations, 1)
	assert.Equal(t, "spec", strings.TrimSpace(invocations[0]))
	_, sawConfig := conn.Seen(t, "config")
	assert.False(t, sawConfig)
}

func TestActionsRequireConfig(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	conn := testutil.WriteConnector(t, testutil.FakeConnector{Discover: []string{catalogLine}, Check: []string{statusLine}})
	d := newDriver(t, conn, func(o *Options) { o.Config = nil })

	_, err := d.Discover(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Contains(t, err.Error(), "config is required for action discover")

	_, err = d.Check(ctx)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	assert.Empty(t, conn.Invocations(t), "connector must not be started")
}

func TestDiscoverAndCheck(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	conn := testutil.WriteConnector(t, testutil.FakeConnector{
		Discover: []string{"Resolving dependencies...", catalogLine},
		Check:    []string{statusLine},
	})
	d := newDriver(t, conn)

	streams, err := d.AvailableStreams(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "orders"}, streams)

	config, ok := conn.Seen(t, "config")
	require.True(t, ok)
	assert.JSONEq(t, `{"count":2}`, config)

	status, err := d.Check(ctx)
	require.NoError(t, err)
	assert.True(t, status.Succeeded())
}

func TestNoResultProduced(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	conn := testutil.WriteConnector(t, testutil.FakeConnector{Discover: []string{logLine}})
	d := newDriver(t, conn)

	_, err := d.Discover(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSourceProtocol))
	assert.Contains(t, err.Error(), "no result produced by discover")
}

func TestUnexpectedResultType(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	conn := testutil.WriteConnector(t, testutil.FakeConnector{Check: []string{catalogLine}})
	d := newDriver(t, conn)

	_, err := d.Check(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSourceProtocol))
}

func TestBuildConfiguredCatalog(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	conn := testutil.WriteConnector(t, testutil.FakeConnector{Discover: []string{catalogLine}})
	d := newDriver(t, conn)

	configured, err := d.BuildConfiguredCatalog(ctx, []string{"users"})
	require.NoError(t, err)
	require.Len(t, configured.Streams, 1)
	assert.Equal(t, protocol.SyncModeIncremental, configured.Streams[0].SyncMode)

	_, err = d.BuildConfiguredCatalog(ctx, []string{"invoices"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestExtractPreservesOrder(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	conn := testutil.WriteConnector(t, testutil.FakeConnector{
		Read: []string{
			record("users", 1),
			"",
			record("users", 2),
			`{"type":"STATE","state":{"data":{"cursor":2}}}`,
			"progress: 50%",
			record("orders", 3),
		},
	})
	d := newDriver(t, conn)

	stream, err := d.Extract(ctx, &protocol.ConfiguredCatalog{}, nil)
	require.NoError(t, err)
	defer stream.Close()

	msgs, err := drain(t, ctx, stream)
	require.NoError(t, err)

	var types []protocol.Type
	for _, m := range msgs {
		types = append(types, m.Type)
	}
	assert.Equal(t, []protocol.Type{
		protocol.TypeRecord, protocol.TypeRecord, protocol.TypeState, protocol.TypeLog, protocol.TypeRecord,
	}, types)
	assert.True(t, msgs[3].Synthetic)
	assert.Equal(t, "progress: 50%", msgs[3].Log.Message)
	assert.JSONEq(t, `{"id":3}`, string(msgs[4].Record.Data))

	_, sawState := conn.Seen(t, "state")
	assert.False(t, sawState, "empty state is not passed")
	_, sawCatalog := conn.Seen(t, "catalog")
	assert.True(t, sawCatalog)
}

func TestExtractStrictPolicy(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	conn := testutil.WriteConnector(t, testutil.FakeConnector{
		Read: []string{record("users", 1), "not json", record("users", 2)},
	})
	d := newDriver(t, conn, func(o *Options) { o.Policy = PolicyStrict })

	stream, err := d.Extract(ctx, &protocol.ConfiguredCatalog{}, nil)
	require.NoError(t, err)
	defer stream.Close()

	msgs, err := drain(t, ctx, stream)
	require.Error(t, err)
	assert.Len(t, msgs, 1)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSourceProtocol))
	line, _ := errors.Detail(err, "line")
	assert.Equal(t, "not json", line)
}

func TestExtractPassesCheckpoint(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	conn := testutil.WriteConnector(t, testutil.FakeConnector{Read: []string{record("users", 1)}})
	d := newDriver(t, conn)

	catalog := &protocol.ConfiguredCatalog{Streams: []protocol.ConfiguredStream{{
		Stream:              protocol.Stream{Name: "users"},
		SyncMode:            protocol.SyncModeIncremental,
		DestinationSyncMode: protocol.DestinationSyncModeAppend,
		CursorField:         []string{},
	}}}
	stream, err := d.Extract(ctx, catalog, json.RawMessage(`{"cursor":5}`))
	require.NoError(t, err)
	_, err = drain(t, ctx, stream)
	require.NoError(t, err)

	state, ok := conn.Seen(t, "state")
	require.True(t, ok)
	assert.JSONEq(t, `{"cursor":5}`, state)

	seenCatalog, ok := conn.Seen(t, "catalog")
	require.True(t, ok)
	assert.Contains(t, seenCatalog, `"sync_mode":"incremental"`)

	invocations := conn.Invocations(t)
	require.Len(t, invocations, 1)
	assert.True(t, strings.HasPrefix(invocations[0], "read --config "))
	assert.Contains(t, invocations[0], "--catalog ")
	assert.Contains(t, invocations[0], "--state ")
}

func TestTraceErrorFailsFast(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	conn := testutil.WriteConnector(t, testutil.FakeConnector{
		Read: []string{
			record("users", 1),
			`{"type":"TRACE","trace":{"type":"ERROR","emitted_at":1700000000000,"error":{"message":"quota exceeded"}}}`,
			record("users", 2),
		},
		ReadTail: "sleep 10",
	})
	d := newDriver(t, conn)

	stream, err := d.Extract(ctx, &protocol.ConfiguredCatalog{}, nil)
	require.NoError(t, err)
	defer stream.Close()

	start := time.Now()
	msg, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeRecord, msg.Type)

	_, err = stream.Next(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSourceProtocol))
	trace, ok := errors.Detail(err, "trace")
	require.True(t, ok)
	assert.Contains(t, trace, "quota exceeded")

	_, again := stream.Next(ctx)
	assert.Equal(t, err, again, "no message is yielded after a trace error")
	assert.Less(t, time.Since(start), 5*time.Second, "stream must not wait for the process to exit")
}

func TestNonZeroExit(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	conn := testutil.WriteConnector(t, testutil.FakeConnector{Read: []string{record("users", 1)}, ReadExit: 3})
	d := newDriver(t, conn)

	stream, err := d.Extract(ctx, &protocol.ConfiguredCatalog{}, nil)
	require.NoError(t, err)
	defer stream.Close()

	msgs, err := drain(t, ctx, stream)
	assert.Len(t, msgs, 1)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeResource))
	code, ok := errors.Detail(err, "exit_code")
	require.True(t, ok)
	assert.Equal(t, 3, code)
}

func TestCloseReleasesProcessAndArtifacts(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	tmp := t.TempDir()
	conn := testutil.WriteConnector(t, testutil.FakeConnector{Read: []string{record("users", 1)}, ReadTail: "sleep 10"})
	d := newDriver(t, conn, func(o *Options) { o.TempDir = tmp })

	stream, err := d.Extract(ctx, &protocol.ConfiguredCatalog{}, json.RawMessage(`{"cursor":1}`))
	require.NoError(t, err)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "pulsar-source-"))

	_, err = stream.Next(ctx)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	assert.Less(t, time.Since(start), 5*time.Second)

	entries, err = os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestContextCancellationStopsStream(t *testing.T) {
	conn := testutil.WriteConnector(t, testutil.FakeConnector{ReadTail: "sleep 10"})
	d := newDriver(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := d.Extract(ctx, &protocol.ConfiguredCatalog{}, nil)
	require.NoError(t, err)
	defer stream.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFirstRecord(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	conn := testutil.WriteConnector(t, testutil.FakeConnector{
		Read:     []string{logLine, record("users", 7), record("users", 8)},
		ReadTail: "sleep 10",
	})
	d := newDriver(t, conn)

	rec, err := d.FirstRecord(ctx, &protocol.ConfiguredCatalog{})
	require.NoError(t, err)
	assert.Equal(t, "users", rec.Stream)
	assert.JSONEq(t, `{"id":7}`, string(rec.Data))

	empty := testutil.WriteConnector(t, testutil.FakeConnector{Read: []string{logLine}})
	_, err = newDriver(t, empty).FirstRecord(ctx, &protocol.ConfiguredCatalog{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestStderrIsLogged(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	core, logs := observer.New(zapcore.InfoLevel)
	conn := testutil.WriteConnector(t, testutil.FakeConnector{
		Spec:   []string{specLine},
		Stderr: []string{"warning: deprecated option"},
	})
	d := newDriver(t, conn, func(o *Options) {
		o.Config = nil
		o.Logger = zap.New(core)
	})

	_, err := d.Spec(ctx)
	require.NoError(t, err)

	entries := logs.FilterMessage("warning: deprecated option").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "stderr", entries[0].ContextMap()["stream"])
}

func TestNewSelectsLauncher(t *testing.T) {
	tests := []struct {
		name   string
		opts   Options
		docker bool
	}{
		{"command line", Options{Executable: "python main.py"}, false},
		{"image reference as executable", Options{Executable: "airbyte/source-faker:0.1.4"}, true},
		{"docker image", Options{DockerImage: "ghcr.io/acme/source-crm:1.0"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.opts)
			require.NoError(t, err)
			_, isDocker := d.Launcher().(*DockerLauncher)
			assert.Equal(t, tt.docker, isDocker)
		})
	}

	_, err := New(Options{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = New(Options{Executable: "a", DockerImage: "b"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = New(Options{Executable: "a", Policy: "loose"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
