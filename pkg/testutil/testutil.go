// Package testutil provides testing utilities for Pulsar
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// FakeConnector scripts the stdout of a connector executable per action.
type FakeConnector struct {
	Spec     []string
	Discover []string
	Check    []string
	Read     []string
	// ReadTail is shell code run after the read lines, e.g. "sleep 30".
	ReadTail string
	// ReadExit is the exit status of the read action.
	ReadExit int
	// Stderr lines are written to standard error by every action.
	Stderr []string
}

// Connector is a fake connector written to disk.
type Connector struct {
	// Executable is the command line to hand to the source driver.
	Executable string
	dir        string
}

// WriteConnector writes f as a shell script under t.TempDir(). Each run
// appends "<action> <args>" to args.log next to the script and copies the
// config, catalog and state artifacts it receives to *.seen files.
func WriteConnector(t *testing.T, f FakeConnector) *Connector {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "connector.sh")
	require.NoError(t, os.WriteFile(path, []byte(f.script()), 0o644))

	// Running through sh avoids ETXTBSY when tests spawn right after writing.
	return &Connector{Executable: "sh " + path, dir: dir}
}

// Invocations returns the logged "<action> <args>" lines.
func (c *Connector) Invocations(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(c.dir, "args.log"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

// Seen returns the content of the artifact copied for flag ("config",
// "catalog" or "state") and whether the connector received it.
func (c *Connector) Seen(t *testing.T, flag string) (string, bool) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(c.dir, flag+".seen"))
	if os.IsNotExist(err) {
		return "", false
	}
	require.NoError(t, err)
	return string(data), true
}

func (f FakeConnector) script() string {
	var b strings.Builder
	b.WriteString(`#!/bin/sh
dir=$(dirname "$0")
action="$1"
shift
echo "$action $*" >> "$dir/args.log"
while [ $# -gt 0 ]; do
  case "$1" in
    --config) cp "$2" "$dir/config.seen"; shift 2 ;;
    --catalog) cp "$2" "$dir/catalog.seen"; shift 2 ;;
    --state) cp "$2" "$dir/state.seen"; shift 2 ;;
    *) shift ;;
  esac
done
`)
	if len(f.Stderr) > 0 {
		b.WriteString(printf(f.Stderr) + " >&2\n")
	}
	b.WriteString("case \"$action\" in\n")
	b.WriteString("  spec) " + printf(f.Spec) + " ;;\n")
	b.WriteString("  discover) " + printf(f.Discover) + " ;;\n")
	b.WriteString("  check) " + printf(f.Check) + " ;;\n")
	b.WriteString("  read)\n    " + printf(f.Read) + "\n")
	if f.ReadTail != "" {
		b.WriteString("    " + f.ReadTail + "\n")
	}
	b.WriteString("    exit " + strconv.Itoa(f.ReadExit) + " ;;\n")
	b.WriteString("esac\n")
	return b.String()
}

func printf(lines []string) string {
	if len(lines) == 0 {
		return ":"
	}
	quoted := make([]string, len(lines))
	for i, line := range lines {
		quoted[i] = "'" + strings.ReplaceAll(line, "'", `'\''`) + "'"
	}
	return `printf '%s\n' ` + strings.Join(quoted, " ")
}
