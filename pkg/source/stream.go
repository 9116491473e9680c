package source

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/metrics"
	"github.com/ajitpratap0/pulsar/pkg/protocol"
)

// ParsePolicy decides what happens to stdout lines that are not protocol messages.
type ParsePolicy string

const (
	// PolicyLenient surfaces non-protocol lines as synthetic LOG messages.
	PolicyLenient ParsePolicy = "lenient"
	// PolicyStrict fails the stream on the first non-protocol line.
	PolicyStrict ParsePolicy = "strict"
)

// ParseParsePolicy validates a policy name. The empty string is lenient.
func ParseParsePolicy(s string) (ParsePolicy, error) {
	switch ParsePolicy(s) {
	case "", PolicyLenient:
		return PolicyLenient, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "unknown parse policy %q", s).
		WithDetail("allowed", []string{string(PolicyLenient), string(PolicyStrict)})
}

const (
	initialLineBuffer = 64 * 1024
	maxLineSize       = 128 * 1024 * 1024
)

type item struct {
	msg *protocol.Message
	err error
}

// MessageStream is the output of one connector process. It is consumed by
// a single goroutine through Next and must be closed; Close kills the
// process if it is still running and removes its artifacts.
//
// A background reader parses stdout one line at a time and hands each
// message over an unbuffered channel, so the process is never read ahead
// of the consumer by more than one line.
type MessageStream struct {
	action string
	policy ParsePolicy
	logger *zap.Logger

	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr *zapio.Writer
	dir    string

	items chan item
	stop  chan struct{}
	done  chan struct{}

	err       error
	closeOnce sync.Once
	closeErr  error
}

func newMessageStream(action string, policy ParsePolicy, logger *zap.Logger, cmd *exec.Cmd, cancel context.CancelFunc, stdout io.ReadCloser, stderr *zapio.Writer, dir string) *MessageStream {
	s := &MessageStream{
		action: action,
		policy: policy,
		logger: logger,
		cmd:    cmd,
		cancel: cancel,
		stdout: stdout,
		stderr: stderr,
		dir:    dir,
		items:  make(chan item),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// Next returns the next message in emission order, or io.EOF once the
// process has finished cleanly. A TRACE error ends the stream at once with
// a source protocol error carrying the trace payload in Details["trace"];
// the process is killed without waiting for it to exit. After any error
// every later call returns the same error.
func (s *MessageStream) Next(ctx context.Context) (*protocol.Message, error) {
	if s.err != nil {
		return nil, s.err
	}

	select {
	case it, ok := <-s.items:
		switch {
		case !ok:
			return nil, s.fail(io.EOF)
		case it.err != nil:
			return nil, s.fail(it.err)
		}
		msg := it.msg
		metrics.MessagesRead.WithLabelValues(string(msg.Type)).Inc()
		if msg.Trace != nil && msg.Trace.IsError() {
			err := errors.Newf(errors.ErrorTypeSourceProtocol, "source reported an error during %s", s.action).
				WithDetail("trace", string(msg.Trace.Payload))
			return nil, s.fail(err)
		}
		return msg, nil
	case <-ctx.Done():
		return nil, s.fail(ctx.Err())
	}
}

func (s *MessageStream) fail(err error) error {
	s.err = err
	if closeErr := s.Close(); closeErr != nil && err == io.EOF {
		s.err = closeErr
	}
	return s.err
}

// Close terminates the process if it is still running, waits for the
// reader to exit and removes the artifact directory. It is idempotent.
func (s *MessageStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.cancel()
		// Unblocks the reader when a child of the connector still holds the pipe open.
		_ = s.stdout.Close()
		<-s.done
		if err := os.RemoveAll(s.dir); err != nil {
			s.closeErr = errors.Wrap(err, errors.ErrorTypeResource, "failed to remove source artifacts").
				WithDetail("dir", s.dir)
		}
	})
	return s.closeErr
}

func (s *MessageStream) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *MessageStream) send(it item) bool {
	select {
	case s.items <- it:
		return true
	case <-s.stop:
		return false
	}
}

func (s *MessageStream) readLoop() {
	defer close(s.done)
	defer close(s.items)

	// A parse failure is delivered before waiting: the consumer's Close is
	// what stops a process that is still writing.
	scanErr := s.scan()
	if scanErr != nil {
		s.send(item{err: scanErr})
	}
	waitErr := s.cmd.Wait()
	_ = s.stderr.Close()

	if scanErr != nil || waitErr == nil || s.stopped() {
		return
	}
	err := errors.Wrapf(waitErr, errors.ErrorTypeResource, "source exited with an error after %s", s.action)
	var exitErr *exec.ExitError
	if stderrors.As(waitErr, &exitErr) {
		err = err.WithDetail("exit_code", exitErr.ExitCode())
	}
	s.send(item{err: err})
}

// scan reads stdout until EOF, a parse failure or stop. It returns the
// error to deliver, if any.
func (s *MessageStream) scan() error {
	scanner := bufio.NewScanner(s.stdout)
	scanner.Buffer(make([]byte, initialLineBuffer), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		msg, err := protocol.Decode(line)
		if stderrors.Is(err, protocol.ErrNotProtocol) {
			if s.policy == PolicyStrict {
				return errors.Newf(errors.ErrorTypeSourceProtocol, "source emitted a non-protocol line during %s", s.action).
					WithDetail("line", string(line))
			}
			s.logger.Info("non-protocol source output", zap.String("line", string(line)))
			metrics.NoiseLines.Inc()
			msg = protocol.NoiseLog(line)
		} else if err != nil {
			return err
		}

		if !s.send(item{msg: msg}) {
			return nil
		}
	}

	if err := scanner.Err(); err != nil && !s.stopped() {
		return errors.Wrap(err, errors.ErrorTypeResource, "failed to read source output")
	}
	return nil
}
