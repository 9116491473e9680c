package pipeline

import (
	"context"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/pulsar/pkg/config"
	"github.com/ajitpratap0/pulsar/pkg/destination"
	"github.com/ajitpratap0/pulsar/pkg/errors"
)

// Kind names where a pipeline is executed.
type Kind string

const (
	// KindDirect runs the pipeline in the current process.
	KindDirect Kind = "direct"
	// KindCloudRunJob runs the pipeline image as a Cloud Run job. Its
	// configuration is kept in the connection for the remote launcher.
	KindCloudRunJob Kind = "cloud_run_job"
)

// Kinds lists every runner kind.
func Kinds() []Kind {
	return []Kind{KindDirect, KindCloudRunJob}
}

// KindNames returns Kinds as strings.
func KindNames() []string {
	names := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		names = append(names, string(k))
	}
	return names
}

// ParseKind validates a runner type. The empty string is direct.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return KindDirect, nil
	}
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "runner type %q is not supported, must be one of %s", s, strings.Join(KindNames(), ", "))
}

// Runner executes a pipeline.
type Runner interface {
	Run(ctx context.Context, p *Pipeline) (*Result, error)
}

// DirectRunner runs pipelines in the current process.
type DirectRunner struct{}

// Run implements Runner.
func (DirectRunner) Run(ctx context.Context, p *Pipeline) (*Result, error) {
	return p.Run(ctx)
}

// NewRunner returns the runner selected by section. Only direct execution
// is available in this process.
func NewRunner(section config.RunnerSection) (Runner, error) {
	kind, err := ParseKind(section.Type)
	if err != nil {
		return nil, err
	}
	if kind != KindDirect {
		return nil, errors.Newf(errors.ErrorTypeConfig, "runner %q executes remotely and cannot run in this process", kind).
			WithDetail("supported", []string{string(KindDirect)})
	}
	return DirectRunner{}, nil
}

// SampleFields returns the annotated configuration entries of kind.
func SampleFields(kind Kind) ([]destination.SampleField, error) {
	switch kind {
	case KindDirect:
		return nil, nil
	case KindCloudRunJob:
		return []destination.SampleField{
			{Name: "project", Value: "", Comment: "REQUIRED | string | GCP project where the job is deployed"},
			{Name: "region", Value: "europe-west1", Comment: "REQUIRED | string | Region of the job"},
			{Name: "service_account", Value: "", Comment: "REQUIRED | string | Service account email the job runs as"},
			{Name: "env_vars", Value: map[string]string{}, Comment: "OPTIONAL | object | Environment variables set on the job container"},
			{Name: "memory", Value: "1024Mi", Comment: "OPTIONAL | string | Memory limit of the job container"},
			{Name: "cpu", Value: "1", Comment: "OPTIONAL | string | CPU limit of the job container"},
			{Name: "timeout", Value: "86400s", Comment: "OPTIONAL | string | Maximum run duration of a job execution"},
			{Name: "max_retries", Value: 0, Comment: "OPTIONAL | integer | Number of retries of a failed execution"},
		}, nil
	default:
		_, err := ParseKind(string(kind))
		if err == nil {
			err = errors.Newf(errors.ErrorTypeInternal, "no sample configuration for runner %q", kind)
		}
		return nil, err
	}
}

// SampleConfig renders the sample configuration of kind, or nil when the
// runner takes none.
func SampleConfig(kind Kind) (*yaml.Node, error) {
	fields, err := SampleFields(kind)
	if err != nil || len(fields) == 0 {
		return nil, err
	}
	return destination.SampleNode(fields)
}
