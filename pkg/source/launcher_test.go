package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDockerLauncher(t *testing.T) {
	l := &DockerLauncher{Image: "airbyte/source-faker:0.1.4"}
	cmd := l.Command(context.Background(), "/tmp/pulsar-source-1", []string{"read", "--config", "/mnt/temp/config.json"})

	assert.Equal(t, []string{
		"docker", "run", "--rm", "-i",
		"--volume", "/tmp/pulsar-source-1:/mnt/temp",
		"airbyte/source-faker:0.1.4",
		"read", "--config", "/mnt/temp/config.json",
	}, cmd.Args)
	assert.Equal(t, "/mnt/temp/catalog.json", l.ArtifactPath("/tmp/pulsar-source-1", "catalog.json"))
}

func TestExecutableLauncher(t *testing.T) {
	l := &ExecutableLauncher{Executable: "python main.py"}
	cmd := l.Command(context.Background(), "/tmp/x", []string{"spec"})

	assert.Equal(t, []string{"/bin/sh", "-c", `exec python main.py "$@"`, "pulsar-source", "spec"}, cmd.Args)
	assert.Equal(t, "/tmp/x/config.json", l.ArtifactPath("/tmp/x", "config.json"))
}

func TestIsDockerImage(t *testing.T) {
	for ref, want := range map[string]bool{
		"airbyte/source-faker":         true,
		"airbyte/source-faker:0.1.4":   true,
		"airbyte/source-google-sheets": true,
		"airbyte/destination-bigquery": false,
		"python main.py":               false,
		"./source-faker":               false,
	} {
		assert.Equal(t, want, IsDockerImage(ref), ref)
	}
}
