package source

import (
	"context"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
)

// dockerImagePattern recognises connector references that name a published
// connector image rather than a local command.
var dockerImagePattern = regexp.MustCompile(`^airbyte/source-[a-zA-Z-]+:?[\w.]*$`)

// containerArtifactDir is where the artifact directory is mounted inside a
// connector container.
const containerArtifactDir = "/mnt/temp"

// Launcher turns a connector action into a process. Artifacts are written
// to a host directory; ArtifactPath returns the path by which the process
// sees one of them.
type Launcher interface {
	Command(ctx context.Context, artifactDir string, args []string) *exec.Cmd
	ArtifactPath(artifactDir, name string) string
	String() string
}

// ExecutableLauncher runs a local command line. The command line is
// interpreted by /bin/sh, so it may carry its own arguments
// ("python main.py") and environment assignments.
type ExecutableLauncher struct {
	Executable string
}

// Command implements Launcher.
func (l *ExecutableLauncher) Command(ctx context.Context, _ string, args []string) *exec.Cmd {
	shellArgs := append([]string{"-c", `exec ` + l.Executable + ` "$@"`, "pulsar-source"}, args...)
	return exec.CommandContext(ctx, "/bin/sh", shellArgs...)
}

// ArtifactPath implements Launcher.
func (l *ExecutableLauncher) ArtifactPath(artifactDir, name string) string {
	return filepath.Join(artifactDir, name)
}

func (l *ExecutableLauncher) String() string { return l.Executable }

// DockerLauncher runs a connector image with the artifact directory mounted
// at /mnt/temp.
type DockerLauncher struct {
	Image string
	// Binary is the docker client to invoke, "docker" when empty.
	Binary string
}

// Command implements Launcher.
func (l *DockerLauncher) Command(ctx context.Context, artifactDir string, args []string) *exec.Cmd {
	binary := l.Binary
	if binary == "" {
		binary = "docker"
	}
	dockerArgs := append([]string{
		"run", "--rm", "-i",
		"--volume", artifactDir + ":" + containerArtifactDir,
		l.Image,
	}, args...)
	return exec.CommandContext(ctx, binary, dockerArgs...)
}

// ArtifactPath implements Launcher.
func (l *DockerLauncher) ArtifactPath(_, name string) string {
	return path.Join(containerArtifactDir, name)
}

func (l *DockerLauncher) String() string { return l.Image }

// IsDockerImage reports whether ref names a connector image.
func IsDockerImage(ref string) bool {
	return dockerImagePattern.MatchString(ref)
}
