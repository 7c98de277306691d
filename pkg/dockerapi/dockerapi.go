// Package dockerapi wraps the two invocation modes the engine supports:
// shelling out to the docker CLI (the default, matching the orchestrator's
// original subprocess-based design) and talking to the Docker Engine HTTP
// API directly via github.com/docker/docker/client (used for image builds,
// where a streamed tar body is the natural fit).
package dockerapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"

	"github.com/dauaaa/containernet/pkg/procrunner"
)

// CLI issues docker subcommands as subprocesses via pkg/procrunner. This is
// the engine's default invocation mode.
type CLI struct{}

// NewCLI returns a CLI-mode docker driver.
func NewCLI() *CLI { return &CLI{} }

// NetworkCreate runs `docker network create [--internal] <args...> <name>`.
func (c *CLI) NetworkCreate(ctx context.Context, name string, internal bool, extraArgs []string) error {
	args := []string{"network", "create"}
	if internal {
		args = append(args, "--internal")
	}
	args = append(args, extraArgs...)
	args = append(args, name)

	res, err := procrunner.RunToCompletion(ctx, "docker", args)
	if err != nil {
		return fmt.Errorf("dockerapi: network create %s: %w", name, err)
	}
	return procrunner.AssertSuccess("docker", args, res)
}

// NetworkRemove runs `docker network rm <name>`.
func (c *CLI) NetworkRemove(ctx context.Context, name string) error {
	args := []string{"network", "rm", name}
	res, err := procrunner.RunToCompletion(ctx, "docker", args)
	if err != nil {
		return fmt.Errorf("dockerapi: network rm %s: %w", name, err)
	}
	return procrunner.AssertSuccess("docker", args, res)
}

// ContainerCreateSpec describes a `docker create` invocation.
type ContainerCreateSpec struct {
	Name          string
	NetworkName   string
	Hostname      string
	Image         string
	Volumes       []VolumeMount // host:container
	Env           []string
	Entrypoint    string
	Args          []string
	ExtraCreateArgs []string
	AllocateTTY   bool
}

// VolumeMount is a single host:container volume bind.
type VolumeMount struct {
	HostPath      string
	ContainerPath string
}

// buildCreateArgs renders the `docker create` argv for spec. Split out from
// ContainerCreate so the argument shape can be tested without a daemon.
func buildCreateArgs(spec ContainerCreateSpec) []string {
	args := []string{"create", "--rm"}
	if spec.NetworkName != "" {
		args = append(args, "--network", spec.NetworkName)
	}
	if spec.Hostname != "" {
		args = append(args, "--hostname", spec.Hostname)
	}
	if spec.Name != "" {
		args = append(args, "--name", spec.Name)
	}
	for _, v := range spec.Volumes {
		args = append(args, "--volume", fmt.Sprintf("%s:%s", v.HostPath, v.ContainerPath))
	}
	for _, e := range spec.Env {
		args = append(args, "--env", e)
	}
	if spec.AllocateTTY {
		args = append(args, "-t")
	}
	args = append(args, spec.ExtraCreateArgs...)
	args = append(args, spec.Image)
	if spec.Entrypoint != "" {
		args = append(args, spec.Entrypoint)
	}
	args = append(args, spec.Args...)
	return args
}

// ContainerCreate runs `docker create` and returns the created container's
// id, read from the trailing-newline-stripped stdout.
func (c *CLI) ContainerCreate(ctx context.Context, spec ContainerCreateSpec) (string, error) {
	args := buildCreateArgs(spec)

	res, err := procrunner.RunToCompletion(ctx, "docker", args)
	if err != nil {
		return "", fmt.Errorf("dockerapi: container create %s: %w", spec.Name, err)
	}
	if err := procrunner.AssertSuccess("docker", args, res); err != nil {
		return "", err
	}

	id := strings.TrimSuffix(string(res.Stdout), "\n")
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("dockerapi: container create %s: empty id in output", spec.Name)
	}
	return id, nil
}

// ContainerStartAttached starts a supervised `docker start --attach <id>`
// process, streaming its stdout/stderr to the given writers.
func (c *CLI) ContainerStartAttached(ctx context.Context, id string, stdout, stderr io.Writer) (*procrunner.Handle, error) {
	h, err := procrunner.Start(ctx, "docker", []string{"start", "--attach", id}, stdout, stderr)
	if err != nil {
		return nil, fmt.Errorf("dockerapi: container start %s: %w", id, err)
	}
	return h, nil
}

// ContainerRemoveForce runs `docker rm -f <id>`, ignoring a nonexistent
// container (it may have already been removed).
func (c *CLI) ContainerRemoveForce(ctx context.Context, id string) error {
	args := []string{"rm", "-f", id}
	res, err := procrunner.RunToCompletion(ctx, "docker", args)
	if err != nil {
		return fmt.Errorf("dockerapi: container rm -f %s: %w", id, err)
	}
	if !res.Successful() && !strings.Contains(string(res.Stderr), "No such container") {
		return procrunner.AssertSuccess("docker", args, res)
	}
	return nil
}

// buildExecArgs renders the `docker exec` argv for an interactive session
// against id. Split out from ContainerExecInteractive for the same reason
// buildCreateArgs is split out: testable without a daemon.
func buildExecArgs(id string, tty bool, cmd []string) []string {
	args := []string{"exec", "-i"}
	if tty {
		args = append(args, "-t")
	}
	args = append(args, id)
	args = append(args, cmd...)
	return args
}

// ContainerExecInteractive runs `docker exec` against an already-running
// container, wiring the child's stdio directly to the calling process's
// (procrunner.Start doesn't forward stdin, which an interactive exec
// session needs). Used by cmd/autoexec to drop a caller into a shell
// inside a matched container.
func (c *CLI) ContainerExecInteractive(ctx context.Context, id string, tty bool, cmd []string) error {
	args := buildExecArgs(id, tty, cmd)
	execCmd := exec.CommandContext(ctx, "docker", args...)
	execCmd.Stdin = os.Stdin
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	if err := execCmd.Run(); err != nil {
		return fmt.Errorf("dockerapi: exec %s: %w", id, err)
	}
	return nil
}

// InspectIPAddr runs `docker inspect` and extracts the container's primary
// IP address for the given network.
func (c *CLI) InspectIPAddr(ctx context.Context, id, networkName string) (string, error) {
	format := fmt.Sprintf("{{.NetworkSettings.Networks.%s.IPAddress}}", networkName)
	args := []string{"inspect", "--format", format, id}
	res, err := procrunner.RunToCompletion(ctx, "docker", args)
	if err != nil {
		return "", fmt.Errorf("dockerapi: inspect %s: %w", id, err)
	}
	if err := procrunner.AssertSuccess("docker", args, res); err != nil {
		return "", err
	}
	ip := strings.TrimSpace(string(res.Stdout))
	if ip == "" || ip == "<no value>" {
		return "", fmt.Errorf("dockerapi: inspect %s: no ip assigned yet", id)
	}
	return ip, nil
}

// APIClient wraps github.com/docker/docker/client for image builds, the
// one place the engine talks to the Docker Engine HTTP API directly rather
// than shelling out.
type APIClient struct {
	cli *client.Client
}

// NewAPIClient connects using the standard environment (DOCKER_HOST, TLS
// vars, ...), negotiating the API version with the daemon.
func NewAPIClient() (*APIClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("dockerapi: new client: %w", err)
	}
	return &APIClient{cli: cli}, nil
}

// BuildImage POSTs the tar-archive body with the given build options and
// scans the streamed response for the final message's aux.id, returning
// the built image's identifier.
func (a *APIClient) BuildImage(ctx context.Context, buildCtx io.Reader, opts types.ImageBuildOptions) (string, error) {
	resp, err := a.cli.ImageBuild(ctx, buildCtx, opts)
	if err != nil {
		return "", fmt.Errorf("dockerapi: image build: %w", err)
	}
	defer resp.Body.Close()

	var lastID string
	scan := bufio.NewScanner(resp.Body)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scan.Scan() {
		var msg struct {
			Stream string `json:"stream"`
			Aux    struct {
				ID string `json:"ID"`
			} `json:"aux"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(scan.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return "", fmt.Errorf("dockerapi: image build: %s", msg.Error)
		}
		if msg.Aux.ID != "" {
			lastID = msg.Aux.ID
		}
	}
	if err := scan.Err(); err != nil {
		return "", fmt.Errorf("dockerapi: image build: reading response: %w", err)
	}
	if lastID == "" {
		return "", fmt.Errorf("dockerapi: image built without id")
	}
	return lastID, nil
}

// Close releases the underlying HTTP client's idle connections.
func (a *APIClient) Close() error {
	return a.cli.Close()
}

// ContainerList returns the containers the daemon lists for opts; used by
// cmd/autoexec to find a container by name prefix.
func (a *APIClient) ContainerList(ctx context.Context, opts types.ContainerListOptions) ([]types.Container, error) {
	return a.cli.ContainerList(ctx, opts)
}

// defaultBuildTimeout bounds a single image build.
const defaultBuildTimeout = 10 * time.Minute

// DefaultBuildTimeout exposes defaultBuildTimeout for callers constructing
// their own context.
func DefaultBuildTimeout() time.Duration { return defaultBuildTimeout }
