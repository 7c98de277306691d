// Package containernet is the core of the engine: it turns a set of
// ContainerSpecs into a Docker network plus atomically-managed containers,
// supervises them to completion or timeout, and tears everything down on
// request or on process exit.
package containernet

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dauaaa/containernet/pkg/dockerapi"
	"github.com/dauaaa/containernet/pkg/fileopts"
)

// Engine owns a single Docker network and every ContainerSpec added to it.
// Names are kept in insertion order (e.order) alongside a lookup map, since
// the original orchestrator's run/wait operations are order-sensitive for
// logging even though completion is concurrent.
type Engine struct {
	mu sync.Mutex

	ID          uuid.UUID
	NetworkName string
	networkArgs []string

	cli       *dockerapi.CLI
	apiClient *dockerapi.APIClient

	networkActive bool

	// dockerfileWriteDir is the scratch directory a Dockerfile::Contents
	// build writes its rendered Dockerfile into. AddContainer rejects any
	// spec needing this (spec.Dockerfile's base is SourceContents) unless
	// it's configured.
	dockerfileWriteDir string

	order      []string
	containers map[string]*ContainerState

	commonVolumes        []dockerapi.VolumeMount
	commonEntrypointArgs []string
}

// NewEngine constructs an Engine that will create a Docker network named
// networkName (network_args are extra `docker network create` flags, e.g.
// `--internal`). dockerfileWriteDir is the scratch directory used for
// Dockerfile::Contents builds; pass "" if no container added to this
// engine will use one.
func NewEngine(networkName, dockerfileWriteDir string, networkArgs ...string) *Engine {
	return &Engine{
		ID:                 uuid.New(),
		NetworkName:        networkName,
		networkArgs:        networkArgs,
		dockerfileWriteDir: dockerfileWriteDir,
		cli:                dockerapi.NewCLI(),
		containers:         make(map[string]*ContainerState),
	}
}

// AddContainer registers spec under the engine, in PreActive phase. Names
// must be unique within the engine. A spec whose Dockerfile is built from
// inline contents requires dockerfileWriteDir to have been configured on
// the engine.
func (e *Engine) AddContainer(spec ContainerSpec) error {
	if err := spec.validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.containers[spec.Name]; exists {
		return newErr(Validation, fmt.Sprintf("container %s already added", spec.Name), nil)
	}
	if spec.Dockerfile != nil && spec.Dockerfile.BaseRequiresWriteDir() && e.dockerfileWriteDir == "" {
		return newErr(Validation, fmt.Sprintf("container %s: dockerfile built from contents requires a configured dockerfile_write_dir", spec.Name), nil)
	}

	spec.Volumes = append(append([]dockerapi.VolumeMount{}, e.commonVolumes...), spec.Volumes...)
	spec.Args = append(append([]string{}, e.commonEntrypointArgs...), spec.Args...)

	e.containers[spec.Name] = newContainerState(e.cli, e.NetworkName, spec)
	e.order = append(e.order, spec.Name)
	return nil
}

// AddCommonVolumes registers volumes mounted into every container added
// afterward. Containers added earlier are unaffected.
func (e *Engine) AddCommonVolumes(vols ...dockerapi.VolumeMount) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commonVolumes = append(e.commonVolumes, vols...)
}

// AddCommonEntrypointArgs registers args prepended to every container's
// entrypoint args added afterward.
func (e *Engine) AddCommonEntrypointArgs(args ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commonEntrypointArgs = append(e.commonEntrypointArgs, args...)
}

// ActiveNames returns the names of containers currently in the Active
// phase.
func (e *Engine) ActiveNames() []string {
	return e.namesInPhase(Active)
}

// InactiveNames returns the names of containers in PreActive or
// PostActive (i.e. not currently running).
func (e *Engine) InactiveNames() []string {
	e.mu.Lock()
	order := append([]string{}, e.order...)
	e.mu.Unlock()

	var out []string
	for _, name := range order {
		cs := e.containerByName(name)
		phase, _, _, _ := cs.snapshot()
		if phase != Active {
			out = append(out, name)
		}
	}
	return out
}

func (e *Engine) namesInPhase(phase Phase) []string {
	e.mu.Lock()
	order := append([]string{}, e.order...)
	e.mu.Unlock()

	var out []string
	for _, name := range order {
		cs := e.containerByName(name)
		p, _, _, _ := cs.snapshot()
		if p == phase {
			out = append(out, name)
		}
	}
	return out
}

// ActiveContainerIDs maps each Active container's name to its Docker id.
func (e *Engine) ActiveContainerIDs() map[string]string {
	e.mu.Lock()
	order := append([]string{}, e.order...)
	e.mu.Unlock()

	out := make(map[string]string)
	for _, name := range order {
		cs := e.containerByName(name)
		phase, id, _, _ := cs.snapshot()
		if phase == Active {
			out[name] = id
		}
	}
	return out
}

func (e *Engine) containerByName(name string) *ContainerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.containers[name]
}

func (e *Engine) ensureNetwork(ctx context.Context) error {
	e.mu.Lock()
	if e.networkActive {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if err := e.cli.NetworkCreate(ctx, e.NetworkName, false, e.networkArgs); err != nil {
		return newErr(ExternalCommand, "create network", err)
	}

	e.mu.Lock()
	e.networkActive = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) ensureAPIClient() (*dockerapi.APIClient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.apiClient != nil {
		return e.apiClient, nil
	}
	cli, err := dockerapi.NewAPIClient()
	if err != nil {
		return nil, newErr(Api, "connect to docker engine api", err)
	}
	e.apiClient = cli
	return cli, nil
}

// RunAll runs every container added to the engine, in insertion order,
// via Run (sequential create, then concurrent start).
func (e *Engine) RunAll(ctx context.Context) error {
	e.mu.Lock()
	order := append([]string{}, e.order...)
	e.mu.Unlock()
	return e.Run(ctx, order)
}

// Run validates names, brings up the network (if not already active), and
// runs each container in two sequential phases matching the original
// orchestrator's run_internal: first every container is created, in
// names order, so images are pulled/built before anything is started;
// then every created container is started concurrently. A create failure
// at index i only rolls back names[0..i] (the ones actually created so
// far); a start failure rolls back every name in the call, since by that
// point every container has already been created. Pre-validation (name
// existence/uniqueness/phase, and a cheap Dockerfile::Path existence
// check) happens before ensureNetwork, so a bad argument never causes an
// external side effect.
func (e *Engine) Run(ctx context.Context, names []string) error {
	seen := make(map[string]struct{}, len(names))
	states := make([]*ContainerState, len(names))
	for i, name := range names {
		if _, dup := seen[name]; dup {
			return newErr(Validation, fmt.Sprintf("container %s supplied twice", name), nil)
		}
		seen[name] = struct{}{}

		cs := e.containerByName(name)
		if cs == nil {
			return newErr(Validation, fmt.Sprintf("container %s not found", name), nil)
		}
		phase, _, _, _ := cs.snapshot()
		if phase != PreActive {
			return newErr(Validation, fmt.Sprintf("container %s is not in pre_active phase", name), nil)
		}
		if cs.spec.Dockerfile != nil {
			if err := cs.spec.Dockerfile.VerifyBasePath(); err != nil {
				return newErr(Validation, fmt.Sprintf("container %s: dockerfile base", name), err)
			}
		}
		states[i] = cs
	}

	if err := e.ensureNetwork(ctx); err != nil {
		return err
	}

	for i, name := range names {
		if err := e.createInternal(ctx, name, states[i]); err != nil {
			for _, rollbackName := range names[:i] {
				_ = e.Terminate(context.Background(), []string{rollbackName})
			}
			return newErr(ExternalCommand, fmt.Sprintf("run containers: create %s", name), err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			return e.startInternal(gctx, name, states[i])
		})
	}
	if err := g.Wait(); err != nil {
		if tErr := e.TerminateContainers(context.Background(), names); tErr != nil {
			return newErr(ExternalCommand, "run containers", fmt.Errorf("%w (cleanup also failed: %v)", err, tErr))
		}
		return newErr(ExternalCommand, "run containers", err)
	}
	return nil
}

// createInternal takes one container from PreActive through image
// resolution (building it if a Dockerfile was given) and `docker create`,
// recording its id. It does not start the container.
func (e *Engine) createInternal(ctx context.Context, name string, cs *ContainerState) error {
	cs.mu.Lock()
	spec := cs.spec
	cs.mu.Unlock()

	image := spec.Image
	if spec.Dockerfile != nil {
		if spec.Dockerfile.BaseRequiresWriteDir() {
			scratch := fileopts.Write2(e.dockerfileWriteDir, "__tmp.dockerfile")
			if _, err := scratch.Preacquire(); err != nil {
				return newErr(Io, fmt.Sprintf("container %s: acquire dockerfile_write_dir", name), err)
			}
		}
		apiClient, err := e.ensureAPIClient()
		if err != nil {
			return err
		}
		built, err := spec.Dockerfile.BuildImage(ctx, apiClient)
		if err != nil {
			return newErr(Api, fmt.Sprintf("container %s: build image", name), err)
		}
		image = built
	}

	extraArgs := append([]string{}, spec.ExtraCreateArgs...)
	for _, p := range spec.Ports {
		extraArgs = append(extraArgs, "--publish", p.dockerArg())
	}

	createSpec := dockerapi.ContainerCreateSpec{
		Name:            name,
		NetworkName:     e.NetworkName,
		Hostname:        name,
		Image:           image,
		Volumes:         spec.Volumes,
		Env:             spec.Env,
		Entrypoint:      spec.Entrypoint,
		Args:            spec.Args,
		ExtraCreateArgs: extraArgs,
		AllocateTTY:     spec.AllocateTTY,
	}

	id, err := e.cli.ContainerCreate(ctx, createSpec)
	if err != nil {
		return newErr(ExternalCommand, fmt.Sprintf("container %s: create", name), err)
	}

	cs.mu.Lock()
	cs.containerID = id
	cs.mu.Unlock()
	return nil
}

// startInternal opens a created container's log files (if configured) and
// starts it attached, publishing the Active RunState.
func (e *Engine) startInternal(ctx context.Context, name string, cs *ContainerState) error {
	cs.mu.Lock()
	spec := cs.spec
	id := cs.containerID
	cs.mu.Unlock()

	if spec.StdoutLog != nil {
		fh, err := spec.StdoutLog.AcquireFile()
		if err != nil {
			return newErr(Io, fmt.Sprintf("container %s: open stdout log", name), err)
		}
		cs.mu.Lock()
		cs.stdoutFile = fh
		cs.mu.Unlock()
	}
	if spec.StderrLog != nil {
		fh, err := spec.StderrLog.AcquireFile()
		if err != nil {
			return newErr(Io, fmt.Sprintf("container %s: open stderr log", name), err)
		}
		cs.mu.Lock()
		cs.stderrFile = fh
		cs.mu.Unlock()
	}

	cs.mu.Lock()
	var stdoutW, stderrW io.Writer
	if cs.stdoutFile != nil {
		stdoutW = cs.stdoutFile
	}
	if cs.stderrFile != nil {
		stderrW = cs.stderrFile
	}
	cs.mu.Unlock()

	handle, err := e.cli.ContainerStartAttached(ctx, id, stdoutW, stderrW)
	if err != nil {
		return newErr(ExternalCommand, fmt.Sprintf("container %s: start", name), err)
	}

	cs.mu.Lock()
	cs.run = RunState{Phase: Active, Handle: handle}
	cs.mu.Unlock()
	return nil
}
