package containernet

import (
	"context"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dauaaa/containernet/pkg/dockerapi"
	"github.com/dauaaa/containernet/pkg/procrunner"
)

// Phase is a container's position in its PreActive -> Active -> PostActive
// lifecycle.
type Phase int

const (
	PreActive Phase = iota
	Active
	PostActive
)

func (p Phase) String() string {
	switch p {
	case PreActive:
		return "pre_active"
	case Active:
		return "active"
	case PostActive:
		return "post_active"
	default:
		return "unknown"
	}
}

// RunState is the union of what's known about a container at each phase:
// nothing yet (PreActive), a live supervised process (Active), or a final
// result (PostActive).
type RunState struct {
	Phase  Phase
	Handle *procrunner.Handle
	Result procrunner.Result
}

// terminateGrace bounds how long Terminate waits for SIGTERM before
// escalating to SIGKILL.
const terminateGrace = 10 * time.Second

// ContainerState is one container's mutable runtime state: its spec, its
// docker-assigned id once created, and its RunState. It has no deterministic
// destructor in Go, so a best-effort cleanup is registered as a finalizer,
// guarded by alreadyTriedDrop so an explicit Terminate and a GC-triggered
// finalizer never race each other into double work.
type ContainerState struct {
	mu sync.Mutex

	spec        ContainerSpec
	cli         *dockerapi.CLI
	networkName string
	containerID string
	run         RunState

	stdoutFile *os.File
	stderrFile *os.File

	alreadyTriedDrop atomic.Bool
}

// closeLogs releases any open log files. Safe to call multiple times.
func (c *ContainerState) closeLogs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stdoutFile != nil {
		_ = c.stdoutFile.Close()
		c.stdoutFile = nil
	}
	if c.stderrFile != nil {
		_ = c.stderrFile.Close()
		c.stderrFile = nil
	}
}

func newContainerState(cli *dockerapi.CLI, networkName string, spec ContainerSpec) *ContainerState {
	cs := &ContainerState{spec: spec, cli: cli, networkName: networkName}
	runtime.SetFinalizer(cs, (*ContainerState).finalize)
	return cs
}

// finalize is the best-effort analogue of the original's Drop impl: if the
// caller never explicitly terminated this container, try once, synchronously,
// to force-remove it before the state is collected. It cannot safely touch a
// cancelled/expired context, so it constructs a short-lived background one.
func (c *ContainerState) finalize() {
	if !c.alreadyTriedDrop.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	id := c.containerID
	handle := c.run.Handle
	c.mu.Unlock()

	defer c.closeLogs()

	if id == "" {
		return
	}
	if handle != nil {
		_ = handle.Terminate(terminateGrace)
	}
	ctx, cancel := context.WithTimeout(context.Background(), terminateGrace)
	defer cancel()
	_ = c.cli.ContainerRemoveForce(ctx, id)
}

func (c *ContainerState) snapshot() (Phase, string, *procrunner.Handle, procrunner.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run.Phase, c.containerID, c.run.Handle, c.run.Result
}
