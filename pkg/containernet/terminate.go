package containernet

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/dauaaa/containernet/pkg/procrunner"
)

// Terminate force-stops and removes the named containers, in parallel.
// Containers already in PostActive are only removed (their exit result is
// preserved); a PreActive container that was created but never started is
// removed; a PreActive container that was never created is a no-op.
func (e *Engine) Terminate(ctx context.Context, names []string) error {
	return e.TerminateContainers(ctx, names)
}

// TerminateContainers is Terminate's explicit name, used by
// TerminateAll/TerminateAllContainers to terminate every registered
// container without tearing down the network.
func (e *Engine) TerminateContainers(ctx context.Context, names []string) error {
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for _, name := range names {
		name := name
		cs := e.containerByName(name)
		if cs == nil {
			continue
		}
		g.Go(func() error {
			return e.terminateOne(gctx, name, cs)
		})
	}
	if err := g.Wait(); err != nil {
		return newErr(ExternalCommand, "terminate containers", err)
	}
	return nil
}

// TerminateAllContainers terminates every container registered with the
// engine, leaving the network itself active.
func (e *Engine) TerminateAllContainers(ctx context.Context) error {
	e.mu.Lock()
	order := append([]string{}, e.order...)
	e.mu.Unlock()
	return e.TerminateContainers(ctx, order)
}

// TerminateAll is the full teardown: every container, then the network
// itself. Errors from container termination don't prevent the network
// removal attempt; both are aggregated.
func (e *Engine) TerminateAll(ctx context.Context) error {
	var merr *multierror.Error
	if err := e.TerminateAllContainers(ctx); err != nil {
		merr = multierror.Append(merr, err)
	}

	e.mu.Lock()
	active := e.networkActive
	e.mu.Unlock()
	if active {
		if err := e.cli.NetworkRemove(ctx, e.NetworkName); err != nil {
			merr = multierror.Append(merr, newErr(ExternalCommand, "remove network", err))
		} else {
			e.mu.Lock()
			e.networkActive = false
			e.mu.Unlock()
		}
	}
	return merr.ErrorOrNil()
}

// terminateOne ignores container-removal errors for the purpose of
// advancing state: whether or not `docker rm -f` succeeds, the container
// id is cleared and the state moves to PostActive (keeping the exit result
// the supervised process produced, if any), so a second call is a
// no-op identical to what the first call would have done had it
// succeeded. The removal error, if any, is still reported to the caller
// so it can be logged/aggregated.
func (e *Engine) terminateOne(ctx context.Context, name string, cs *ContainerState) error {
	phase, id, handle, _ := cs.snapshot()
	cs.alreadyTriedDrop.Store(true)

	if phase == PreActive && id == "" {
		return nil
	}
	var res procrunner.Result
	if handle != nil {
		_ = handle.Terminate(terminateGrace)
		res, _ = handle.TryWait()
	}

	var removeErr error
	if id != "" {
		if err := e.cli.ContainerRemoveForce(ctx, id); err != nil {
			removeErr = fmt.Errorf("container %s: %w", name, err)
		}
	}

	cs.mu.Lock()
	if cs.run.Phase != PostActive {
		cs.run = RunState{Phase: PostActive, Result: res}
	}
	cs.containerID = ""
	cs.mu.Unlock()
	cs.closeLogs()
	return removeErr
}
