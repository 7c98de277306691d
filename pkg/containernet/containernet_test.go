package containernet

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/dauaaa/containernet/pkg/cancel"
	"github.com/dauaaa/containernet/pkg/dockerapi"
	"github.com/dauaaa/containernet/pkg/dockerfile"
	"github.com/dauaaa/containernet/pkg/procrunner"
)

func TestPortBindDockerArg(t *testing.T) {
	cases := []struct {
		name string
		p    PortBind
		want string
	}{
		{"ephemeral host port defaults tcp and 0.0.0.0", PortBind{ContainerPort: 8080}, "0.0.0.0::8080/tcp"},
		{"fixed host port and udp", PortBind{ContainerPort: 53, HostPort: 5353, Protocol: UDP}, "0.0.0.0:5353:53/udp"},
		{"explicit host ip", PortBind{ContainerPort: 80, HostPort: 8000, HostIP: "127.0.0.1"}, "127.0.0.1:8000:80/tcp"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.p.dockerArg(), c.want)
		})
	}
}

func TestContainerSpecValidate(t *testing.T) {
	assert.ErrorContains(t, ContainerSpec{}.validate(), "missing name")
	assert.ErrorContains(t, ContainerSpec{Name: "a"}.validate(), "exactly one")
	assert.NilError(t, ContainerSpec{Name: "a", Image: "x"}.validate())
}

func TestEngineAddContainerRejectsDuplicateName(t *testing.T) {
	e := NewEngine("net-test", "")
	assert.NilError(t, e.AddContainer(ContainerSpec{Name: "a", Image: "alpine:3"}))
	err := e.AddContainer(ContainerSpec{Name: "a", Image: "alpine:3"})
	assert.ErrorContains(t, err, "already added")
}

func TestEngineCommonVolumesOnlyAppliedAfterRegistration(t *testing.T) {
	e := NewEngine("net-test", "")
	assert.NilError(t, e.AddContainer(ContainerSpec{Name: "before", Image: "alpine:3"}))
	e.AddCommonVolumes(dockerapi.VolumeMount{HostPath: "/host", ContainerPath: "/data"})
	assert.NilError(t, e.AddContainer(ContainerSpec{Name: "after", Image: "alpine:3"}))

	before := e.containerByName("before")
	after := e.containerByName("after")
	assert.Equal(t, len(before.spec.Volumes), 0)
	assert.Equal(t, len(after.spec.Volumes), 1)
	assert.Equal(t, after.spec.Volumes[0].ContainerPath, "/data")
}

func TestFindLastErrorMarkerReportsLastStack(t *testing.T) {
	out := []byte("line one\nError { stack: [foo] }\nmore output\n")
	snippet, ok := findLastErrorMarker(out)
	assert.Assert(t, ok)
	assert.Assert(t, len(snippet) > 0)
}

func TestFindLastErrorMarkerExcludesNotRootCause(t *testing.T) {
	out := []byte("Error { stack: [foo] }\nProbablyNotRootCauseError downstream\n")
	_, ok := findLastErrorMarker(out)
	assert.Assert(t, !ok)
}

func TestErrorCompilationReportsUnsuccessfulWithNoStack(t *testing.T) {
	e := NewEngine("net-test", "")
	cs := newContainerState(dockerapi.NewCLI(), "net-test", ContainerSpec{Name: "flaky"})
	cs.run = RunState{Phase: PostActive, Result: procrunner.Result{ExitCode: 1, Stdout: []byte("nothing interesting\n")}}
	e.containers["flaky"] = cs
	e.order = append(e.order, "flaky")

	err := e.ErrorCompilation()
	assert.ErrorContains(t, err, "unsuccessful but no stack")
}

func TestFindLastErrorMarkerDetectsPanic(t *testing.T) {
	out := []byte("booting\nthread 'main' panicked at 'boom', src/main.rs:1:1\n")
	snippet, ok := findLastErrorMarker(out)
	assert.Assert(t, ok)
	assert.Assert(t, len(snippet) > 0)
}

func TestWaitWithTimeoutZeroDurationIsNonBlockingGraceRound(t *testing.T) {
	ctx := context.Background()
	handle, err := procrunner.Start(ctx, "sleep", []string{"1"}, nil, nil)
	assert.NilError(t, err)

	e := NewEngine("net-test", "")
	cs := newContainerState(e.cli, "net-test", ContainerSpec{Name: "slow"})
	cs.run = RunState{Phase: Active, Handle: handle}
	e.containers["slow"] = cs
	e.order = append(e.order, "slow")

	errStillRunning := e.WaitWithTimeout(ctx, []string{"slow"}, false, 0)
	assert.ErrorContains(t, errStillRunning, "timeout waiting for container names")

	res, err := handle.Wait(ctx)
	assert.NilError(t, err)
	assert.Assert(t, res.Successful())
}

func TestWaitWithTimeoutSharesOneBudgetAcrossNames(t *testing.T) {
	ctx := context.Background()
	e := NewEngine("net-test", "")

	for _, name := range []string{"a", "b"} {
		handle, err := procrunner.Start(ctx, "sleep", []string{"5"}, nil, nil)
		assert.NilError(t, err)
		cs := newContainerState(e.cli, "net-test", ContainerSpec{Name: name})
		cs.run = RunState{Phase: Active, Handle: handle}
		e.containers[name] = cs
		e.order = append(e.order, name)
	}

	start := time.Now()
	err := e.WaitWithTimeout(ctx, []string{"a", "b"}, false, 300*time.Millisecond)
	elapsed := time.Since(start)
	assert.ErrorContains(t, err, "timeout waiting for container names")
	assert.Assert(t, elapsed < 2*time.Second, "wait on two names took %s, budget should be shared not multiplied", elapsed)

	for _, name := range []string{"a", "b"} {
		cs := e.containerByName(name)
		_, _, handle, _ := cs.snapshot()
		_, _ = handle.Wait(context.Background())
	}
}

func TestWaitWithTimeoutObservesCancellationLatch(t *testing.T) {
	ctx := context.Background()
	handle, err := procrunner.Start(ctx, "sleep", []string{"5"}, nil, nil)
	assert.NilError(t, err)

	e := NewEngine("net-test", "")
	cs := newContainerState(e.cli, "net-test", ContainerSpec{Name: "slow"})
	cs.run = RunState{Phase: Active, Handle: handle}
	e.containers["slow"] = cs
	e.order = append(e.order, "slow")

	cancel.SetForTest(true)
	defer cancel.SetForTest(false)

	start := time.Now()
	waitErr := e.WaitWithTimeout(ctx, []string{"slow"}, true, 30*time.Second)
	elapsed := time.Since(start)

	assert.ErrorContains(t, waitErr, "cancellation")
	assert.Assert(t, elapsed < time.Second, "cancellation check should fire on the first pass, took %s", elapsed)

	_, _ = handle.Wait(context.Background())
}

func TestTerminateOneIsNoopOnPreActive(t *testing.T) {
	e := NewEngine("net-test", "")
	cs := newContainerState(dockerapi.NewCLI(), "net-test", ContainerSpec{Name: "never-started"})
	assert.NilError(t, e.terminateOne(context.Background(), "never-started", cs))
}

func TestRunRejectsDuplicateNamesInCall(t *testing.T) {
	e := NewEngine("net-test-duplicate", "")
	assert.NilError(t, e.AddContainer(ContainerSpec{Name: "a", Image: "alpine:3"}))

	err := e.Run(context.Background(), []string{"a", "a"})
	assert.ErrorContains(t, err, "supplied twice")
}

func TestRunFailsValidationOnBadDockerfilePathWithoutSideEffects(t *testing.T) {
	e := NewEngine("net-test-badpath", "")
	asm := dockerfile.New(dockerfile.FromPath("/definitely/does/not/exist/Dockerfile"))
	assert.NilError(t, e.AddContainer(ContainerSpec{Name: "bad", Dockerfile: asm}))

	err := e.Run(context.Background(), []string{"bad"})
	assert.ErrorContains(t, err, "dockerfile base")

	e.mu.Lock()
	active := e.networkActive
	e.mu.Unlock()
	assert.Assert(t, !active, "network must not be created when pre-validation fails")
}

func TestAddContainerRequiresWriteDirForContentsDockerfile(t *testing.T) {
	e := NewEngine("net-test-writedir", "")
	asm := dockerfile.New(dockerfile.FromContents([]byte("FROM alpine:3")))
	err := e.AddContainer(ContainerSpec{Name: "c", Dockerfile: asm})
	assert.ErrorContains(t, err, "dockerfile_write_dir")

	e2 := NewEngine("net-test-writedir-2", "/tmp")
	asm2 := dockerfile.New(dockerfile.FromContents([]byte("FROM alpine:3")))
	assert.NilError(t, e2.AddContainer(ContainerSpec{Name: "c", Dockerfile: asm2}))
}

func TestWaitGetIPAddrFailsFastWhenContainerUnknown(t *testing.T) {
	e := NewEngine("net-test", "")
	_, err := e.WaitGetIPAddr(context.Background(), "ghost", 1, time.Millisecond)
	assert.ErrorContains(t, err, "not found")
}
