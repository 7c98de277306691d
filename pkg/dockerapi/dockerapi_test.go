package dockerapi

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestBuildCreateArgs(t *testing.T) {
	spec := ContainerCreateSpec{
		Name:        "a",
		NetworkName: "net-1",
		Hostname:    "a",
		Image:       "alpine:3",
		Volumes: []VolumeMount{
			{HostPath: "/host/data", ContainerPath: "/data"},
		},
		Env:         []string{"FOO=bar"},
		AllocateTTY: true,
		Entrypoint:  "/super-bootstrapped",
		Args:        []string{"--mode", "server"},
	}

	got := buildCreateArgs(spec)
	want := []string{
		"create", "--rm",
		"--network", "net-1",
		"--hostname", "a",
		"--name", "a",
		"--volume", "/host/data:/data",
		"--env", "FOO=bar",
		"-t",
		"alpine:3",
		"/super-bootstrapped",
		"--mode", "server",
	}
	assert.DeepEqual(t, got, want)
}

func TestBuildCreateArgsMinimal(t *testing.T) {
	got := buildCreateArgs(ContainerCreateSpec{Image: "alpine:3"})
	assert.DeepEqual(t, got, []string{"create", "--rm", "alpine:3"})
}

func TestBuildExecArgs(t *testing.T) {
	got := buildExecArgs("abc123", true, []string{"/bin/sh"})
	assert.DeepEqual(t, got, []string{"exec", "-i", "-t", "abc123", "/bin/sh"})
}

func TestBuildExecArgsNoTTY(t *testing.T) {
	got := buildExecArgs("abc123", false, []string{"echo", "hi"})
	assert.DeepEqual(t, got, []string{"exec", "-i", "abc123", "echo", "hi"})
}
