package containernet

import (
	"fmt"

	"github.com/dauaaa/containernet/pkg/dockerapi"
	"github.com/dauaaa/containernet/pkg/dockerfile"
	"github.com/dauaaa/containernet/pkg/fileopts"
)

// Protocol is a port-binding transport.
type Protocol string

const (
	TCP Protocol = "tcp"
	UDP Protocol = "udp"
)

// PortBind requests that ContainerPort be published on the host. HostPort
// of 0 lets Docker assign an ephemeral host port, mirroring `-p
// <container>/<proto>` with no fixed host side.
type PortBind struct {
	ContainerPort uint16
	HostPort      uint16
	HostIP        string
	Protocol      Protocol
}

// dockerArg renders the `--publish` argument value for this binding.
func (p PortBind) dockerArg() string {
	proto := p.Protocol
	if proto == "" {
		proto = TCP
	}
	hostIP := p.HostIP
	if hostIP == "" {
		hostIP = "0.0.0.0"
	}
	if p.HostPort == 0 {
		return fmt.Sprintf("%s::%d/%s", hostIP, p.ContainerPort, proto)
	}
	return fmt.Sprintf("%s:%d:%d/%s", hostIP, p.HostPort, p.ContainerPort, proto)
}

// ContainerSpec fully describes one container before it is ever created,
// spanning both build (how its image comes to exist) and run (how it is
// created and started) concerns.
type ContainerSpec struct {
	// Name is this container's key within its network; must be unique.
	Name string

	// Image names an already-built image to run. Mutually exclusive with
	// Dockerfile: set exactly one.
	Image string
	// Dockerfile, when set, is built (via the Docker Engine API) to
	// produce the image this container runs.
	Dockerfile *dockerfile.Assembler

	Volumes         []dockerapi.VolumeMount
	Env             []string
	Entrypoint      string
	Args            []string
	Ports           []PortBind
	ExtraCreateArgs []string
	AllocateTTY     bool

	// StdoutLog/StderrLog, when non-nil, tee the container's streams to
	// these files in addition to the in-memory buffer wait_with_timeout
	// inspects.
	StdoutLog *fileopts.FileOptions
	StderrLog *fileopts.FileOptions
}

// validate checks the fields an Engine can't repair on the caller's
// behalf: a name, and exactly one image source.
func (s ContainerSpec) validate() error {
	if s.Name == "" {
		return newErr(Validation, "container spec missing name", nil)
	}
	if (s.Image == "") == (s.Dockerfile == nil) {
		return newErr(Validation, fmt.Sprintf("container %s: set exactly one of Image or Dockerfile", s.Name), nil)
	}
	return nil
}
