package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/imdario/mergo"

	"github.com/dauaaa/containernet/pkg/containernet"
	"github.com/dauaaa/containernet/pkg/dockerapi"
)

// Plan is the on-disk shape of a network-plan TOML file: one Docker
// network's worth of containers, described declaratively so `netctl up`
// can drive pkg/containernet without the caller writing Go.
type Plan struct {
	NetworkName        string            `toml:"network_name"`
	NetworkArgs        []string          `toml:"network_args"`
	WaitTimeout        string            `toml:"wait_timeout"`
	TerminateOnFailure bool              `toml:"terminate_on_failure"`
	DockerfileWriteDir string            `toml:"dockerfile_write_dir"`
	Defaults           ContainerDefaults `toml:"defaults"`
	Containers         []ContainerPlan   `toml:"containers"`
}

// ContainerDefaults holds fields merged into every ContainerPlan (the
// plan's own entries are appended after the defaults, which are always
// kept), the TOML analogue of local_docker.go's defaultConfig/mergo.Merge
// pattern.
type ContainerDefaults struct {
	Env     []string     `toml:"env"`
	Volumes []VolumePlan `toml:"volumes"`
}

type VolumePlan struct {
	HostPath      string `toml:"host_path"`
	ContainerPath string `toml:"container_path"`
}

type PortPlan struct {
	ContainerPort uint16 `toml:"container_port"`
	HostPort      uint16 `toml:"host_port"`
	Protocol      string `toml:"protocol"`
}

type ContainerPlan struct {
	Name       string       `toml:"name"`
	Image      string       `toml:"image"`
	Env        []string     `toml:"env"`
	Args       []string     `toml:"args"`
	Entrypoint string       `toml:"entrypoint"`
	Volumes    []VolumePlan `toml:"volumes"`
	Ports      []PortPlan   `toml:"ports"`
}

// loadPlan reads and parses a network-plan file.
func loadPlan(path string) (Plan, error) {
	var p Plan
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return Plan{}, fmt.Errorf("netctl: load plan %s: %w", path, err)
	}
	if p.NetworkName == "" {
		return Plan{}, fmt.Errorf("netctl: load plan %s: network_name is required", path)
	}
	return p, nil
}

// waitTimeoutDuration parses WaitTimeout, defaulting to 30s on an empty value.
func (p Plan) waitTimeoutDuration() (time.Duration, error) {
	if p.WaitTimeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(p.WaitTimeout)
	if err != nil {
		return 0, fmt.Errorf("netctl: wait_timeout %q: %w", p.WaitTimeout, err)
	}
	return d, nil
}

// resolveContainerSpec merges a ContainerPlan over the plan's defaults
// (slices from both are kept, the defaults first and the container's own
// entries after them) and converts the result into a
// containernet.ContainerSpec.
func resolveContainerSpec(defaults ContainerDefaults, cp ContainerPlan) (containernet.ContainerSpec, error) {
	merged := ContainerDefaults{
		Env:     append([]string{}, defaults.Env...),
		Volumes: append([]VolumePlan{}, defaults.Volumes...),
	}
	override := ContainerDefaults{Env: cp.Env, Volumes: cp.Volumes}
	if err := mergo.Merge(&merged, override, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		return containernet.ContainerSpec{}, fmt.Errorf("netctl: merge container %s defaults: %w", cp.Name, err)
	}

	volumes := make([]dockerapi.VolumeMount, 0, len(merged.Volumes))
	for _, v := range merged.Volumes {
		volumes = append(volumes, dockerapi.VolumeMount{HostPath: v.HostPath, ContainerPath: v.ContainerPath})
	}

	ports := make([]containernet.PortBind, 0, len(cp.Ports))
	for _, p := range cp.Ports {
		proto := containernet.Protocol(p.Protocol)
		if proto == "" {
			proto = containernet.TCP
		}
		ports = append(ports, containernet.PortBind{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      proto,
		})
	}

	return containernet.ContainerSpec{
		Name:       cp.Name,
		Image:      cp.Image,
		Env:        merged.Env,
		Args:       cp.Args,
		Entrypoint: cp.Entrypoint,
		Volumes:    volumes,
		Ports:      ports,
	}, nil
}
