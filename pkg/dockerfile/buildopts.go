package dockerfile

import (
	"github.com/docker/docker/api/types"
	units "github.com/docker/go-units"
)

// BuildOpts mirrors the Docker Engine API's image build options fields the
// engine consumes (spec.md §6): dockerfile, t, extrahosts, q, nocache,
// cachefrom, pull, rm, forcerm, memory, memswap, cpushares, cpusetcpus,
// cpuperiod, cpuquota, buildargs, shmsize, squash, labels, networkmode,
// platform, target, version. Memory/ShmSize accept human units ("512m")
// the way docker CLI flags do, parsed with go-units.
type BuildOpts struct {
	Tag         string
	ExtraHosts  []string
	Quiet       bool
	NoCache     bool
	CacheFrom   []string
	PullParent  bool
	Remove      bool
	ForceRemove bool
	Memory      string
	MemorySwap  string
	CPUShares   int64
	CPUSetCPUs  string
	CPUPeriod   int64
	CPUQuota    int64
	BuildArgs   map[string]string
	ShmSize     string
	Squash      bool
	Labels      map[string]string
	NetworkMode string
	Platform    string
	Target      string
	Version     types.BuilderVersion
}

// toImageBuildOptions translates BuildOpts into the docker client's native
// options struct. dockerfileName is the randomized in-tarball path of the
// rendered Dockerfile produced by into_build_args.
func (o BuildOpts) toImageBuildOptions(dockerfileName string) (types.ImageBuildOptions, error) {
	var memory, memSwap, shmSize int64
	var err error
	if o.Memory != "" {
		if memory, err = units.RAMInBytes(o.Memory); err != nil {
			return types.ImageBuildOptions{}, err
		}
	}
	if o.MemorySwap != "" {
		if memSwap, err = units.RAMInBytes(o.MemorySwap); err != nil {
			return types.ImageBuildOptions{}, err
		}
	}
	if o.ShmSize != "" {
		if shmSize, err = units.RAMInBytes(o.ShmSize); err != nil {
			return types.ImageBuildOptions{}, err
		}
	}

	buildArgs := make(map[string]*string, len(o.BuildArgs))
	for k, v := range o.BuildArgs {
		v := v
		buildArgs[k] = &v
	}

	tags := []string{}
	if o.Tag != "" {
		tags = []string{o.Tag}
	}

	return types.ImageBuildOptions{
		Dockerfile:  dockerfileName,
		Tags:        tags,
		ExtraHosts:  o.ExtraHosts,
		SuppressOutput: o.Quiet,
		NoCache:     o.NoCache,
		CacheFrom:   o.CacheFrom,
		PullParent:  o.PullParent,
		Remove:      o.Remove,
		ForceRemove: o.ForceRemove,
		Memory:      memory,
		MemorySwap:  memSwap,
		CPUShares:   o.CPUShares,
		CPUSetCPUs:  o.CPUSetCPUs,
		CPUPeriod:   o.CPUPeriod,
		CPUQuota:    o.CPUQuota,
		BuildArgs:   buildArgs,
		ShmSize:     shmSize,
		Squash:      o.Squash,
		Labels:      o.Labels,
		NetworkMode: o.NetworkMode,
		Platform:    o.Platform,
		Target:      o.Target,
		Version:     o.Version,
	}, nil
}
