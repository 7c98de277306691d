// Package bootstrap produces a Dockerfile that copies the currently
// running test binary into the image and marks it as ENTRYPOINT, so the
// image re-invokes the same executable with a different set of CLI
// arguments — the pattern that lets one test binary define both the driver
// and the containers it drives.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/dauaaa/containernet/pkg/dockerfile"
)

// DefaultDestination is the predictable in-image path the binary is
// copied to when the caller doesn't choose one.
const DefaultDestination = "/super-bootstrapped"

// Options selects which binary variant bootstrap uses.
type Options struct {
	// Destination overrides DefaultDestination.
	Destination string
	// EntrypointArgs are appended to the ENTRYPOINT instruction.
	EntrypointArgs []string

	// Static requests the MUSL-equivalent flavor: a CGO_ENABLED=0
	// statically linked rebuild, so the image doesn't need glibc. Many
	// small Linux base images lack it.
	Static bool
	// AlreadyStatic tells Plain/Static bootstrap that the running binary
	// is already a static, libc-independent build, skipping the rebuild.
	// There is no portable way to introspect how the running process was
	// linked, so this is the caller's explicit substitute for the
	// original's path-based target-triple detection.
	AlreadyStatic bool
	// BuildPackage is the Go package to rebuild when Static is requested
	// and AlreadyStatic is false (e.g. "./cmd/myplan"). Defaults to ".".
	BuildPackage string
	// BuildDir is the working directory `go build` runs from. Defaults to
	// the current directory.
	BuildDir string
	// GOOS/GOARCH override the target platform for the static rebuild;
	// default to the current runtime's.
	GOOS   string
	GOARCH string
}

// Bootstrap adds the bootstrap entrypoint to a.
func Bootstrap(ctx context.Context, a *dockerfile.Assembler, opts Options) error {
	dest := opts.Destination
	if dest == "" {
		dest = DefaultDestination
	}

	binPath, err := resolveBinary(ctx, opts)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	return a.WithEntrypoint(ctx, binPath, dest, opts.EntrypointArgs)
}

func resolveBinary(ctx context.Context, opts Options) (string, error) {
	if !opts.Static {
		return os.Executable()
	}
	if opts.AlreadyStatic {
		return os.Executable()
	}
	return buildStatic(ctx, opts)
}

// buildStatic shells out to `go build` with CGO_ENABLED=0 to produce a
// statically linked binary, the Go analogue of the original's
// `cargo build -r --target x86_64-unknown-linux-musl`.
func buildStatic(ctx context.Context, opts Options) (string, error) {
	pkg := opts.BuildPackage
	if pkg == "" {
		pkg = "."
	}
	dir := opts.BuildDir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
	}
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	goarch := opts.GOARCH
	if goarch == "" {
		goarch = runtime.GOARCH
	}

	outPath := filepath.Join(os.TempDir(), fmt.Sprintf("bootstrap-static-%d", os.Getpid()))

	cmd := exec.CommandContext(ctx, "go", "build", "-o", outPath, pkg)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=0",
		"GOOS="+goos,
		"GOARCH="+goarch,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("static rebuild failed: %w: %s", err, out)
	}
	return outPath, nil
}
