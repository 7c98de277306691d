// Package dockerfile represents a Dockerfile as a base source plus
// appended instruction lines plus an in-memory tarball of attached files,
// and renders final build arguments for the Docker Engine API. The
// in-memory tar is load-bearing: once copy_from_paths/copy_from_contents
// return, the file's bytes are captured, so there is no TOCTOU window
// between "we decided to add this file" and "the daemon read it off disk".
package dockerfile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dauaaa/containernet/pkg/dockerapi"
	"github.com/dauaaa/containernet/pkg/tarball"
)

// Assembler builds a Dockerfile + build context incrementally.
type Assembler struct {
	mu sync.Mutex

	base      Source
	buildPath string
	opts      BuildOpts
	tar       *tarball.Builder
	lines     []string
}

// New constructs an Assembler over the given base source.
func New(base Source) *Assembler {
	return &Assembler{
		base: base,
		tar:  tarball.New(),
	}
}

// WithBuildPath sets the base directory used to resolve relative COPY
// source paths; must be set before calling CopyFromPaths/WithEntrypoint if
// those paths are relative.
func (a *Assembler) WithBuildPath(path string) *Assembler {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buildPath = path
	return a
}

// WithBuildOpts overrides the Docker image build options.
func (a *Assembler) WithBuildOpts(opts BuildOpts) *Assembler {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opts = opts
	return a
}

// AppendInstructions pushes raw Dockerfile lines, each preceded by a
// newline byte at render time. Blank lines before/after are harmless in
// Dockerfile grammar, so the leading newline is always emitted
// unconditionally.
func (a *Assembler) AppendInstructions(lines ...string) *Assembler {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines = append(a.lines, lines...)
	return a
}

// PathCopy is one (host_src, image_dst) pair for CopyFromPaths.
type PathCopy struct {
	From string
	To   string // if empty, defaults to From
}

func (a *Assembler) resolveFrom(from string) string {
	if a.buildPath != "" && !filepath.IsAbs(from) {
		return filepath.Join(a.buildPath, from)
	}
	return from
}

// CopyFromPaths resolves each host_src against the build path if relative,
// opens the host file, and stages a `COPY <src> <dst>` instruction plus a
// tarball entry under <src>. All items are read in parallel; the
// instructions and tarball entries are committed only if every item
// succeeds, so a failure leaves the assembler exactly as it was before the
// call (no partial commit).
func (a *Assembler) CopyFromPaths(ctx context.Context, items []PathCopy) error {
	type staged struct {
		from, to string
		size     int64
		mode     int64
		content  []byte
	}

	staged_ := make([]staged, len(items))

	g, _ := errgroup.WithContext(ctx)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			from := a.resolveFrom(item.From)
			to := item.To
			if to == "" {
				to = from
			}

			fi, err := os.Stat(from)
			if err != nil {
				return fmt.Errorf("dockerfile: copy_from_paths %s: %w", from, err)
			}
			content, err := os.ReadFile(from)
			if err != nil {
				return fmt.Errorf("dockerfile: copy_from_paths %s: %w", from, err)
			}

			staged_[i] = staged{from: from, to: to, size: fi.Size(), mode: int64(fi.Mode().Perm()), content: content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range staged_ {
		if err := a.tar.AppendBytes(s.from, s.mode, s.content); err != nil {
			return fmt.Errorf("dockerfile: copy_from_paths: %w", err)
		}
		a.lines = append(a.lines, fmt.Sprintf("COPY %s %s", s.from, s.to))
	}
	return nil
}

// ContentCopy is one (image_dst, mode, bytes) triple for CopyFromContents.
type ContentCopy struct {
	To      string
	Mode    int64 // 0 defaults to 0o777
	Content []byte
}

// CopyFromContents is CopyFromPaths's inline-bytes counterpart: no host
// file is read, the caller's bytes are staged directly.
func (a *Assembler) CopyFromContents(items []ContentCopy) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, item := range items {
		mode := item.Mode
		if mode == 0 {
			mode = 0o777
		}
		if err := a.tar.AppendBytes(item.To, mode, item.Content); err != nil {
			return fmt.Errorf("dockerfile: copy_from_contents: %w", err)
		}
		a.lines = append(a.lines, fmt.Sprintf("COPY %s %s", item.To, item.To))
	}
	return nil
}

// WithEntrypoint copies (host_src, image_dst) into the build context and
// appends an ENTRYPOINT instruction naming image_dst plus args. args may be
// empty (no trailing comma then).
func (a *Assembler) WithEntrypoint(ctx context.Context, hostSrc, imageDst string, args []string) error {
	if err := a.CopyFromPaths(ctx, []PathCopy{{From: hostSrc, To: imageDst}}); err != nil {
		return err
	}

	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, fmt.Sprintf("%q", imageDst))
	for _, arg := range args {
		quoted = append(quoted, fmt.Sprintf("%q", arg))
	}

	line := fmt.Sprintf("ENTRYPOINT [%s]", joinComma(quoted))
	a.AppendInstructions(line)
	return nil
}

func joinComma(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

// WithHealthcheck appends a HEALTHCHECK instruction:
// `HEALTHCHECK <opts...> CMD <cmd...>`.
func (a *Assembler) WithHealthcheck(opts []string, cmd []string) *Assembler {
	line := fmt.Sprintf("HEALTHCHECK %s CMD %s", joinSpace(opts), joinSpace(cmd))
	a.AppendInstructions(line)
	return a
}

func joinSpace(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}

// render produces the Dockerfile bytes: source bytes, then for each
// appended line, a newline then the line's bytes. Callers must hold a.mu
// (or be single-threaded, as in this package's own tests).
func (a *Assembler) render() ([]byte, error) {
	base, err := a.base.render()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(base)
	for _, line := range a.lines {
		buf.WriteByte('\n')
		buf.WriteString(line)
	}
	return buf.Bytes(), nil
}

// Render is the exported, lock-safe form of render, for callers outside
// this package that want to inspect the rendered Dockerfile without going
// through IntoBuildArgs.
func (a *Assembler) Render() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.render()
}

// BaseRequiresWriteDir reports whether this assembler's base source needs
// a configured dockerfile_write_dir scratch directory (SourceContents
// only).
func (a *Assembler) BaseRequiresWriteDir() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.base.RequiresWriteDir()
}

// VerifyBasePath cheaply checks that a SourcePath base Dockerfile exists,
// without reading it. No-op for SourceNameTag/SourceContents bases. Used
// during Engine.Run's pre-validation pass, before any external side
// effect has happened.
func (a *Assembler) VerifyBasePath() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.base.verifyPath()
}

// IntoBuildArgs renders the final Dockerfile, appends it to the tarball
// under a randomized name (to avoid collisions with any caller-supplied
// file in the build context), seals the tarball, and returns the
// build-options/build-context pair ready for the Docker Engine API.
func (a *Assembler) IntoBuildArgs() (types.ImageBuildOptions, []byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rendered, err := a.render()
	if err != nil {
		return types.ImageBuildOptions{}, nil, err
	}

	dockerfileName := fmt.Sprintf("%s.dockerfile", uuid.New().String())
	if err := a.tar.AppendBytes(dockerfileName, 0o644, rendered); err != nil {
		return types.ImageBuildOptions{}, nil, fmt.Errorf("dockerfile: into_build_args: %w", err)
	}

	opts, err := a.opts.toImageBuildOptions(dockerfileName)
	if err != nil {
		return types.ImageBuildOptions{}, nil, fmt.Errorf("dockerfile: into_build_args: %w", err)
	}

	tarballBytes, err := a.tar.Seal()
	if err != nil {
		return types.ImageBuildOptions{}, nil, fmt.Errorf("dockerfile: into_build_args: %w", err)
	}

	return opts, tarballBytes, nil
}

// BuildImage is the convenience path: IntoBuildArgs, then call the Docker
// Engine API, filtering the streamed response for the final aux.id. Errors
// if no id is produced ("image built without id") or the build stream
// itself errors.
func (a *Assembler) BuildImage(ctx context.Context, cli *dockerapi.APIClient) (string, error) {
	opts, tarballBytes, err := a.IntoBuildArgs()
	if err != nil {
		return "", err
	}
	return cli.BuildImage(ctx, bytes.NewReader(tarballBytes), opts)
}
