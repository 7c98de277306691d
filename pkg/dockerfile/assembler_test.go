package dockerfile

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestRenderNameTagBase(t *testing.T) {
	a := New(FromNameTag("alpine:3"))
	a.AppendInstructions("RUN echo hi", "CMD [\"/bin/sh\"]")

	b, err := a.render()
	assert.NilError(t, err)
	assert.Equal(t, string(b), "FROM alpine:3\nRUN echo hi\nCMD [\"/bin/sh\"]")
}

func TestRenderContentsBaseNoAppends(t *testing.T) {
	a := New(FromContents([]byte("FROM scratch")))
	b, err := a.render()
	assert.NilError(t, err)
	assert.Equal(t, string(b), "FROM scratch")
}

func TestCopyFromPathsAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	assert.NilError(t, os.WriteFile(good, []byte("hi"), 0o644))
	missing := filepath.Join(dir, "missing.txt")

	a := New(FromNameTag("alpine:3"))
	err := a.CopyFromPaths(context.Background(), []PathCopy{
		{From: good, To: "/good.txt"},
		{From: missing, To: "/missing.txt"},
	})
	assert.ErrorContains(t, err, "missing.txt")

	// nothing committed: no COPY line, no tarball entry.
	assert.Equal(t, len(a.lines), 0)
	assert.Equal(t, len(a.tar.Paths()), 0)
}

func TestCopyFromPathsCommitsInstructionsAndTar(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bin")
	assert.NilError(t, os.WriteFile(p, []byte("binary"), 0o755))

	a := New(FromNameTag("alpine:3"))
	assert.NilError(t, a.CopyFromPaths(context.Background(), []PathCopy{
		{From: p, To: "/app/bin"},
	}))

	assert.Equal(t, a.lines[0], "COPY "+p+" /app/bin")
	assert.DeepEqual(t, a.tar.Paths(), []string{p})
}

func TestWithEntrypointArgsAndEmpty(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "self")
	assert.NilError(t, os.WriteFile(p, []byte("x"), 0o755))

	a := New(FromNameTag("alpine:3"))
	assert.NilError(t, a.WithEntrypoint(context.Background(), p, "/super-bootstrapped", []string{"--role", "server"}))

	b, err := a.render()
	assert.NilError(t, err)
	assert.Assert(t, bytes.Contains(b, []byte(`ENTRYPOINT ["/super-bootstrapped", "--role", "server"]`)))

	a2 := New(FromNameTag("alpine:3"))
	assert.NilError(t, a2.WithEntrypoint(context.Background(), p, "/super-bootstrapped", nil))
	b2, err := a2.render()
	assert.NilError(t, err)
	assert.Assert(t, bytes.Contains(b2, []byte(`ENTRYPOINT ["/super-bootstrapped"]`)))
}

func TestIntoBuildArgsSealsTarballWithDockerfile(t *testing.T) {
	a := New(FromNameTag("alpine:3"))
	a.AppendInstructions("RUN true")

	opts, tarBytes, err := a.IntoBuildArgs()
	assert.NilError(t, err)
	assert.Assert(t, opts.Dockerfile != "")

	tr := tar.NewReader(bytes.NewReader(tarBytes))
	found := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		assert.NilError(t, err)
		if hdr.Name == opts.Dockerfile {
			found = true
			content, err := io.ReadAll(tr)
			assert.NilError(t, err)
			assert.Equal(t, string(content), "FROM alpine:3\nRUN true")
		}
	}
	assert.Assert(t, found)
}

func TestWithHealthcheck(t *testing.T) {
	a := New(FromNameTag("alpine:3"))
	a.WithHealthcheck([]string{"--interval=5s"}, []string{"curl", "-f", "http://localhost"})
	b, err := a.render()
	assert.NilError(t, err)
	assert.Assert(t, bytes.Contains(b, []byte("HEALTHCHECK --interval=5s CMD curl -f http://localhost")))
}
