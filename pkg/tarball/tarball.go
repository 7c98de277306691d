// Package tarball assembles an in-memory POSIX tar stream used as a Docker
// build context. Appends are captured before the container-bound file or
// tag decides anything, closing the window between "we decided to add this
// file" and "the daemon pulled it off disk".
package tarball

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// defaultMode is used for Builder.AppendBytes when the caller passes 0.
const defaultMode = 0o777

// Builder is an append-only, ordered collection of tar entries. Once Seal
// has been called the builder is spent; further appends return an error.
type Builder struct {
	tw     *tar.Writer
	buf    *bytes.Buffer
	paths  []string
	sealed bool
}

// New returns an empty Builder.
func New() *Builder {
	buf := &bytes.Buffer{}
	return &Builder{
		tw:  tar.NewWriter(buf),
		buf: buf,
	}
}

// AppendFile copies r's contents into the tar stream under path, with a
// regular-file header using size and mode. The caller is responsible for
// having already read the file into a form that isn't subject to further
// mutation (e.g. by slurping it to memory or holding an open *os.File).
func (b *Builder) AppendFile(path string, size int64, mode int64, r io.Reader) error {
	if b.sealed {
		return fmt.Errorf("tarball: append after seal: %s", path)
	}
	hdr := &tar.Header{
		Name: path,
		Mode: mode,
		Size: size,
	}
	if err := b.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("tarball: writing header for %s: %w", path, err)
	}
	if _, err := io.Copy(b.tw, r); err != nil {
		return fmt.Errorf("tarball: writing contents for %s: %w", path, err)
	}
	b.paths = append(b.paths, path)
	return nil
}

// AppendBytes appends an inline byte slice under path with an explicit
// POSIX mode. A zero mode defaults to 0o777.
func (b *Builder) AppendBytes(path string, mode int64, content []byte) error {
	if mode == 0 {
		mode = defaultMode
	}
	return b.AppendFile(path, int64(len(content)), mode, bytes.NewReader(content))
}

// Paths returns the ordered list of paths appended so far.
func (b *Builder) Paths() []string {
	out := make([]string, len(b.paths))
	copy(out, b.paths)
	return out
}

// Seal closes the tar stream and returns its bytes. The Builder must not be
// used for further appends after Seal.
func (b *Builder) Seal() ([]byte, error) {
	if b.sealed {
		return nil, fmt.Errorf("tarball: already sealed")
	}
	if err := b.tw.Close(); err != nil {
		return nil, fmt.Errorf("tarball: closing tar writer: %w", err)
	}
	b.sealed = true
	return b.buf.Bytes(), nil
}

// String renders a readable debug representation: the newline-joined list
// of appended paths.
func (b *Builder) String() string {
	return fmt.Sprintf("tarball.Builder{%s}", strings.Join(b.paths, "\n"))
}
