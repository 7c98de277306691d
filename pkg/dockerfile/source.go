package dockerfile

import (
	"fmt"
	"os"
)

// SourceKind tags which alternative a Source holds.
type SourceKind int

const (
	// SourceNameTag is a reference to a prebuilt image, rendered as
	// `FROM name:tag`.
	SourceNameTag SourceKind = iota
	// SourcePath is a host path to an existing Dockerfile, read at render
	// time.
	SourcePath
	// SourceContents is inline Dockerfile byte contents.
	SourceContents
)

// Source is the Dockerfile source: exactly one of NameTag, Path, or
// Contents is meaningful, selected by Kind.
type Source struct {
	Kind     SourceKind
	NameTag  string
	Path     string
	Contents []byte
}

// FromNameTag builds a Source referencing a prebuilt image.
func FromNameTag(nameTag string) Source {
	return Source{Kind: SourceNameTag, NameTag: nameTag}
}

// FromPath builds a Source reading a Dockerfile from a host path.
func FromPath(path string) Source {
	return Source{Kind: SourcePath, Path: path}
}

// FromContents builds a Source from inline Dockerfile bytes.
func FromContents(contents []byte) Source {
	return Source{Kind: SourceContents, Contents: contents}
}

// render returns the base Dockerfile bytes: `FROM <tag>` for SourceNameTag,
// the file's bytes (read now) for SourcePath, or the inline bytes for
// SourceContents.
func (s Source) render() ([]byte, error) {
	switch s.Kind {
	case SourceNameTag:
		return []byte(fmt.Sprintf("FROM %s", s.NameTag)), nil
	case SourcePath:
		b, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("dockerfile: reading base %s: %w", s.Path, err)
		}
		return b, nil
	case SourceContents:
		return s.Contents, nil
	default:
		return nil, fmt.Errorf("dockerfile: unknown source kind %d", s.Kind)
	}
}

// RequiresWriteDir reports whether this source needs the engine's
// dockerfile_write_dir to be configured (true only for SourceContents,
// matching Container Spec's validation-at-add-time rule).
func (s Source) RequiresWriteDir() bool {
	return s.Kind == SourceContents
}

// verifyPath cheaply checks that a SourcePath's file exists, without
// reading it, so a bad path is caught during pre-validation before any
// external side effect (network create, image build) has happened. A
// no-op for SourceNameTag/SourceContents.
func (s Source) verifyPath() error {
	if s.Kind != SourcePath {
		return nil
	}
	if _, err := os.Stat(s.Path); err != nil {
		return fmt.Errorf("dockerfile: path %s: %w", s.Path, err)
	}
	return nil
}
