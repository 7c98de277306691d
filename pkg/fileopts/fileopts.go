// Package fileopts is an opinionated wrapper around os.OpenFile with
// explicit create/append/truncate semantics, ported from the orchestrator's
// original FileOptions type. Per-container log files (ContainerSpec's
// StdoutLog/StderrLog) are opened through it; the engine itself keeps no
// engine-level log file.
package fileopts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteOptions controls whether a file is created if missing, and whether
// writes append instead of truncating.
type WriteOptions struct {
	Create bool
	Append bool
}

// Mode selects between reading and writing.
type Mode struct {
	write   bool
	options WriteOptions
}

// Read returns a read-mode Mode.
func Read() Mode { return Mode{} }

// Write returns a write-mode Mode with the given create/append behavior.
func Write(create, append bool) Mode {
	return Mode{write: true, options: WriteOptions{Create: create, Append: append}}
}

// FileOptions names a path plus how it should be opened.
type FileOptions struct {
	Path string
	Mode Mode
}

// New builds a FileOptions for an explicit path.
func New(path string, mode Mode) FileOptions {
	return FileOptions{Path: path, Mode: mode}
}

// New2 joins directory and fileName into a path.
func New2(directory, fileName string, mode Mode) FileOptions {
	return FileOptions{Path: filepath.Join(directory, fileName), Mode: mode}
}

// ReadPath returns a FileOptions for reading file at path.
func ReadPath(path string) FileOptions {
	return FileOptions{Path: path, Mode: Read()}
}

// Read2 returns a FileOptions for reading fileName in directory.
func Read2(directory, fileName string) FileOptions {
	return FileOptions{Path: filepath.Join(directory, fileName), Mode: Read()}
}

// WritePath returns a FileOptions for writing to path, create=true,
// append=false (truncate-on-open).
func WritePath(path string) FileOptions {
	return FileOptions{Path: path, Mode: Write(true, false)}
}

// Write2 returns a FileOptions for writing to fileName in directory,
// create=true, append=false.
func Write2(directory, fileName string) FileOptions {
	return FileOptions{Path: filepath.Join(directory, fileName), Mode: Write(true, false)}
}

// Preacquire validates the parent directory exists and, for a write mode
// with Create=false, that the file itself already exists. Returns the
// normalized path.
func (f FileOptions) Preacquire() (string, error) {
	dir := filepath.Dir(f.Path)
	if fi, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("fileopts: preacquire %s: directory %s: %w", f.Path, dir, err)
	} else if !fi.IsDir() {
		return "", fmt.Errorf("fileopts: preacquire %s: %s is not a directory", f.Path, dir)
	}

	if f.Mode.write && f.Mode.options.Create {
		return f.Path, nil
	}
	if _, err := os.Stat(f.Path); err != nil {
		return "", fmt.Errorf("fileopts: preacquire %s: %w", f.Path, err)
	}
	return f.Path, nil
}

// AcquireFile opens the file per Mode, having first run Preacquire.
func (f FileOptions) AcquireFile() (*os.File, error) {
	path, err := f.Preacquire()
	if err != nil {
		return nil, fmt.Errorf("fileopts: acquire file: %w", err)
	}

	if !f.Mode.write {
		fh, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("fileopts: acquire file %s: %w", path, err)
		}
		return fh, nil
	}

	flags := os.O_WRONLY
	if f.Mode.options.Create {
		flags |= os.O_CREATE
	}
	if f.Mode.options.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	fh, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("fileopts: acquire file %s: %w", path, err)
	}
	return fh, nil
}

// WriteBytes writes v to file at path using WritePath's defaults.
func WriteBytes(path string, v []byte) error {
	fh, err := WritePath(path).AcquireFile()
	if err != nil {
		return err
	}
	defer fh.Close()
	if _, err := fh.Write(v); err != nil {
		return fmt.Errorf("fileopts: write %s: %w", path, err)
	}
	return fh.Sync()
}

// WriteString writes s to file at path using WritePath's defaults.
func WriteString(path string, s string) error {
	return WriteBytes(path, []byte(s))
}

// Copy copies bytes from src to dst, opened per Read/Write defaults.
func Copy(src, dst string) error {
	in, err := ReadPath(src).AcquireFile()
	if err != nil {
		return fmt.Errorf("fileopts: copy %s -> %s: %w", src, dst, err)
	}
	defer in.Close()

	out, err := WritePath(dst).AcquireFile()
	if err != nil {
		return fmt.Errorf("fileopts: copy %s -> %s: %w", src, dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("fileopts: copy %s -> %s: %w", src, dst, err)
	}
	return out.Sync()
}
