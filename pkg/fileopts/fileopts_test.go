package fileopts

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestWriteTruncatesOnReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")

	assert.NilError(t, WriteString(path, "first run, a long line"))
	assert.NilError(t, WriteString(path, "second"))

	b, err := os.ReadFile(path)
	assert.NilError(t, err)
	assert.Equal(t, string(b), "second")
}

func TestAppendMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")

	fo := New(path, Write(true, false))
	assert.NilError(t, WriteString(path, "a"))

	fo = New(path, Write(true, true))
	fh, err := fo.AcquireFile()
	assert.NilError(t, err)
	_, err = fh.WriteString("b")
	assert.NilError(t, err)
	assert.NilError(t, fh.Close())

	b, err := os.ReadFile(path)
	assert.NilError(t, err)
	assert.Equal(t, string(b), "ab")
}

func TestReadMissingFileErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadPath(filepath.Join(dir, "nope")).AcquireFile()
	assert.ErrorContains(t, err, "acquire file")
}

func TestCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	assert.NilError(t, WriteString(src, "payload"))
	assert.NilError(t, Copy(src, dst))

	b, err := os.ReadFile(dst)
	assert.NilError(t, err)
	assert.Equal(t, string(b), "payload")
}
