package tarball

import (
	"archive/tar"
	"bytes"
	"io"
	"testing"

	"gotest.tools/v3/assert"
)

func TestAppendBytesRoundTrip(t *testing.T) {
	b := New()

	assert.NilError(t, b.AppendBytes("a.txt", 0o644, []byte("hello")))
	assert.NilError(t, b.AppendBytes("dir/b.txt", 0, []byte("world")))

	assert.DeepEqual(t, b.Paths(), []string{"a.txt", "dir/b.txt"})

	sealed, err := b.Seal()
	assert.NilError(t, err)

	tr := tar.NewReader(bytes.NewReader(sealed))

	var got []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		assert.NilError(t, err)
		got = append(got, hdr.Name)
		if hdr.Name == "dir/b.txt" {
			assert.Equal(t, hdr.Mode, int64(defaultMode))
		}
	}
	assert.DeepEqual(t, got, []string{"a.txt", "dir/b.txt"})
}

func TestAppendAfterSealFails(t *testing.T) {
	b := New()
	assert.NilError(t, b.AppendBytes("a.txt", 0o644, []byte("x")))
	_, err := b.Seal()
	assert.NilError(t, err)

	err = b.AppendBytes("b.txt", 0o644, []byte("y"))
	assert.ErrorContains(t, err, "append after seal")

	_, err = b.Seal()
	assert.ErrorContains(t, err, "already sealed")
}

func TestStringListsPaths(t *testing.T) {
	b := New()
	assert.NilError(t, b.AppendBytes("one", 0o644, []byte("1")))
	assert.NilError(t, b.AppendBytes("two", 0o644, []byte("2")))
	assert.Equal(t, b.String(), "tarball.Builder{one\ntwo}")
}
