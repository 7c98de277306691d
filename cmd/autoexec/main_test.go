package main

import (
	"testing"

	"github.com/docker/docker/api/types"
	"gotest.tools/v3/assert"
)

func container(id string, names ...string) types.Container {
	return types.Container{ID: id, Names: names}
}

func TestMatchByPrefixUniqueMatch(t *testing.T) {
	containers := []types.Container{
		container("abc", "/web-1"),
		container("def", "/db-1"),
	}
	id, name, err := matchByPrefix(containers, "web")
	assert.NilError(t, err)
	assert.Equal(t, id, "abc")
	assert.Equal(t, name, "web-1")
}

func TestMatchByPrefixNoMatch(t *testing.T) {
	_, _, err := matchByPrefix(nil, "web")
	assert.ErrorContains(t, err, "no running container")
}

func TestMatchByPrefixAmbiguous(t *testing.T) {
	containers := []types.Container{
		container("abc", "/web-1"),
		container("def", "/web-2"),
	}
	_, _, err := matchByPrefix(containers, "web")
	assert.ErrorContains(t, err, "be more specific")
}
