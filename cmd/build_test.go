package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDistinctPaths_NoFromIsAlwaysFine(t *testing.T) {
	require.NoError(t, ensureDistinctPaths("", filepath.Join(t.TempDir(), "out.chdb")))
}

func TestEnsureDistinctPaths_DifferentPathsAreFine(t *testing.T) {
	dir := t.TempDir()

	err := ensureDistinctPaths(filepath.Join(dir, "old.chdb"), filepath.Join(dir, "new.chdb"))
	assert.NoError(t, err)
}

func TestEnsureDistinctPaths_RejectsIdenticalPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.chdb")

	err := ensureDistinctPaths(path, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSameFile)
}

func TestEnsureDistinctPaths_RejectsDotRelativeAlias(t *testing.T) {
	dir := t.TempDir()

	err := ensureDistinctPaths(
		filepath.Join(dir, "db.chdb"),
		filepath.Join(dir, "sub", "..", "db.chdb"),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSameFile)
}
