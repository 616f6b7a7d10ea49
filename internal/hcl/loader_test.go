package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGrid(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadSingleFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeGrid(t, dir, "main.hcl", `
job "print" "hello" {
  arguments {
    message = "hi"
  }
}

job "sleep" "pause" {
  priority   = 5
  depends_on = ["hello"]
  arguments {
    duration = "1ms"
  }
}
`)

	model, err := NewLoader().Load(context.Background(), filepath.Join(dir, "main.hcl"))
	require.NoError(t, err)
	require.Len(t, model.Grid.Jobs, 2)

	hello := model.Grid.Jobs[0]
	assert.Equal(t, "print", hello.Runner)
	assert.Equal(t, "hello", hello.Name)
	assert.Equal(t, int64(0), hello.Priority)
	assert.Empty(t, hello.DependsOn)
	assert.NotNil(t, hello.Arguments)

	pause := model.Grid.Jobs[1]
	assert.Equal(t, "sleep", pause.Runner)
	assert.Equal(t, int64(5), pause.Priority)
	assert.Equal(t, []string{"hello"}, pause.DependsOn)
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeGrid(t, dir, "a.hcl", `
job "print" "a" {}
`)
	writeGrid(t, dir, "b.hcl", `
job "print" "b" {
  depends_on = ["a"]
}
`)

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, model.Grid.Jobs, 2)
}

func TestLoadDuplicateJobName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeGrid(t, dir, "a.hcl", `
job "print" "same" {}
`)
	writeGrid(t, dir, "b.hcl", `
job "sleep" "same" {}
`)

	_, err := NewLoader().Load(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate job")
}

func TestLoadSyntaxError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeGrid(t, dir, "bad.hcl", `
job "print" "broken" {
  arguments {
`)

	_, err := NewLoader().Load(context.Background(), dir)
	require.Error(t, err)
}

func TestLoadMissingPath(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestLoadEmptyDirectory(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().Load(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no grid files")
}
