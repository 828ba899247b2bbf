package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retreva/retreva/internal/config"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeSourceFile(t *testing.T, root, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "retreva")
}

func TestVersionCommandJSON(t *testing.T) {
	out, err := runCommand(t, "version", "--format", "json")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])
}

func TestInitWritesConfig(t *testing.T) {
	root := t.TempDir()

	out, err := runCommand(t, "init", root)
	require.NoError(t, err)
	assert.Contains(t, out, config.DefaultFileName)

	cfg, err := config.Load(filepath.Join(root, config.DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestInitRefusesOverwrite(t *testing.T) {
	root := t.TempDir()

	_, err := runCommand(t, "init", root)
	require.NoError(t, err)

	out, err := runCommand(t, "init", root)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestIndexThenSearch(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "greet.py", "def greet():\n    return \"hello world\"\n")
	writeSourceFile(t, root, "math_utils.py", "def add(a, b):\n    return a + b\n")

	out, err := runCommand(t, "index", root)
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 2 files")

	out, err = runCommand(t, "search", "hello greeting", "--path", root)
	require.NoError(t, err)
	assert.Contains(t, out, "greet.py")
}

func TestSearchJSONFormat(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "main.go", "package main\n\nfunc main() {}\n")

	_, err := runCommand(t, "index", root)
	require.NoError(t, err)

	out, err := runCommand(t, "search", "main", "--path", root, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Results []struct {
			FilePath string  `json:"file_path"`
			Score    float64 `json:"score"`
		} `json:"results"`
		Generation string `json:"generation"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "main.go", resp.Results[0].FilePath)
	assert.NotEmpty(t, resp.Generation)
}

func TestSearchWithoutIndex(t *testing.T) {
	root := t.TempDir()

	_, err := runCommand(t, "search", "anything", "--path", root)
	require.Error(t, err)
}

func TestUpdateReindexesFile(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "greet.py", "def greet():\n    return \"hello world\"\n")

	_, err := runCommand(t, "index", root)
	require.NoError(t, err)

	writeSourceFile(t, root, "greet.py", "def greet():\n    return 'hi'\n")
	out, err := runCommand(t, "update", "greet.py", "--path", root)
	require.NoError(t, err)
	assert.Contains(t, out, "updated greet.py")
}

func TestStatusBeforeIndex(t *testing.T) {
	root := t.TempDir()

	out, err := runCommand(t, "status", root)
	require.NoError(t, err)
	assert.Contains(t, out, "not built")
}

func TestStatusAfterIndex(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "main.go", "package main\n")

	_, err := runCommand(t, "index", root)
	require.NoError(t, err)

	out, err := runCommand(t, "status", root, "--format", "json")
	require.NoError(t, err)

	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "idle", report.State)
	assert.Equal(t, 1, report.Files)
	assert.NotEmpty(t, report.Generation)
}
