package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talaub/lowzero/internal/core/serialization"
)

var (
	coreSchema = filepath.Join("..", "..", "internal", "core", "schema", "testdata", "core.yaml")
	sceneDoc   = filepath.Join("..", "..", "internal", "core", "world", "testdata", "scene.yaml")
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestValidate(t *testing.T) {
	out, _, err := execute(t, "validate", coreSchema)
	require.NoError(t, err)
	assert.Contains(t, out, "Core: 5 types, 1 enums")
	assert.Contains(t, out, "PointLight")
	assert.Contains(t, out, "component")

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("module: Broken\ntypes:\n  Clash:\n    type_id: 1\n    capacity: 1\n"), 0o644))
	_, _, err = execute(t, "validate", coreSchema, broken)
	assert.Error(t, err)

	_, _, err = execute(t, "validate")
	assert.Error(t, err)
}

func TestDump(t *testing.T) {
	out, stderr, err := execute(t, "dump", coreSchema, sceneDoc)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Bogus")

	root, err := serialization.Unmarshal([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, []string{"Entity", "Texture"}, serialization.Keys(root))
	assert.Contains(t, out, "albedo")

	out, _, err = execute(t, "dump", "--type", "Texture", coreSchema, sceneDoc)
	require.NoError(t, err)
	root, err = serialization.Unmarshal([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, []string{"Texture"}, serialization.Keys(root))

	_, _, err = execute(t, "dump", "--strict", coreSchema, sceneDoc)
	assert.Error(t, err)
}

func TestStress(t *testing.T) {
	out, _, err := execute(t, "stress", coreSchema, "--type", "Texture", "--workers", "4", "--ops", "200")
	require.NoError(t, err)
	assert.Contains(t, out, "created=200 exhausted=0 living=100")

	out, _, err = execute(t, "stress", coreSchema, "--type", "Entity", "--ops", "20", "--workers", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "living=10")

	_, _, err = execute(t, "stress", coreSchema, "--type", "PointLight")
	assert.Error(t, err)

	_, _, err = execute(t, "stress", coreSchema)
	assert.Error(t, err, "--type is required")
}

func TestBadLogLevel(t *testing.T) {
	_, _, err := execute(t, "validate", "--log-level", "loud", coreSchema)
	assert.Error(t, err)
}
