package injector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talaub/lowzero/internal/config"
)

func writeConfig(t *testing.T, body string) ConfigPath {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lowzero.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return ConfigPath(path)
}

func TestInitializeApp(t *testing.T) {
	schema, err := filepath.Abs(filepath.Join("..", "core", "schema", "testdata", "core.yaml"))
	require.NoError(t, err)
	caps := filepath.Join(t.TempDir(), "type_capacities.yaml")
	require.NoError(t, os.WriteFile(caps, []byte("Core:\n  PointLight: 3\n  Texture: 3\n"), 0o644))

	path := writeConfig(t, "log_level: warn\nschemas: ["+schema+"]\ncapacities_file: "+caps+"\n")
	app, cleanup, err := InitializeApp(context.Background(), path)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "warn", app.Config.LogLevel)
	assert.True(t, app.World.Types().Frozen())
	assert.Equal(t, uint32(3), app.World.MustPool("PointLight").Capacity())
	assert.Equal(t, uint32(8), app.World.MustPool("Texture").Capacity(), "growing types round up to the page size")
	assert.NotNil(t, app.Inspector)
}

func TestInitializeWorldRejectsBadConfig(t *testing.T) {
	_, _, err := InitializeWorld(context.Background(), writeConfig(t, "min_page_size: 3\n"))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, _, err = InitializeWorld(context.Background(), writeConfig(t, "schemas: [missing.yaml]\n"))
	assert.Error(t, err)
}
