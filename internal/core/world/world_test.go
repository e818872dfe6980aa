package world

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talaub/lowzero/internal/config"
	"github.com/talaub/lowzero/internal/core/fault"
	"github.com/talaub/lowzero/internal/core/handle"
	"github.com/talaub/lowzero/internal/core/math"
	"github.com/talaub/lowzero/internal/core/observability/log"
	"github.com/talaub/lowzero/internal/core/pool"
	"github.com/talaub/lowzero/internal/core/schema"
	"github.com/talaub/lowzero/internal/core/serialization"
	"github.com/talaub/lowzero/internal/core/uniqueid"
)

var coreSchema = filepath.Join("..", "schema", "testdata", "core.yaml")

func newWorld(t *testing.T, opts Options) *World {
	t.Helper()
	w := New(log.Nop(), opts)
	require.NoError(t, w.Load(context.Background(), coreSchema))
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func loadScene(t *testing.T, w *World) []handle.Handle {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "scene.yaml"))
	require.NoError(t, err)
	root, err := serialization.Unmarshal(data)
	require.NoError(t, err)
	handles, err := w.LoadDocument(root)
	require.ErrorIs(t, err, ErrBadDocument)
	assert.Contains(t, err.Error(), "Bogus")
	return handles
}

func TestLoadRegistersPools(t *testing.T) {
	w := newWorld(t, Options{Capacities: config.Capacities{"Core": {"PointLight": 2}}})

	var names []string
	for _, p := range w.Pools() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"Entity", "Transform", "PointLight", "Texture", "GpuTexture"}, names)
	assert.Equal(t, uint32(2), w.MustPool("PointLight").Capacity())
	assert.Equal(t, uint32(8), w.MustPool("Entity").Capacity())
	assert.Equal(t, "Entity", w.Types().Type(1).Name)

	enum, ok := w.Types().EnumByName("TextureState")
	require.True(t, ok)
	assert.Equal(t, "LOADED", enum.EntryName(2))

	ft := fault.Catch(func() { w.MustPool("Nope") })
	require.NotNil(t, ft)
	assert.ErrorIs(t, ft, ErrUnknownPool)
}

func TestRegisterValidatesAcrossModules(t *testing.T) {
	w := newWorld(t, Options{})

	broken, err := schema.Parse([]byte(`
module: Broken
types:
  Clash:
    type_id: 1
    capacity: 1
`), "broken.yaml")
	require.NoError(t, err)
	assert.ErrorIs(t, w.Register(broken), schema.ErrInvalidSchema)
	assert.Len(t, w.Pools(), 5)

	render, err := schema.Parse([]byte(`
module: Render
types:
  Material:
    type_id: 10
    dynamic_increase: true
    capacity: 4
    properties:
      albedo: {type: Texture, handle: true}
`), "render.yaml")
	require.NoError(t, err)
	require.NoError(t, w.Register(render))
	assert.Len(t, w.Pools(), 6)
	assert.Len(t, w.Documents(), 2)

	w.Freeze()
	late, err := schema.Parse([]byte("module: Late\ntypes:\n  Late:\n    type_id: 11\n    capacity: 1\n"), "late.yaml")
	require.NoError(t, err)
	assert.Error(t, w.Register(late))
}

func TestLoadDocumentResolvesForwardReferences(t *testing.T) {
	w := newWorld(t, Options{})
	handles := loadScene(t, w)
	require.Len(t, handles, 4)

	entities, transforms := w.MustPool("Entity"), w.MustPool("Transform")
	root := w.Find(uniqueid.ID(0xa1))
	child := w.Find(uniqueid.ID(0xc1))
	require.True(t, entities.IsAlive(root))
	require.True(t, entities.IsAlive(child))
	assert.Equal(t, root, entities.FindByName("root"))

	tr := entities.Get(child, "transform").(handle.Handle)
	require.True(t, transforms.IsAlive(tr))
	assert.Equal(t, root, transforms.Get(tr, "parent"))
	assert.Equal(t, child, transforms.Get(tr, schema.PropertyEntity))
	assert.Equal(t, math.Vector3{X: 1}, transforms.Get(tr, "position"))

	textures, gpus := w.MustPool("Texture"), w.MustPool("GpuTexture")
	albedo := textures.FindByName("albedo")
	require.True(t, textures.IsAlive(albedo))
	assert.Equal(t, "textures/albedo.png", textures.Get(albedo, "path"))
	assert.Equal(t, math.UVector2{X: 512, Y: 256}, textures.Get(albedo, "size"))
	assert.Equal(t, uint8(2), textures.Get(albedo, "state"))
	gpu := textures.Get(albedo, "gpu").(handle.Handle)
	require.True(t, gpus.IsAlive(gpu))
	assert.Equal(t, uint8(9), gpus.Get(gpu, "mip_levels"))
	assert.Equal(t, true, gpus.Get(gpu, "srgb"))
}

func TestDumpRoundTrip(t *testing.T) {
	src := newWorld(t, Options{})
	loadScene(t, src)

	doc, err := src.Dump()
	require.NoError(t, err)
	assert.Equal(t, []string{"Entity", "Texture"}, serialization.Keys(doc))
	data, err := serialization.Marshal(doc)
	require.NoError(t, err)

	dst := newWorld(t, Options{})
	root, err := serialization.Unmarshal(data)
	require.NoError(t, err)
	handles, err := dst.LoadDocument(root)
	require.NoError(t, err)
	assert.Len(t, handles, 4)

	for _, name := range []string{"Entity", "Transform", "Texture", "GpuTexture"} {
		assert.Equal(t, src.MustPool(name).LivingCount(), dst.MustPool(name).LivingCount(), name)
	}

	child := dst.Find(uniqueid.ID(0xc1))
	tr := dst.MustPool("Entity").Get(child, "transform").(handle.Handle)
	assert.Equal(t, dst.Find(uniqueid.ID(0xa1)), dst.MustPool("Transform").Get(tr, "parent"))

	_, err = src.Dump("Nope")
	assert.ErrorIs(t, err, ErrUnknownPool)
}

func TestHooksFromOptions(t *testing.T) {
	var made []handle.Handle
	w := newWorld(t, Options{Hooks: map[string]pool.Hooks{
		"Entity": {OnMake: func(h handle.Handle) { made = append(made, h) }},
	}})

	e := w.MustPool("Entity").MakeNamed("hooked")
	assert.Equal(t, []handle.Handle{e}, made)
	assert.True(t, w.IsAlive(e))

	w.Destroy(e)
	assert.False(t, w.IsAlive(e))
}

func TestCloseTearsDown(t *testing.T) {
	w := New(log.Nop(), Options{})
	require.NoError(t, w.Load(context.Background(), coreSchema))
	loadScene(t, w)
	require.NotZero(t, w.IDs().Len())

	require.NoError(t, w.Close())
	for _, p := range w.Pools() {
		assert.Zero(t, p.LivingCount(), p.Name())
	}
	assert.Zero(t, w.IDs().Len())
	assert.ErrorIs(t, w.Register(&schema.Document{Module: "Late"}), ErrClosed)
	assert.NoError(t, w.Close())
}
