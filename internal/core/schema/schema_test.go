package schema

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/talaub/lowzero/internal/core/reflection"
)

func loadCore(t *testing.T) *Document {
	t.Helper()
	doc, err := Load(filepath.Join("testdata", "core.yaml"))
	require.NoError(t, err)
	return doc
}

func propertyNames(t *Type) []string {
	names := make([]string, 0, len(t.Properties))
	for _, p := range t.Properties {
		names = append(names, p.Name)
	}
	return names
}

func TestLoadPreservesOrder(t *testing.T) {
	doc := loadCore(t)

	assert.Equal(t, "Core", doc.Module)
	require.Len(t, doc.Types, 5)

	names := make([]string, 0)
	for _, typ := range doc.Types {
		names = append(names, typ.Name)
		assert.Equal(t, "Core", typ.Module)
	}
	assert.Equal(t, []string{"Entity", "Transform", "PointLight", "Texture", "GpuTexture"}, names)

	transform, ok := doc.Type("Transform")
	require.True(t, ok)
	assert.Equal(t, []string{"position", "rotation", "scale", "parent"}, propertyNames(transform))
	assert.True(t, transform.Component)
	assert.Equal(t, []string{"dirty", "world_dirty"}, transform.DirtyFlags)

	position, _ := transform.Property("position")
	assert.Equal(t, StringList{"dirty", "world_dirty"}, position.DirtyFlag)
	rotation, _ := transform.Property("rotation")
	assert.Equal(t, StringList{"dirty"}, rotation.DirtyFlag, "scalar dirty_flag is promoted to a list")

	scale, _ := transform.Property("scale")
	require.NotNil(t, scale.Default)
	assert.Equal(t, reflection.KindVector3, scale.Kind())

	require.Len(t, doc.Enums, 1)
	assert.Equal(t, []string{"UNLOADED", "STREAMING", "LOADED"}, doc.Enums[0].Values)

	light, _ := doc.Type("PointLight")
	fn, ok := light.Function("brighten")
	require.True(t, ok)
	assert.Equal(t, "Float", fn.ReturnType)
	require.Len(t, fn.Parameters, 1)
	assert.Equal(t, "factor", fn.Parameters[0].Name)
}

func TestExpandSynthesizesProperties(t *testing.T) {
	doc := loadCore(t)
	doc.Expand()

	transform, _ := doc.Type("Transform")
	assert.Equal(t,
		[]string{"entity", "position", "rotation", "scale", "parent", "dirty", "world_dirty", "unique_id"},
		propertyNames(transform))
	entity, _ := transform.Property(PropertyEntity)
	assert.Equal(t, DefaultOwner, entity.Type)
	assert.True(t, entity.SkipSerialization)
	assert.Equal(t, reflection.KindHandle, entity.Kind())

	texture, _ := doc.Type("Texture")
	assert.Equal(t,
		[]string{"name", "path", "size", "state", "gpu", "transient", "unique_id", "references"},
		propertyNames(texture))
	refs, _ := texture.Property(PropertyReferences)
	assert.True(t, refs.NoSetter)
	assert.Equal(t, reflection.KindSet, refs.Kind())

	state, _ := texture.Property("state")
	assert.Equal(t, reflection.KindEnum, state.Kind())

	before := len(texture.Properties)
	texture.Expand()
	assert.Len(t, texture.Properties, before, "expand is idempotent")
}

func TestValidate(t *testing.T) {
	doc := loadCore(t)
	doc.Expand()
	require.NoError(t, Validate(doc))

	t.Run("broken references", func(t *testing.T) {
		bad, err := Parse([]byte(`
module: Broken
types:
  Light:
    type_id: 3
    component: true
    owner: Nowhere
    properties:
      target:
        type: Missing
        handle: true
      state:
        type: NoEnum
        enum: true
      flag:
        type: Bool
        dirty_flag: nope
      blob:
        type: Matrix9
`), "inline")
		require.NoError(t, err)
		bad.Expand()

		err = Validate(doc, bad)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidSchema)
		for _, want := range []string{
			"id 3 already used by PointLight",
			"unknown owner type Nowhere",
			"fixed capacity types need a capacity",
			"unknown handle type Missing",
			"unknown enum NoEnum",
			"unknown dirty flag nope",
			"Matrix9",
		} {
			assert.Contains(t, err.Error(), want)
		}
	})
}

func TestLoadAll(t *testing.T) {
	path := filepath.Join("testdata", "core.yaml")
	docs, err := LoadAll(context.Background(), []string{path, path})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, path, docs[1].Source)

	_, err = LoadAll(context.Background(), []string{filepath.Join("testdata", "missing.yaml")})
	assert.Error(t, err)
}

func TestParseRejectsNonMapping(t *testing.T) {
	_, err := Parse([]byte("- a\n- b\n"), "list")
	assert.Error(t, err)

	_, err = Parse([]byte("types: [a, b]\n"), "types-list")
	assert.Error(t, err)
}

func TestDefaultKeepsRawNode(t *testing.T) {
	doc, err := Parse([]byte(`
module: Defaults
types:
  Light:
    type_id: 1
    capacity: 1
    properties:
      intensity: {type: Float, default: 1}
      color:
        type: ColorRGB
        default: {x: 1, y: 0.5, z: 0}
      state: {type: String, default: null}
      plain: {type: Bool}
`), "defaults.yaml")
	require.NoError(t, err)
	light, ok := doc.Type("Light")
	require.True(t, ok)
	assert.Equal(t, []string{"intensity", "color", "state", "plain"}, propertyNames(light))

	intensity, _ := light.Property("intensity")
	require.NotNil(t, intensity.Default)
	assert.Equal(t, yaml.ScalarNode, intensity.Default.Kind)
	assert.Equal(t, "1", intensity.Default.Value)
	assert.Equal(t, reflection.KindFloat, intensity.Kind())

	color, _ := light.Property("color")
	require.NotNil(t, color.Default)
	assert.Equal(t, yaml.MappingNode, color.Default.Kind)
	assert.Len(t, color.Default.Content, 6)

	state, _ := light.Property("state")
	assert.Nil(t, state.Default, "null defaults are dropped")
	plain, _ := light.Property("plain")
	assert.Nil(t, plain.Default)
}
