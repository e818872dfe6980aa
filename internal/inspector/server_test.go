package inspector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talaub/lowzero/internal/core/math"
	"github.com/talaub/lowzero/internal/core/observability/log"
	"github.com/talaub/lowzero/internal/core/world"
)

type frame struct {
	ID           string          `json:"id"`
	Op           string          `json:"op"`
	OK           bool            `json:"ok"`
	Error        string          `json:"error"`
	Data         json.RawMessage `json:"data"`
	Subscription string          `json:"subscription"`
	Handle       string          `json:"handle"`
	Observable   string          `json:"observable"`
}

func newInspector(t *testing.T) (*world.World, *Server, *websocket.Conn) {
	t.Helper()
	w := world.New(log.Nop(), world.Options{})
	require.NoError(t, w.Load(context.Background(), filepath.Join("..", "core", "schema", "testdata", "core.yaml")))
	t.Cleanup(func() { _ = w.Close() })

	srv := NewServer(w, log.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return w, srv, conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, req map[string]any) frame {
	t.Helper()
	require.NoError(t, conn.WriteJSON(req))
	return read(t, conn)
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func id(h interface{ ID() uint64 }) string { return strconv.FormatUint(h.ID(), 10) }

func TestTypes(t *testing.T) {
	_, _, conn := newInspector(t)

	resp := roundTrip(t, conn, map[string]any{"id": "1", "op": OpTypes})
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, "1", resp.ID)

	var types []TypeSummary
	require.NoError(t, json.Unmarshal(resp.Data, &types))
	require.Len(t, types, 5)
	assert.Equal(t, "Entity", types[0].Name)

	light := types[2]
	assert.Equal(t, "PointLight", light.Name)
	assert.True(t, light.Component)
	assert.Equal(t, uint32(4), light.Capacity)
	assert.Equal(t, []string{"brighten"}, light.Functions)
	var color PropertySummary
	for _, p := range light.Properties {
		if p.Name == "color" {
			color = p
		}
	}
	assert.Equal(t, "ColorRGB", color.Kind)
	assert.True(t, color.EditorEditable)
	assert.True(t, color.Writable)

	writable := make(map[string]bool)
	for _, p := range light.Properties {
		writable[p.Name] = p.Writable
	}
	assert.Contains(t, writable, "entity")
	assert.False(t, writable["entity"], "the owner is bound at creation")
	assert.False(t, writable["unique_id"])
	assert.False(t, writable["intensity"], "not editor editable")

	gpu := types[4]
	require.Equal(t, "GpuTexture", gpu.Name)
	for _, p := range gpu.Properties {
		assert.NotEqual(t, "bindless_index", p.Name, "private getters are hidden")
	}
}

func TestSetPushesNotification(t *testing.T) {
	w, _, conn := newInspector(t)
	tex := w.MustPool("Texture").MakeNamed("albedo")

	resp := roundTrip(t, conn, map[string]any{"op": OpObserve, "handle": id(tex), "observable": "path"})
	require.True(t, resp.OK, resp.Error)
	var sub string
	require.NoError(t, json.Unmarshal(resp.Data, &sub))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"id": "2", "op": OpSet, "handle": id(tex), "property": "path", "value": "textures/albedo.png",
	}))
	note := read(t, conn)
	assert.Equal(t, OpNotify, note.Op)
	assert.Equal(t, sub, note.Subscription)
	assert.Equal(t, id(tex), note.Handle)
	assert.Equal(t, "path", note.Observable)

	resp = read(t, conn)
	assert.Equal(t, "2", resp.ID)
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, "textures/albedo.png", w.MustPool("Texture").Get(tex, "path"))

	resp = roundTrip(t, conn, map[string]any{"op": OpUnobserve, "subscription": sub})
	require.True(t, resp.OK, resp.Error)
	resp = roundTrip(t, conn, map[string]any{"op": OpUnobserve, "subscription": sub})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, ErrUnknownSubscription.Error())
}

func TestGetAndSetComposite(t *testing.T) {
	w, _, conn := newInspector(t)
	e := w.MustPool("Entity").MakeNamed("player")
	tr := w.MustPool("Transform").MakeComponent(e)

	resp := roundTrip(t, conn, map[string]any{
		"op": OpSet, "handle": id(tr), "property": "position", "value": map[string]any{"x": 1.5, "z": -2},
	})
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, math.Vector3{X: 1.5, Z: -2}, w.MustPool("Transform").Get(tr, "position"))

	resp = roundTrip(t, conn, map[string]any{"op": OpGet, "handle": id(tr), "property": "scale"})
	require.True(t, resp.OK, resp.Error)
	assert.JSONEq(t, `{"x": 1, "y": 1, "z": 1}`, string(resp.Data))

	resp = roundTrip(t, conn, map[string]any{"op": OpSerialize, "handle": id(e)})
	require.True(t, resp.OK, resp.Error)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &doc))
	assert.Equal(t, "player", doc["name"])
	assert.Contains(t, doc, "transform")

	resp = roundTrip(t, conn, map[string]any{"op": OpLiving, "type": "Transform"})
	require.True(t, resp.OK, resp.Error)
	assert.JSONEq(t, `["`+id(tr)+`"]`, string(resp.Data))
}

func TestRequestErrors(t *testing.T) {
	w, _, conn := newInspector(t)
	tex := w.MustPool("Texture").MakeNamed("albedo")
	owner, other := w.MustPool("Entity").MakeNamed("owner"), w.MustPool("Entity").MakeNamed("other")
	tr := w.MustPool("Transform").MakeComponent(owner)
	gpu := w.MustPool("GpuTexture").Make()

	tests := []struct {
		name string
		req  map[string]any
		want error
	}{
		{"unknown op", map[string]any{"op": "teleport"}, ErrUnknownOp},
		{"unknown type", map[string]any{"op": OpLiving, "type": "Nope"}, ErrUnknownType},
		{"unknown property", map[string]any{"op": OpGet, "handle": id(tex), "property": "nope"}, ErrUnknownProperty},
		{"dead handle", map[string]any{"op": OpGet, "handle": "12345", "property": "path"}, ErrNotAlive},
		{"missing observable", map[string]any{"op": OpObserve, "handle": id(tex)}, ErrMissingObservable},
		{"private setter", map[string]any{"op": OpSet, "handle": id(tr), "property": "entity", "value": id(other)}, ErrPrivate},
		{"unique id", map[string]any{"op": OpSet, "handle": id(tex), "property": "unique_id", "value": "00000000000000ff"}, ErrPrivate},
		{"not editable", map[string]any{"op": OpSet, "handle": id(tr), "property": "scale", "value": map[string]any{"x": 2}}, ErrNotEditable},
		{"private getter", map[string]any{"op": OpGet, "handle": id(gpu), "property": "bindless_index"}, ErrPrivate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := roundTrip(t, conn, tt.req)
			assert.False(t, resp.OK)
			assert.Contains(t, resp.Error, tt.want.Error())
		})
	}

	// A bad value is reported without touching the property.
	resp := roundTrip(t, conn, map[string]any{"op": OpSet, "handle": id(tex), "property": "size", "value": "wide"})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "expected mapping")
	assert.Equal(t, math.UVector2{}, w.MustPool("Texture").Get(tex, "size"))

	assert.Equal(t, owner, w.MustPool("Transform").Get(tr, "entity"))
	assert.Equal(t, math.Vector3{X: 1, Y: 1, Z: 1}, w.MustPool("Transform").Get(tr, "scale"))
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	_, _, conn := newInspector(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	resp := read(t, conn)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "malformed request")

	resp = roundTrip(t, conn, map[string]any{"op": OpTypes})
	assert.True(t, resp.OK, resp.Error)
}

func TestDestroy(t *testing.T) {
	w, _, conn := newInspector(t)
	tex := w.MustPool("Texture").MakeNamed("albedo")

	resp := roundTrip(t, conn, map[string]any{"op": OpObserve, "handle": id(tex), "observable": "destroy"})
	require.True(t, resp.OK, resp.Error)

	require.NoError(t, conn.WriteJSON(map[string]any{"op": OpDestroy, "handle": id(tex)}))
	note := read(t, conn)
	assert.Equal(t, OpNotify, note.Op)
	assert.Equal(t, "destroy", note.Observable)
	resp = read(t, conn)
	require.True(t, resp.OK, resp.Error)
	assert.False(t, w.IsAlive(tex))
}

func TestStartStop(t *testing.T) {
	w := world.New(log.Nop(), world.Options{})
	t.Cleanup(func() { _ = w.Close() })
	srv := NewServer(w, log.Nop())
	ctx := context.Background()

	require.NoError(t, srv.Start(ctx, "127.0.0.1:0"))
	assert.ErrorIs(t, srv.Start(ctx, "127.0.0.1:0"), ErrServerAlreadyRunning)
	require.NoError(t, srv.Stop(ctx))
	assert.ErrorIs(t, srv.Stop(ctx), ErrServerNotRunning)
	assert.ErrorIs(t, srv.Start(ctx, "127.0.0.1:0"), ErrServerClosed)
}

func TestHealthz(t *testing.T) {
	srv := NewServer(world.New(log.Nop(), world.Options{}), log.Nop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
