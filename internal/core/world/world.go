// Package world owns the application-lifetime state of the runtime: the type
// registry, unique ids, the observer bus, the codec and one pool per registered
// type.
package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/talaub/lowzero/internal/config"
	"github.com/talaub/lowzero/internal/core/fault"
	"github.com/talaub/lowzero/internal/core/handle"
	"github.com/talaub/lowzero/internal/core/observability/log"
	"github.com/talaub/lowzero/internal/core/observer"
	"github.com/talaub/lowzero/internal/core/pool"
	"github.com/talaub/lowzero/internal/core/reflection"
	"github.com/talaub/lowzero/internal/core/schema"
	"github.com/talaub/lowzero/internal/core/serialization"
	"github.com/talaub/lowzero/internal/core/uniqueid"
)

var (
	ErrClosed      = errors.New("world is closed")
	ErrUnknownPool = errors.New("unknown pool")
)

// Options tune pool construction.
type Options struct {
	MinPageSize uint32
	MaxPageSize uint32
	Capacities  config.Capacities
	// Hooks are bound to the type with the same name when it is registered.
	Hooks map[string]pool.Hooks
}

// OptionsFromConfig maps the process configuration onto world options.
func OptionsFromConfig(cfg config.Config, caps config.Capacities) Options {
	return Options{
		MinPageSize: cfg.MinPageSize,
		MaxPageSize: cfg.MaxPageSize,
		Capacities:  caps,
	}
}

// World replaces process globals: everything a pool needs is reachable from it.
// Initialisation order is logger, registry, unique ids, bus, codec, pools;
// Close tears the pools down in reverse registration order.
type World struct {
	logger log.Log
	opts   Options

	types *reflection.Registry
	ids   *uniqueid.Registry
	bus   observer.Bus
	codec *serialization.Codec

	mu     sync.RWMutex
	docs   []*schema.Document
	pools  []*pool.Pool
	byName map[string]*pool.Pool
	byID   map[handle.TypeID]*pool.Pool

	closed atomic.Bool
}

func New(logger log.Log, opts Options) *World {
	if logger == nil {
		logger = log.Nop()
	}
	w := &World{
		logger: logger.Named("world"),
		opts:   opts,
		types:  reflection.NewRegistry(),
		ids:    uniqueid.NewRegistry(),
		byName: make(map[string]*pool.Pool),
		byID:   make(map[handle.TypeID]*pool.Pool),
	}
	w.bus = observer.New(w.types)
	w.codec = serialization.NewCodec(w.types, w.ids, logger.Named("codec"))
	return w
}

func (w *World) Log() log.Log                { return w.logger }
func (w *World) Types() *reflection.Registry { return w.types }
func (w *World) IDs() *uniqueid.Registry     { return w.ids }
func (w *World) Bus() observer.Bus           { return w.bus }
func (w *World) Codec() *serialization.Codec { return w.codec }

// Load reads the schema files in parallel and registers them in path order.
func (w *World) Load(ctx context.Context, paths ...string) error {
	docs, err := schema.LoadAll(ctx, paths)
	if err != nil {
		return err
	}
	return w.Register(docs...)
}

// Register expands and validates docs together with the documents registered
// before, then creates a pool per type. Nothing is registered when validation
// fails.
func (w *World) Register(docs ...*schema.Document) error {
	if w.closed.Load() {
		return ErrClosed
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, doc := range docs {
		doc.Expand()
		for _, t := range doc.Types {
			t.Capacity = w.opts.Capacities.Get(t.Module, t.Name, t.Capacity)
		}
	}
	all := append(append([]*schema.Document{}, w.docs...), docs...)
	if err := schema.Validate(all...); err != nil {
		return err
	}

	for _, doc := range docs {
		for _, e := range doc.Enums {
			info := &reflection.EnumInfo{ID: e.EnumID, Name: e.Name, Values: e.Values}
			if err := w.types.RegisterEnum(info); err != nil {
				return err
			}
		}
	}

	svc := pool.Services{Types: w.types, Bus: w.bus, IDs: w.ids, Codec: w.codec, Log: w.logger.Named("pool")}
	opts := pool.Options{MinPageSize: w.opts.MinPageSize, MaxPageSize: w.opts.MaxPageSize}
	for _, doc := range docs {
		for _, t := range doc.Types {
			p, err := pool.New(t, svc, opts, w.opts.Hooks[t.Name])
			if err != nil {
				return err
			}
			w.pools = append(w.pools, p)
			w.byName[t.Name] = p
			w.byID[p.ID()] = p
		}
		w.docs = append(w.docs, doc)
		w.logger.Info("Module registered",
			log.String("module", doc.Module), log.Int("types", len(doc.Types)), log.Int("enums", len(doc.Enums)))
	}
	return nil
}

// Freeze rejects further registration.
func (w *World) Freeze() { w.types.Freeze() }

// Pool returns the pool of the named type.
func (w *World) Pool(name string) (*pool.Pool, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.byName[name]
	return p, ok
}

// MustPool is Pool for names known to be registered; unknown names are fatal.
func (w *World) MustPool(name string) *pool.Pool {
	p, ok := w.Pool(name)
	if !ok {
		fault.Raise("pool", name, ErrUnknownPool)
	}
	return p
}

// PoolOf returns the pool owning h.
func (w *World) PoolOf(h handle.Handle) (*pool.Pool, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.byID[h.Type()]
	return p, ok
}

// Pools lists the pools in registration order.
func (w *World) Pools() []*pool.Pool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*pool.Pool, len(w.pools))
	copy(out, w.pools)
	return out
}

// Documents lists the registered schema documents.
func (w *World) Documents() []*schema.Document {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*schema.Document, len(w.docs))
	copy(out, w.docs)
	return out
}

func (w *World) IsAlive(h handle.Handle) bool { return w.types.IsAlive(h) }

// Destroy destroys h through its type. Dead handles are fatal.
func (w *World) Destroy(h handle.Handle) {
	w.types.Type(h.Type()).Destroy(h)
}

// Find resolves a unique id to its live handle, or handle.Dead.
func (w *World) Find(id uniqueid.ID) handle.Handle {
	return w.ids.Find(id)
}

// Serialize writes h into a fresh mapping node.
func (w *World) Serialize(h handle.Handle) *yaml.Node {
	return w.codec.SerializeHandle(h)
}

// Close tears down every pool in reverse registration order, then drops the
// unique-id bindings. Closing twice is a no-op.
func (w *World) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	pools := w.Pools()
	for i := len(pools) - 1; i >= 0; i-- {
		if ft := fault.Catch(pools[i].Cleanup); ft != nil {
			return fmt.Errorf("close %s: %w", pools[i].Name(), ft)
		}
	}
	w.ids.Reset()
	m := w.bus.Metrics()
	w.logger.Info("World closed",
		log.Int("pools", len(pools)), log.Uint64("broadcasts", m.Broadcasts), log.Uint64("delivered", m.Delivered))
	return nil
}
