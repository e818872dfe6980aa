package world

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/talaub/lowzero/internal/core/fault"
	"github.com/talaub/lowzero/internal/core/handle"
	"github.com/talaub/lowzero/internal/core/reflection"
	"github.com/talaub/lowzero/internal/core/serialization"
)

var ErrBadDocument = errors.New("bad scene document")

type loaded struct {
	info *reflection.TypeInfo
	h    handle.Handle
	node *yaml.Node
}

// LoadDocument instantiates a scene document: a mapping from type name to a
// sequence of serialized instances. Components are created through their owners.
// References between instances of the document are resolved once every instance
// exists, so their order in the document does not matter.
func (w *World) LoadDocument(root *yaml.Node) ([]handle.Handle, error) {
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: expected a mapping of type names", ErrBadDocument)
	}

	var (
		created []loaded
		errs    []error
	)
	for i := 0; i+1 < len(root.Content); i += 2 {
		name, items := root.Content[i].Value, root.Content[i+1]
		info, ok := w.types.TypeByName(name)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("%w: unknown type %s", ErrBadDocument, name))
			continue
		case info.Component:
			errs = append(errs, fmt.Errorf("%w: component %s must be embedded in its owner", ErrBadDocument, name))
			continue
		case items.Kind != yaml.SequenceNode:
			errs = append(errs, fmt.Errorf("%w: %s must list instances", ErrBadDocument, name))
			continue
		}
		for _, item := range items.Content {
			var h handle.Handle
			if ft := fault.Catch(func() { h = info.Deserialize(item, handle.Dead) }); ft != nil {
				errs = append(errs, ft)
				continue
			}
			created = append(created, loaded{info: info, h: h, node: item})
		}
	}

	for _, l := range created {
		w.resolveReferences(l.info, l.h, l.node)
	}

	out := make([]handle.Handle, len(created))
	for i, l := range created {
		out[i] = l.h
	}
	return out, errors.Join(errs...)
}

// resolveReferences re-reads the handle properties of h that were left dead
// because their target did not exist yet, descending into embedded instances.
func (w *World) resolveReferences(info *reflection.TypeInfo, h handle.Handle, node *yaml.Node) {
	for _, p := range info.Properties {
		if p.Kind != reflection.KindHandle || p.Get == nil || p.SkipDeserialization {
			continue
		}
		child := serialization.Child(node, p.Name)
		if child == nil {
			continue
		}
		cur, _ := p.Get(h).(handle.Handle)
		if p.Embedded {
			if w.types.IsAlive(cur) {
				w.resolveReferences(w.types.Type(cur.Type()), cur, child)
			}
			continue
		}
		if p.Set == nil || w.types.IsAlive(cur) {
			continue
		}
		v, err := w.codec.Decode(p, child, h)
		if err != nil {
			continue
		}
		if ref := v.(handle.Handle); !ref.IsDead() {
			p.Set(h, ref)
		}
	}
}

// Dump serializes every living instance of the named types into a scene
// document. Without names it covers every type that is neither a component nor
// embedded by another type, since those are written inside their owners.
func (w *World) Dump(names ...string) (*yaml.Node, error) {
	var infos []*reflection.TypeInfo
	if len(names) == 0 {
		types := w.types.Types()
		embedded := make(map[string]bool)
		for _, info := range types {
			for _, p := range info.Properties {
				if p.Kind == reflection.KindHandle && p.Embedded {
					embedded[p.HandleType] = true
				}
			}
		}
		for _, info := range types {
			if !info.Component && !embedded[info.Name] {
				infos = append(infos, info)
			}
		}
	} else {
		for _, name := range names {
			info, ok := w.types.TypeByName(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownPool, name)
			}
			infos = append(infos, info)
		}
	}

	root := serialization.NewMapping()
	for _, info := range infos {
		living := info.Living()
		if len(living) == 0 {
			continue
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, h := range living {
			node := serialization.NewMapping()
			info.Serialize(h, node)
			seq.Content = append(seq.Content, node)
		}
		serialization.SetChild(root, info.Name, seq)
	}
	return root, nil
}
