package inspector

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/talaub/lowzero/internal/core/fault"
	"github.com/talaub/lowzero/internal/core/handle"
	"github.com/talaub/lowzero/internal/core/observability/log"
	"github.com/talaub/lowzero/internal/core/reflection"
	"github.com/talaub/lowzero/internal/core/serialization"
)

// handle executes one request. Fatal runtime assertions are reported to the
// client instead of taking the process down.
func (s *Server) handle(c *client, req Request) Response {
	resp := Response{ID: req.ID, Op: req.Op}

	var (
		data any
		err  error
	)
	if ft := fault.Catch(func() { data, err = s.dispatch(c, req) }); ft != nil {
		err = ft
	}
	if err != nil {
		c.logger.Debug("Request failed", log.String("op", req.Op), log.Error(err))
		resp.Error = err.Error()
		return resp
	}
	resp.OK = true
	resp.Data = data
	return resp
}

func (s *Server) dispatch(c *client, req Request) (any, error) {
	switch req.Op {
	case OpTypes:
		return s.types(), nil
	case OpLiving:
		return s.living(req.Type)
	case OpSerialize:
		h, err := s.alive(req.Handle)
		if err != nil {
			return nil, err
		}
		return nodeValue(s.world.Serialize(h))
	case OpGet:
		return s.get(req)
	case OpSet:
		return nil, s.set(req)
	case OpObserve:
		h, err := s.alive(req.Handle)
		if err != nil {
			return nil, err
		}
		if req.Observable == "" {
			return nil, ErrMissingObservable
		}
		return c.observe(h, req.Observable).ID(), nil
	case OpUnobserve:
		if !c.unobserve(req.Subscription) {
			return nil, fmt.Errorf("%q: %w", req.Subscription, ErrUnknownSubscription)
		}
		return nil, nil
	case OpDestroy:
		h, err := s.alive(req.Handle)
		if err != nil {
			return nil, err
		}
		s.world.Destroy(h)
		return nil, nil
	default:
		return nil, fmt.Errorf("%q: %w", req.Op, ErrUnknownOp)
	}
}

func (s *Server) types() []TypeSummary {
	types := s.world.Types().Types()
	out := make([]TypeSummary, 0, len(types))
	for _, t := range types {
		summary := TypeSummary{
			ID:        uint16(t.ID),
			Name:      t.Name,
			Module:    t.Module,
			Component: t.Component,
			Capacity:  t.Capacity(),
			Living:    t.LivingCount(),
		}
		for _, p := range t.Properties {
			if p.PrivateGetter {
				continue
			}
			summary.Properties = append(summary.Properties, PropertySummary{
				Name:           p.Name,
				Kind:           p.Kind.String(),
				HandleType:     p.HandleType,
				Readable:       p.Readable(),
				Writable:       editable(p),
				EditorEditable: p.EditorEditable,
			})
		}
		for _, f := range t.Functions {
			summary.Functions = append(summary.Functions, f.Name)
		}
		out = append(out, summary)
	}
	return out
}

func (s *Server) living(name string) ([]string, error) {
	t, ok := s.world.Types().TypeByName(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownType)
	}
	living := t.Living()
	out := make([]string, len(living))
	for i, h := range living {
		out[i] = strconv.FormatUint(h.ID(), 10)
	}
	return out, nil
}

func (s *Server) get(req Request) (any, error) {
	h, p, err := s.property(req)
	if err != nil {
		return nil, err
	}
	if p.PrivateGetter {
		return nil, fmt.Errorf("%s: %w", p.Name, ErrPrivate)
	}
	if !p.Readable() {
		return nil, fmt.Errorf("%s: %w", p.Name, reflection.ErrNotReadable)
	}
	node, ok, err := s.world.Codec().Encode(p, p.Get(h))
	if err != nil || !ok {
		return nil, err
	}
	return nodeValue(node)
}

func (s *Server) set(req Request) error {
	h, p, err := s.property(req)
	if err != nil {
		return err
	}
	switch {
	case p.PrivateSetter:
		return fmt.Errorf("%s: %w", p.Name, ErrPrivate)
	case !p.Writable():
		return fmt.Errorf("%s: %w", p.Name, reflection.ErrNotWritable)
	case !p.EditorEditable:
		return fmt.Errorf("%s: %w", p.Name, ErrNotEditable)
	}
	// JSON is a subset of YAML, so the value goes through the document codec.
	node, err := serialization.Unmarshal(req.Value)
	if err != nil {
		return err
	}
	v, err := s.world.Codec().Decode(p, node, handle.Dead)
	if err != nil {
		return err
	}
	p.Set(h, v)
	return nil
}

// editable reports whether editor clients may write p.
func editable(p *reflection.PropertyInfo) bool {
	return p.Writable() && p.EditorEditable && !p.PrivateSetter
}

func (s *Server) property(req Request) (handle.Handle, *reflection.PropertyInfo, error) {
	h, err := s.alive(req.Handle)
	if err != nil {
		return handle.Dead, nil, err
	}
	t := s.world.Types().Type(h.Type())
	p, ok := t.Property(req.Property)
	if !ok {
		return handle.Dead, nil, fmt.Errorf("%s.%s: %w", t.Name, req.Property, ErrUnknownProperty)
	}
	return h, p, nil
}

func (s *Server) alive(id uint64) (handle.Handle, error) {
	h := handle.FromID(id)
	if !s.world.IsAlive(h) {
		return handle.Dead, fmt.Errorf("%s: %w", h, ErrNotAlive)
	}
	return h, nil
}

// nodeValue converts a document node into plain values for JSON encoding.
func nodeValue(node *yaml.Node) (any, error) {
	if node == nil {
		return nil, nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", serialization.ErrMalformed, err)
	}
	return v, nil
}
