package pool

import (
	"github.com/talaub/lowzero/internal/core/handle"
	"github.com/talaub/lowzero/internal/core/reflection"
)

// buildTypeInfo binds the reflection closures of the type to this pool.
func (p *Pool) buildTypeInfo() *reflection.TypeInfo {
	info := &reflection.TypeInfo{
		ID:        p.id,
		Name:      p.schema.Name,
		Module:    p.schema.Module,
		Component: p.schema.Component,
		UniqueID:  p.uniqueSpec != nil,

		Capacity:    p.Capacity,
		LivingCount: p.LivingCount,
		Living:      p.Living,
		FindByIndex: p.FindByIndex,
		IsAlive:     p.IsAlive,
		Destroy:     p.Destroy,
		Serialize:   p.Serialize,
		Deserialize: p.Deserialize,
		Notify:      p.Notify,
	}
	if p.schema.Component {
		info.MakeComponent = p.MakeComponent
		info.DuplicateComponent = p.DuplicateComponent
	} else {
		info.FindByName = p.FindByName
		info.MakeDefault = p.MakeNamed
		info.Duplicate = p.Duplicate
	}

	for _, spec := range p.specs {
		info.AddProperty(p.bindProperty(spec))
	}
	for _, fn := range p.schema.Functions {
		f := &reflection.FunctionInfo{
			Name:   fn.Name,
			Static: fn.Static,
		}
		if fn.ReturnsRef {
			f.Return = reflection.KindHandle
			f.ReturnHandleType = fn.ReturnType
		} else {
			f.Return, _ = reflection.ParseKind(fn.ReturnType)
		}
		for _, param := range fn.Parameters {
			f.Parameters = append(f.Parameters, p.parameterInfo(param.Name, param.Type, param.Handle, param.Enum))
		}
		info.AddFunction(f)
	}
	return info
}

func (p *Pool) bindProperty(spec *propertySpec) *reflection.PropertyInfo {
	info := spec.info
	ps, _ := p.schema.Property(info.Name)
	if !ps.NoGetter {
		info.Get = func(h handle.Handle) any { return p.get(h, spec) }
		info.Into = func(h handle.Handle, dst any) error { return p.into(h, spec, dst) }
	}
	if !ps.NoSetter && spec != p.ownerSpec {
		info.Set = func(h handle.Handle, v any) { p.set(h, spec, v) }
	}
	return info
}

func (p *Pool) parameterInfo(name, typ string, isHandle, isEnum bool) reflection.ParameterInfo {
	param := reflection.ParameterInfo{Name: name}
	switch {
	case isHandle:
		param.Kind = reflection.KindHandle
		param.HandleType = typ
	case isEnum:
		param.Kind = reflection.KindEnum
		if enum, ok := p.svc.Types.EnumByName(typ); ok {
			param.EnumID = enum.ID
		}
	default:
		param.Kind, _ = reflection.ParseKind(typ)
	}
	return param
}
