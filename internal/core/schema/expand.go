package schema

// Names of the properties Expand adds.
const (
	PropertyName       = "name"
	PropertyEntity     = "entity"
	PropertyUniqueID   = "unique_id"
	PropertyReferences = "references"
)

// DefaultOwner is the owner type of components that do not name one.
const DefaultOwner = "Entity"

// Expand adds the implicit properties implied by the type flags: the owner
// reference of components, the name of every other type, dirty flags, the unique
// id and the reference set. Declared properties with the same name win. Calling
// Expand twice is a no-op.
func (t *Type) Expand() {
	if t.Synthesized {
		return
	}
	t.Synthesized = true

	var head, tail []*Property
	if t.Component {
		if t.Owner == "" {
			t.Owner = DefaultOwner
		}
		head = t.appendMissing(head, &Property{
			Name:              PropertyEntity,
			Type:              t.Owner,
			Handle:            true,
			PrivateSetter:     true,
			SkipSerialization: true,
			SkipDuplication:   true,
		})
	} else {
		head = t.appendMissing(head, &Property{
			Name:            PropertyName,
			Type:            "Name",
			EditorEditable:  true,
			SkipDuplication: true,
		})
	}

	for _, flag := range t.DirtyFlags {
		tail = t.appendMissing(tail, &Property{
			Name:                flag,
			Type:                "Bool",
			SkipSerialization:   true,
			SkipDeserialization: true,
			SkipDuplication:     true,
		})
	}
	if t.UniqueID {
		tail = t.appendMissing(tail, &Property{
			Name:            PropertyUniqueID,
			Type:            "UniqueId",
			PrivateSetter:   true,
			SkipDuplication: true,
		})
	}
	if t.ReferenceCounted {
		tail = t.appendMissing(tail, &Property{
			Name:                PropertyReferences,
			Type:                "Set",
			NoSetter:            true,
			SkipSerialization:   true,
			SkipDeserialization: true,
			SkipDuplication:     true,
		})
	}

	props := make([]*Property, 0, len(head)+len(t.Properties)+len(tail))
	props = append(props, head...)
	props = append(props, t.Properties...)
	props = append(props, tail...)
	t.Properties = props
}

func (t *Type) appendMissing(list []*Property, p *Property) []*Property {
	if _, exists := t.Property(p.Name); exists {
		return list
	}
	return append(list, p)
}

// Expand expands every type of the document.
func (d *Document) Expand() {
	for _, t := range d.Types {
		t.Expand()
	}
}
