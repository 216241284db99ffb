// Package protoutil adapts protobuf messages to the update and serialization
// contracts of package capability.
package protoutil

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/fieldmaskpb"
)

// ErrDescriptorMismatch indicates two messages do not share a descriptor.
var ErrDescriptorMismatch = errors.New("descriptor mismatch")

// OverwriteMasked copies the masked fields of src into dst. A masked field
// absent from src is cleared in dst. The mask is checked against the message
// type before dst is touched, so an invalid mask leaves dst unchanged.
// Composite fields copied into dst may share memory with src.
func OverwriteMasked(dst, src proto.Message, m *fieldmaskpb.FieldMask) error {
	t := newFieldMaskTree(m)
	d, s := dst.ProtoReflect(), src.ProtoReflect()
	if err := t.check(d.Descriptor(), s.Descriptor()); err != nil {
		return err
	}
	t.overwrite(d, s)
	return nil
}

// fieldMaskTree holds mask paths split on dots. An empty subtree selects the
// whole field.
type fieldMaskTree map[string]fieldMaskTree

func newFieldMaskTree(m *fieldmaskpb.FieldMask) fieldMaskTree {
	var t fieldMaskTree
	for _, p := range m.GetPaths() {
		t.add(p)
	}
	return t
}

func (t *fieldMaskTree) add(path string) {
	if *t == nil {
		*t = make(fieldMaskTree)
	}
	node := *t
	for _, part := range strings.Split(path, ".") {
		next, ok := node[part]
		switch {
		case !ok:
			next = make(fieldMaskTree)
			node[part] = next
		case len(next) == 0:
			// a parent path already selects everything below
			return
		}
		node = next
	}
	clear(node)
}

func (t fieldMaskTree) check(dst, src protoreflect.MessageDescriptor) error {
	if dst != src {
		return fmt.Errorf("%w: %v, %v", ErrDescriptorMismatch, dst.FullName(), src.FullName())
	}
	for name, sub := range t {
		f := dst.Fields().ByName(protoreflect.Name(name))
		if f == nil {
			return fmt.Errorf("unknown field %q in message %v", name, dst.FullName())
		}
		if len(sub) == 0 {
			continue
		}
		if f.Cardinality() == protoreflect.Repeated || f.Kind() != protoreflect.MessageKind {
			return fmt.Errorf("field %q in message %v has no sub-fields", f.TextName(), dst.FullName())
		}
		if err := sub.check(f.Message(), f.Message()); err != nil {
			return err
		}
	}
	return nil
}

func (t fieldMaskTree) overwrite(dst, src protoreflect.Message) {
	fields := dst.Descriptor().Fields()
	for name, sub := range t {
		f := fields.ByName(protoreflect.Name(name))
		if len(sub) > 0 {
			if dst.Has(f) || src.Has(f) {
				sub.overwrite(dst.Mutable(f).Message(), src.Get(f).Message())
			}
			continue
		}
		if src.Has(f) {
			dst.Set(f, src.Get(f))
		} else {
			dst.Clear(f)
		}
	}
}
