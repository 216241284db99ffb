package protoutil

import (
	"bytes"
	"io"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/pomerium/sketchkit/pkg/capability"
)

// MaskedUpdate updates a message from Source. With a Mask, each masked field
// of the target is replaced by Source's value. Without one, Source is merged
// into the target.
type MaskedUpdate struct {
	Source proto.Message
	Mask   *fieldmaskpb.FieldMask
}

// Update implements capability.Updater. Source is never modified and the
// target is left unchanged on failure.
func (u MaskedUpdate) Update(target proto.Message) error {
	const op = "protoutil.MaskedUpdate"
	if u.Source == nil || target == nil || !u.Source.ProtoReflect().IsValid() || !target.ProtoReflect().IsValid() {
		return capability.Updatef(op, "nil message")
	}
	sd, td := u.Source.ProtoReflect().Descriptor(), target.ProtoReflect().Descriptor()
	if sd != td {
		return capability.Updatef(op, "%w: %v, %v", ErrDescriptorMismatch, td.FullName(), sd.FullName())
	}

	src := proto.Clone(u.Source)
	if u.Mask == nil {
		proto.Merge(target, src)
		return nil
	}
	if err := OverwriteMasked(target, src, u.Mask); err != nil {
		return capability.UpdateError(op, err)
	}
	return nil
}

// Delimited writes Message in size-delimited binary form.
type Delimited struct {
	Message proto.Message
}

// ToWriter implements capability.ToWriter.
func (d Delimited) ToWriter(w io.Writer) error {
	const op = "protoutil.Delimited"
	if d.Message == nil || !d.Message.ProtoReflect().IsValid() {
		return capability.Representationf(op, "nil message")
	}
	var buf bytes.Buffer
	_, err := protodelim.MarshalOptions{
		MarshalOptions: proto.MarshalOptions{Deterministic: true},
	}.MarshalTo(&buf, d.Message)
	if err != nil {
		return capability.RepresentationError(op, err)
	}
	_, err = capability.NewSink(w, op).Write(buf.Bytes())
	return err
}

// JSON writes Message as protojson.
type JSON struct {
	Message proto.Message
}

// ToWriter implements capability.ToWriter.
func (j JSON) ToWriter(w io.Writer) error {
	const op = "protoutil.JSON"
	if j.Message == nil || !j.Message.ProtoReflect().IsValid() {
		return capability.Representationf(op, "nil message")
	}
	data, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(j.Message)
	if err != nil {
		return capability.RepresentationError(op, err)
	}
	_, err = capability.NewSink(w, op).Write(data)
	return err
}
