package protoutil_test

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/known/apipb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/fieldmaskpb"
	"google.golang.org/protobuf/types/known/sourcecontextpb"

	"github.com/pomerium/sketchkit/pkg/capability"
	"github.com/pomerium/sketchkit/pkg/capability/capabilitytest"
	"github.com/pomerium/sketchkit/pkg/protoutil"
)

func newAPI() *apipb.Api {
	return &apipb.Api{
		Name:          "sketches",
		Version:       "v1",
		Methods:       []*apipb.Method{{Name: "Add"}},
		SourceContext: &sourcecontextpb.SourceContext{FileName: "a.proto"},
	}
}

func TestOverwriteMasked(t *testing.T) {
	t.Parallel()

	dst := newAPI()
	src := &apipb.Api{
		Name:          "trees",
		Methods:       []*apipb.Method{{Name: "Search"}, {Name: "Save"}},
		SourceContext: &sourcecontextpb.SourceContext{FileName: "b.proto"},
	}
	mask := &fieldmaskpb.FieldMask{Paths: []string{"name", "version", "source_context.file_name"}}
	require.NoError(t, protoutil.OverwriteMasked(dst, src, mask))

	want := &apipb.Api{
		Name:          "trees",
		Methods:       []*apipb.Method{{Name: "Add"}},
		SourceContext: &sourcecontextpb.SourceContext{FileName: "b.proto"},
	}
	assert.Empty(t, cmp.Diff(want, dst, protocmp.Transform()))

	t.Run("invalid mask leaves dst unchanged", func(t *testing.T) {
		t.Parallel()

		dst := newAPI()
		mask := &fieldmaskpb.FieldMask{Paths: []string{"name", "nope"}}
		assert.Error(t, protoutil.OverwriteMasked(dst, src, mask))
		assert.Empty(t, cmp.Diff(newAPI(), dst, protocmp.Transform()))
	})
}

func TestMaskedUpdate(t *testing.T) {
	t.Parallel()

	src := &apipb.Api{
		Name:    "trees",
		Methods: []*apipb.Method{{Name: "Search"}},
	}

	t.Run("merge", func(t *testing.T) {
		t.Parallel()

		target := newAPI()
		require.NoError(t, protoutil.MaskedUpdate{Source: src}.Update(target))
		want := newAPI()
		want.Name = "trees"
		want.Methods = append(want.Methods, &apipb.Method{Name: "Search"})
		assert.Empty(t, cmp.Diff(want, target, protocmp.Transform()))
	})

	t.Run("replace", func(t *testing.T) {
		t.Parallel()

		target := newAPI()
		u := protoutil.MaskedUpdate{Source: src, Mask: &fieldmaskpb.FieldMask{Paths: []string{"methods", "version"}}}
		require.NoError(t, u.Update(target))
		want := newAPI()
		want.Version = ""
		want.Methods = []*apipb.Method{{Name: "Search"}}
		assert.Empty(t, cmp.Diff(want, target, protocmp.Transform()))

		// target does not alias the source
		target.Methods[0].Name = "changed"
		assert.Equal(t, "Search", src.Methods[0].Name)
	})

	t.Run("mismatch", func(t *testing.T) {
		t.Parallel()

		target := durationpb.New(5)
		err := protoutil.MaskedUpdate{Source: src}.Update(target)
		assert.ErrorIs(t, err, capability.ErrUpdate)
		assert.ErrorIs(t, err, protoutil.ErrDescriptorMismatch)
		assert.Equal(t, int32(5), target.Nanos)
	})

	t.Run("invalid mask", func(t *testing.T) {
		t.Parallel()

		target := newAPI()
		err := protoutil.MaskedUpdate{Source: src, Mask: &fieldmaskpb.FieldMask{Paths: []string{"name.x"}}}.Update(target)
		assert.Equal(t, capability.KindUpdate, capability.KindOf(err))
		assert.Empty(t, cmp.Diff(newAPI(), target, protocmp.Transform()))
	})

	t.Run("nil", func(t *testing.T) {
		t.Parallel()

		var target *apipb.Api
		err := protoutil.MaskedUpdate{Source: src}.Update(target)
		assert.ErrorIs(t, err, capability.ErrUpdate)
	})

	t.Run("chain", func(t *testing.T) {
		t.Parallel()

		target := newAPI()
		u := capability.Chain[proto.Message](
			protoutil.MaskedUpdate{Source: &apipb.Api{Name: "first"}},
			protoutil.MaskedUpdate{Source: &apipb.Api{Version: "v2"}},
		)
		require.NoError(t, u.Update(target))
		assert.Equal(t, "first", target.Name)
		assert.Equal(t, "v2", target.Version)
	})
}

func TestDelimited(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	for _, m := range []proto.Message{newAPI(), durationpb.New(42)} {
		require.NoError(t, protoutil.Delimited{Message: m}.ToWriter(&buf))
	}

	r := bufio.NewReader(&buf)
	var api apipb.Api
	require.NoError(t, protodelim.UnmarshalFrom(r, &api))
	assert.Empty(t, cmp.Diff(newAPI(), &api, protocmp.Transform()))
	var d durationpb.Duration
	require.NoError(t, protodelim.UnmarshalFrom(r, &d))
	assert.Equal(t, int32(42), d.Nanos)

	capabilitytest.RequireDeterministic(t, protoutil.Delimited{Message: newAPI()})
	capabilitytest.RequireSinkFailure(t, protoutil.Delimited{Message: newAPI()})

	err := protoutil.Delimited{}.ToWriter(&buf)
	assert.ErrorIs(t, err, capability.ErrRepresentation)
}

func TestJSON(t *testing.T) {
	t.Parallel()

	data := capabilitytest.RequireDeterministic(t, protoutil.JSON{Message: newAPI()})
	var api apipb.Api
	require.NoError(t, protojson.Unmarshal(data, &api))
	assert.Empty(t, cmp.Diff(newAPI(), &api, protocmp.Transform()))
	assert.Contains(t, string(data), "source_context")

	capabilitytest.RequireSinkFailure(t, protoutil.JSON{Message: newAPI()})

	var nilAPI *apipb.Api
	err := protoutil.JSON{Message: nilAPI}.ToWriter(&bytes.Buffer{})
	assert.ErrorIs(t, err, capability.ErrRepresentation)
}
