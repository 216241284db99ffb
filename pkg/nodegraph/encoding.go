package nodegraph

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"

	"github.com/pomerium/sketchkit/pkg/capability"
)

const (
	version       = 1
	maxTableBytes = 1 << 34
)

var magic = [4]byte{'S', 'K', 'N', 'G'}

type header struct {
	Magic   [4]byte
	Version uint8
	Ksize   uint32
	NTables uint8
}

type tableHeader struct {
	Size   uint64
	NBytes uint64
}

// ToWriter writes the graph in its binary format: a fixed header followed by
// every table's size and bitset encoding.
func (g *Nodegraph) ToWriter(w io.Writer) error {
	const op = "nodegraph.ToWriter"
	if len(g.tables) == 0 || len(g.tables) > maxTables {
		return capability.Representationf(op, "graph has %d tables", len(g.tables))
	}
	encoded := make([][]byte, len(g.tables))
	for i, t := range g.tables {
		data, err := t.MarshalBinary()
		if err != nil {
			return capability.RepresentationError(op, err)
		}
		encoded[i] = data
	}

	s := capability.NewSink(w, op)
	if err := binary.Write(s, binary.LittleEndian, header{
		Magic:   magic,
		Version: version,
		Ksize:   g.ksize,
		NTables: uint8(len(g.tables)),
	}); err != nil {
		return capability.SinkError(op, err)
	}
	for i, data := range encoded {
		if err := binary.Write(s, binary.LittleEndian, tableHeader{
			Size:   uint64(g.tables[i].Len()),
			NBytes: uint64(len(data)),
		}); err != nil {
			return capability.SinkError(op, err)
		}
		if _, err := s.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// Read decodes a graph written by ToWriter.
func Read(r io.Reader) (*Nodegraph, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrInvalidFormat, err)
	}
	if h.Magic != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrInvalidFormat, h.Magic[:])
	}
	if h.Version != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, h.Version)
	}
	if h.NTables == 0 {
		return nil, fmt.Errorf("%w: no tables", ErrInvalidFormat)
	}

	g := &Nodegraph{ksize: h.Ksize, tables: make([]*bitset.BitSet, h.NTables)}
	for i := range g.tables {
		var th tableHeader
		if err := binary.Read(r, binary.LittleEndian, &th); err != nil {
			return nil, fmt.Errorf("%w: table %d: %w", ErrInvalidFormat, i, err)
		}
		if th.Size == 0 || th.Size > (maxTableBytes-8)*8 {
			return nil, fmt.Errorf("%w: table %d has invalid size %d", ErrInvalidFormat, i, th.Size)
		}
		// bitset encoding: length word followed by the data words
		if want := 8 + 8*((th.Size+63)/64); th.NBytes != want {
			return nil, fmt.Errorf("%w: table %d has %d bytes, expected %d", ErrInvalidFormat, i, th.NBytes, want)
		}
		data := make([]byte, th.NBytes)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("%w: table %d: %w", ErrInvalidFormat, i, err)
		}
		t := new(bitset.BitSet)
		if err := t.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("%w: table %d: %w", ErrInvalidFormat, i, err)
		}
		if uint64(t.Len()) != th.Size || th.Size == 0 {
			return nil, fmt.Errorf("%w: table %d has size %d, expected %d", ErrInvalidFormat, i, t.Len(), th.Size)
		}
		g.tables[i] = t
	}
	return g, nil
}

var _ capability.ToWriter = (*Nodegraph)(nil)
