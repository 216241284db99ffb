package signature

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/pomerium/sketchkit/pkg/capability"
)

var gzipMagic = []byte{0x1f, 0x8b}

// ToWriter writes the signature as a single element signature list.
func (s *Signature) ToWriter(w io.Writer) error {
	return SaveSignatures(w, []*Signature{s}, 0)
}

// List is a list of signatures written as one file.
type List []*Signature

// ToWriter writes the list uncompressed.
func (l List) ToWriter(w io.Writer) error {
	return SaveSignatures(w, l, 0)
}

// SaveSignatures writes sigs to w as a JSON list. A compression level above
// zero gzips the output at that level.
func SaveSignatures(w io.Writer, sigs []*Signature, compression int) error {
	const op = "signature.SaveSignatures"
	for _, s := range sigs {
		if s == nil {
			return capability.Representationf(op, "nil signature")
		}
		for _, mh := range s.MinHashes {
			if mh == nil {
				return capability.Representationf(op, "nil sketch in %q", s.DisplayName())
			}
			if err := mh.Validate(); err != nil {
				return capability.RepresentationError(op, fmt.Errorf("%q: %w", s.DisplayName(), err))
			}
		}
	}
	if sigs == nil {
		sigs = []*Signature{}
	}
	data, err := json.Marshal(sigs)
	if err != nil {
		return capability.RepresentationError(op, err)
	}

	sink := capability.NewSink(w, op)
	if compression <= 0 {
		_, err = sink.Write(data)
		return err
	}

	zw, err := gzip.NewWriterLevel(sink, compression)
	if err != nil {
		return capability.RepresentationError(op, err)
	}
	if _, err := zw.Write(data); err != nil {
		return capability.SinkError(op, err)
	}
	if err := zw.Close(); err != nil {
		return capability.SinkError(op, err)
	}
	return nil
}

// LoadSignatures reads a signature list, gzipped or not.
func LoadSignatures(r io.Reader) ([]*Signature, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(gzipMagic)); err == nil && bytes.Equal(head, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("signature: gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	} else {
		r = br
	}

	var sigs []*Signature
	if err := json.NewDecoder(r).Decode(&sigs); err != nil {
		return nil, fmt.Errorf("signature: decode: %w", err)
	}
	for i, s := range sigs {
		if s == nil {
			return nil, fmt.Errorf("signature: entry %d is null", i)
		}
		if s.Class == "" {
			s.Class = Class
		}
	}
	return sigs, nil
}

// LoadOne reads a file holding exactly one signature.
func LoadOne(r io.Reader) (*Signature, error) {
	sigs, err := LoadSignatures(r)
	if err != nil {
		return nil, err
	}
	if len(sigs) != 1 {
		return nil, fmt.Errorf("%w, found %d", ErrNotOne, len(sigs))
	}
	return sigs[0], nil
}

var (
	_ capability.ToWriter = (*Signature)(nil)
	_ capability.ToWriter = List(nil)
)
