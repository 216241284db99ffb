// Package fasta reads nucleotide records from FASTA files, gzipped or not.
package fasta

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrInvalidFormat is returned when the input is not FASTA.
var ErrInvalidFormat = errors.New("fasta: invalid format")

var gzipMagic = []byte{0x1f, 0x8b}

// A Record is a single named sequence.
type Record struct {
	// Name is the header line without the leading '>'.
	Name     string
	Sequence string
}

// Reader reads records one at a time.
type Reader struct {
	br   *bufio.Reader
	zr   *gzip.Reader
	line int
	next string
	eof  bool
}

// NewReader returns a Reader for r. Gzipped input is detected from its magic
// bytes.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(gzipMagic)); err == nil && bytes.Equal(head, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("fasta: gzip: %w", err)
		}
		return &Reader{br: bufio.NewReader(zr), zr: zr}, nil
	}
	return &Reader{br: br}, nil
}

// Close releases the decompressor, if any. It does not close the
// underlying reader.
func (r *Reader) Close() error {
	if r.zr != nil {
		return r.zr.Close()
	}
	return nil
}

func (r *Reader) readLine() (string, error) {
	if r.eof {
		return "", io.EOF
	}
	s, err := r.br.ReadString('\n')
	if errors.Is(err, io.EOF) {
		r.eof = true
		if s == "" {
			return "", io.EOF
		}
	} else if err != nil {
		return "", err
	}
	r.line++
	return strings.TrimRight(s, "\r\n"), nil
}

// Next returns the next record, or io.EOF once the input is exhausted.
func (r *Reader) Next() (Record, error) {
	header := r.next
	r.next = ""
	for header == "" {
		line, err := r.readLine()
		if err != nil {
			return Record{}, err
		}
		switch {
		case line == "":
		case strings.HasPrefix(line, ">"):
			header = line
		default:
			return Record{}, fmt.Errorf("%w: line %d: sequence before header", ErrInvalidFormat, r.line)
		}
	}

	rec := Record{Name: strings.TrimSpace(header[1:])}
	var seq strings.Builder
	for {
		line, err := r.readLine()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return Record{}, err
		}
		if strings.HasPrefix(line, ">") {
			r.next = line
			break
		}
		seq.WriteString(strings.TrimSpace(line))
	}
	rec.Sequence = seq.String()
	return rec, nil
}

// Records yields every record of r. Iteration stops after the first error.
func (r *Reader) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}
