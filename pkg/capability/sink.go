package capability

import (
	"io"
)

// A Sink wraps an io.Writer for ToWriter implementations. The first write
// failure, including a short write, is converted to a KindSink error and
// returned by every later write.
type Sink struct {
	w   io.Writer
	op  string
	n   int64
	err error
}

// NewSink returns a Sink writing to w. op names the operation in errors.
func NewSink(w io.Writer, op string) *Sink {
	return &Sink{w: w, op: op}
}

// Write implements io.Writer.
func (s *Sink) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	n, err := s.w.Write(p)
	s.n += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.err = SinkError(s.op, err)
	}
	return n, s.err
}

// WriteString writes the contents of str.
func (s *Sink) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// Count returns the number of bytes accepted by the underlying writer.
func (s *Sink) Count() int64 {
	return s.n
}

// Err returns the first write failure, if any.
func (s *Sink) Err() error {
	return s.err
}
