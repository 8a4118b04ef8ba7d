package core

// reader.go wraps uploaded tables so encoding/csv sees clean UTF-8 without
// the whole file ever being held in memory:
//
//   - bomReader drops a leading UTF-8 byte order mark
//   - utf8Sanitizer replaces invalid byte sequences with '?'
//   - CountingReader counts bytes for size limits and logging
//
// NewCSVReader stacks all three under a csv.Reader.

import (
	"encoding/csv"
	"io"
	"unicode/utf8"
)

var utf8BOM = [3]byte{0xEF, 0xBB, 0xBF}

// bomReader strips a UTF-8 BOM from the start of a stream.
type bomReader struct {
	r       io.Reader
	checked bool
	head    []byte
}

func newBOMReader(r io.Reader) *bomReader {
	return &bomReader{r: r}
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		var buf [3]byte
		n, err := io.ReadFull(b.r, buf[:])
		if n < 3 || buf != utf8BOM {
			b.head = append([]byte(nil), buf[:n]...)
		}
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, err
		}
		if len(b.head) == 0 && err != nil {
			return 0, io.EOF
		}
	}
	if len(b.head) > 0 {
		n := copy(p, b.head)
		b.head = b.head[n:]
		return n, nil
	}
	return b.r.Read(p)
}

// utf8Sanitizer replaces invalid UTF-8 with '?' in place. A multi-byte
// sequence split across reads is carried over to the next call.
type utf8Sanitizer struct {
	r     io.Reader
	carry []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, carry: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	off := copy(p, s.carry)
	s.carry = s.carry[:0]

	n, err := s.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}
	return s.sanitize(p[:n], err == io.EOF), err
}

// sanitize rewrites data in place and returns the number of bytes to hand
// out. Unless atEOF, an incomplete trailing rune is kept back in carry.
func (s *utf8Sanitizer) sanitize(data []byte, atEOF bool) int {
	if asciiOnly(data) {
		return len(data)
	}
	w := 0
	for r := 0; r < len(data); {
		if !atEOF && !utf8.FullRune(data[r:]) {
			s.carry = append(s.carry, data[r:]...)
			return w
		}
		c, size := utf8.DecodeRune(data[r:])
		if c == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			r++
			continue
		}
		w += copy(data[w:], data[r:r+size])
		r += size
	}
	return w
}

func asciiOnly(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// CountingReader counts the bytes read through it.
type CountingReader struct {
	r io.Reader
	n int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (c *CountingReader) BytesRead() int64 {
	return c.n
}

// NewCSVReader returns a csv.Reader over r with the BOM removed and invalid
// UTF-8 replaced. Rows may have any number of fields; structural checks
// belong to the validators, not the tokenizer.
func NewCSVReader(r io.Reader) (*csv.Reader, *CountingReader) {
	counter := NewCountingReader(newUTF8Sanitizer(newBOMReader(r)))
	cr := csv.NewReader(counter)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return cr, counter
}
