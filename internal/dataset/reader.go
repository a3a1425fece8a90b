package dataset

// reader.go normalises uploaded bytes before CSV parsing:
//
//   - bomSkippingReader drops a leading UTF-8 BOM written by spreadsheet tools
//   - utf8Sanitizer replaces invalid UTF-8 bytes with '?' without buffering the file
//
// wrapForParsing applies both in order behind a byte cap.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type bomSkippingReader struct {
	r       *bufio.Reader
	checked bool
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{r: bufio.NewReader(r)}
}

func (b *bomSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, _ := b.r.Peek(len(utf8BOM))
		if bytes.Equal(head, utf8BOM) {
			_, _ = b.r.Discard(len(utf8BOM))
		}
	}
	return b.r.Read(p)
}

// utf8Sanitizer holds back a trailing partial rune between reads so that a
// multi-byte character split across buffers is never mistaken for garbage.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) < utf8.UTFMax {
		return 0, io.ErrShortBuffer
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	data := p[:n]
	atEOF := err == io.EOF

	if !atEOF {
		if keep := partialRuneSuffix(data); keep > 0 {
			s.pending = append(s.pending, data[len(data)-keep:]...)
			data = data[:len(data)-keep]
		}
	}

	if utf8.Valid(data) {
		if len(data) == 0 && err == nil {
			// only a partial rune so far; ask the caller to read again
			return 0, nil
		}
		return len(data), err
	}

	w := 0
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			i++
			continue
		}
		copy(data[w:], data[i:i+size])
		w += size
		i += size
	}
	return w, err
}

// partialRuneSuffix returns how many trailing bytes begin a rune that is not
// yet complete.
func partialRuneSuffix(data []byte) int {
	for back := 1; back <= utf8.UTFMax-1 && back <= len(data); back++ {
		c := data[len(data)-back]
		if c&0xC0 == 0x80 {
			continue
		}
		if c < 0xC0 {
			return 0
		}
		need := 2
		switch {
		case c >= 0xF0:
			need = 4
		case c >= 0xE0:
			need = 3
		}
		if back < need {
			return back
		}
		return 0
	}
	return 0
}

// cappedReader fails with ErrInputTooLarge once more than limit bytes
// have been read.
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, ErrInputTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, ErrInputTooLarge
	}
	return n, err
}

// wrapForParsing caps the input at maxBytes (0 means unlimited), strips the
// BOM and sanitises UTF-8.
func wrapForParsing(r io.Reader, maxBytes int64) io.Reader {
	if maxBytes > 0 {
		r = &cappedReader{r: r, remaining: maxBytes}
	}
	return newUTF8Sanitizer(newBOMSkippingReader(r))
}
