package textscan

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// MaxLineLength bounds the number of raw bytes consumed per line read and
// drives the refill target of the Reader.
const MaxLineLength = 400

// Mediator is the subset of the parser mediator the scanning engine needs:
// somewhere to send extraction warnings and a cooperative abort flag.
type Mediator interface {
	ProduceExtractionWarning(message string)
	AbortRequested() bool
}

// decoder converts raw artifact bytes into text one line at a time. An
// undecodable byte is replaced with a \xNN escape and reported through the
// warning callback together with its absolute stream offset, so decoding
// always makes forward progress.
type decoder struct {
	name  string
	table *charmap.Charmap
	warn  func(offset int64, b byte)
}

var charmaps = map[string]*charmap.Charmap{
	"iso-8859-1":   charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"windows-1250": charmap.Windows1250,
	"windows-1251": charmap.Windows1251,
	"windows-1252": charmap.Windows1252,
}

func newDecoder(encoding string, warn func(offset int64, b byte)) (*decoder, error) {
	name := strings.ToLower(strings.TrimSpace(encoding))
	if name == "" {
		name = "utf-8"
	}
	d := &decoder{name: name, warn: warn}
	switch name {
	case "ascii", "us-ascii":
		d.name = "ascii"
	case "utf-8", "utf8":
		d.name = "utf-8"
	default:
		table, ok := charmaps[name]
		if !ok {
			return nil, fmt.Errorf("unsupported encoding: %s", encoding)
		}
		d.table = table
	}
	return d, nil
}

// decode converts raw into text, substituting every invalid byte. base is
// the absolute stream offset of raw[0], used for warning bookkeeping. The
// escape is four visible characters, so output grows at most 4x per bad
// byte while input consumption advances by exactly one byte.
func (d *decoder) decode(raw []byte, base int64) string {
	var out strings.Builder
	i := 0
	for i < len(raw) {
		b := raw[i]
		switch {
		case d.table != nil:
			r := d.table.DecodeByte(b)
			if r == utf8.RuneError {
				out.WriteString(d.escape(b, base+int64(i)))
			} else {
				out.WriteRune(r)
			}
			i++
		case d.name == "ascii":
			if b < 0x80 {
				out.WriteByte(b)
			} else {
				out.WriteString(d.escape(b, base+int64(i)))
			}
			i++
		default: // utf-8
			if b < 0x80 {
				out.WriteByte(b)
				i++
				continue
			}
			r, size := utf8.DecodeRune(raw[i:])
			if r == utf8.RuneError && size <= 1 {
				out.WriteString(d.escape(b, base+int64(i)))
				i++
				continue
			}
			out.WriteRune(r)
			i += size
		}
	}
	return out.String()
}

func (d *decoder) escape(b byte, offset int64) string {
	if d.warn != nil {
		d.warn(offset, b)
	}
	return fmt.Sprintf(`\x%02x`, b)
}

// chunk is one decoded line (terminator included) plus the number of raw
// bytes it was decoded from, so consumed offsets can be kept in raw byte
// terms even when substitutions or multibyte sequences change text length.
type chunk struct {
	text string
	raw  int
}

// Reader maintains a bounded window of decoded text over an artifact byte
// stream. Refilling appends whole raw lines (each capped at MaxLineLength
// bytes) until the window holds at least MaxLineLength characters of text,
// which keeps memory bounded regardless of file size while still letting a
// grammar match span more than one line.
type Reader struct {
	src        *bufio.Reader
	dec        *decoder
	chunks     []chunk
	pending    string
	offset     int64 // absolute raw byte offset of the window start
	lineNumber int   // 1-based number of the first pending line
	eof        bool
}

// NewReader builds a reader over r decoding with the named encoding. warn
// receives one call per undecodable byte with its absolute stream offset.
func NewReader(r io.Reader, encoding string, warn func(offset int64, b byte)) (*Reader, error) {
	dec, err := newDecoder(encoding, warn)
	if err != nil {
		return nil, err
	}
	return &Reader{
		src:        bufio.NewReaderSize(r, MaxLineLength),
		dec:        dec,
		lineNumber: 1,
	}, nil
}

// Fill tops up the pending window. It returns an error only for genuine
// read failures; decode problems never fail because of the substitution
// policy, and EOF simply stops further growth.
func (r *Reader) Fill() error {
	for !r.eof && len(r.pending) < MaxLineLength {
		raw, err := r.readRawLine()
		if len(raw) > 0 {
			base := r.offset
			for _, c := range r.chunks {
				base += int64(c.raw)
			}
			text := r.dec.decode(raw, base)
			r.chunks = append(r.chunks, chunk{text: text, raw: len(raw)})
			r.pending += text
		}
		if err == io.EOF {
			r.eof = true
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readRawLine reads up to and including the next newline, capped at
// MaxLineLength bytes.
func (r *Reader) readRawLine() ([]byte, error) {
	var raw []byte
	for len(raw) < MaxLineLength {
		b, err := r.src.ReadByte()
		if err != nil {
			return raw, err
		}
		raw = append(raw, b)
		if b == '\n' {
			break
		}
	}
	return raw, nil
}

// Pending returns the decoded text window.
func (r *Reader) Pending() string {
	return r.pending
}

// Exhausted reports whether both the window and the underlying stream are
// empty: the normal end of a scan.
func (r *Reader) Exhausted() bool {
	return r.eof && len(r.pending) == 0
}

// Offset returns the absolute raw byte offset of the start of the window.
func (r *Reader) Offset() int64 {
	return r.offset
}

// LineNumber returns the 1-based line number at the start of the window.
func (r *Reader) LineNumber() int {
	return r.lineNumber
}

// Advance consumes n characters of the pending window, updating the raw
// offset and line bookkeeping. Consumption within a line whose decoded
// length differs from its raw length (substitutions, multibyte sequences)
// is settled when the line is fully consumed.
func (r *Reader) Advance(n int) {
	if n > len(r.pending) {
		n = len(r.pending)
	}
	r.pending = r.pending[n:]
	for n > 0 && len(r.chunks) > 0 {
		c := &r.chunks[0]
		if n >= len(c.text) {
			n -= len(c.text)
			r.offset += int64(c.raw)
			r.lineNumber += strings.Count(c.text, "\n")
			r.chunks = r.chunks[1:]
			continue
		}
		consumed := n
		if consumed > c.raw {
			consumed = c.raw
		}
		r.lineNumber += strings.Count(c.text[:n], "\n")
		c.text = c.text[n:]
		c.raw -= consumed
		r.offset += int64(consumed)
		n = 0
	}
}

// ReadLine consumes and returns one line from the window, without its
// terminator, refilling first if needed. The line is bounded by
// MaxLineLength like every other read.
func (r *Reader) ReadLine() (string, error) {
	if len(r.pending) == 0 {
		if err := r.Fill(); err != nil {
			return "", err
		}
		if len(r.pending) == 0 {
			return "", io.EOF
		}
	}
	end := strings.IndexByte(r.pending, '\n')
	var line string
	switch {
	case end >= 0:
		line = r.pending[:end]
		r.Advance(end + 1)
	case len(r.pending) > MaxLineLength:
		line = r.pending[:MaxLineLength]
		r.Advance(MaxLineLength)
	default:
		line = r.pending
		r.Advance(len(r.pending))
	}
	return strings.TrimRight(line, "\r"), nil
}
