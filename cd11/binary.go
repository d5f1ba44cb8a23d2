package cd11

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// reader walks a payload buffer. The first failure sticks and later reads
// return zero values, so decoders check err once per logical block.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 {
		r.fail(fmt.Errorf("%w: negative length %d at offset %d", ErrFieldLength, n, r.off))
		return nil
	}
	if r.remaining() < n {
		r.fail(fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.off, r.remaining()))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) uint8() uint8 {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) uint16() uint16 {
	b := r.next(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) uint32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) int32() int32 { return int32(r.uint32()) }

func (r *reader) uint64() uint64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) int64() int64 { return int64(r.uint64()) }

func (r *reader) float32() float32 { return math.Float32frombits(r.uint32()) }

// text reads a fixed width field, trimming NUL and space padding.
func (r *reader) text(n int) string {
	b := r.next(n)
	return strings.TrimRight(string(b), "\x00 ")
}

// length reads an int32 size field and checks it against the bytes left.
func (r *reader) length() int {
	n := int(r.int32())
	if r.err != nil {
		return 0
	}
	if n < 0 || n > r.remaining() {
		r.fail(fmt.Errorf("%w: %d at offset %d exceeds %d remaining", ErrFieldLength, n, r.off-4, r.remaining()))
		return 0
	}
	return n
}

// padded reads n bytes and skips the padding up to a four byte boundary.
func (r *reader) padded(n int) []byte {
	b := r.next(n)
	if b == nil {
		return nil
	}
	r.next(pad4(n) - n)
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *reader) timestamp() time.Time {
	s := string(r.next(TimeLength))
	if r.err != nil {
		return time.Time{}
	}
	t, err := ParseTime(s)
	if err != nil {
		r.fail(err)
	}
	return t
}

func pad4(n int) int {
	return (n + 3) &^ 3
}

type writer struct {
	buf []byte
}

func (w *writer) bytes() []byte { return w.buf }

func (w *writer) uint8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) uint16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }

func (w *writer) uint32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }

func (w *writer) int32(v int32) { w.uint32(uint32(v)) }

func (w *writer) uint64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *writer) int64(v int64) { w.uint64(uint64(v)) }

func (w *writer) float32(v float32) { w.uint32(math.Float32bits(v)) }

// text writes s into a fixed width field, truncating or NUL padding.
func (w *writer) text(s string, n int) {
	field := make([]byte, n)
	copy(field, s)
	w.buf = append(w.buf, field...)
}

// sized writes len(b) as int32 followed by b padded to four bytes.
func (w *writer) sized(b []byte) {
	w.int32(int32(len(b)))
	w.padded(b)
}

func (w *writer) padded(b []byte) {
	w.buf = append(w.buf, b...)
	w.buf = append(w.buf, make([]byte, pad4(len(b))-len(b))...)
}

func (w *writer) timestamp(t time.Time) {
	w.text(FormatTime(t), TimeLength)
}
