package framing

import (
	"bufio"
	"errors"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"

	"shipscore.ai/internal/vschem/schemerr"
)

// DefaultMaxLength is the decoded length bound applied to both header strings.
const DefaultMaxLength = 400

// MaxVarIntLen is the longest accepted varint encoding.
const MaxVarIntLen = 5

// Header holds the two leading strings of a container. They are format and
// version markers and carry no meaning for decoding.
type Header struct {
	Format  string `json:"format"`
	Version string `json:"version"`
}

// ReadVarInt reads a base-128 varint (low group first) of at most
// MaxVarIntLen bytes. Bits beyond 32 are discarded.
func ReadVarInt(r io.ByteReader) (uint32, error) {
	var result uint32
	for n := 0; ; n++ {
		if n >= MaxVarIntLen {
			return 0, schemerr.Format("varint", "varint too large")
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, schemerr.Formatf("varint", eofToUnexpected(err), "truncated varint")
		}
		result |= uint32(b&0x7F) << (7 * n)
		if b&0x80 == 0 {
			return result, nil
		}
	}
}

// AppendVarInt appends the varint encoding of v to dst.
func AppendVarInt(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// MaxEncodedLength is the worst-case UTF-8 byte length of maxLength characters.
func MaxEncodedLength(maxLength int) int {
	return int(math.Ceil(float64(maxLength) * 3.0))
}

// ReadString reads a varint length-prefixed UTF-8 string whose decoded length
// may not exceed maxLength. Length is counted in UTF-16 code units, which is
// how the producing game measures it.
func ReadString(r Reader, maxLength int) (string, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}
	limit := MaxEncodedLength(maxLength)
	if uint64(n) > uint64(limit) {
		return "", schemerr.Formatf("string", nil, "encoded length exceeds bound: %d > %d", n, limit)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", schemerr.Formatf("string", eofToUnexpected(err), "truncated string")
	}
	s := string(buf)
	if l := decodedLength(s); l > maxLength {
		return "", schemerr.Formatf("string", nil, "decoded length exceeds bound: %d > %d", l, maxLength)
	}
	return s, nil
}

func decodedLength(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// Reader is what ReadString needs from the underlying stream.
type Reader interface {
	io.Reader
	io.ByteReader
}

// Open reads and returns the container header, then returns the rest of the
// stream as a gzip decompressor. The header is fully validated before any
// decompression starts. maxLength <= 0 selects DefaultMaxLength.
func Open(r io.Reader, maxLength int) (Header, io.ReadCloser, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	br, ok := r.(Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	var h Header
	var err error
	if h.Format, err = ReadString(br, maxLength); err != nil {
		return h, nil, err
	}
	if h.Version, err = ReadString(br, maxLength); err != nil {
		return h, nil, err
	}

	zr, err := gzip.NewReader(br)
	if err != nil {
		return h, nil, schemerr.Formatf("gzip", err, "bad compressed body")
	}
	return h, zr, nil
}

// AppendHeader writes the two framed header strings. Used by tools that
// produce containers and by tests.
func AppendHeader(dst []byte, h Header) []byte {
	dst = AppendVarInt(dst, uint32(len(h.Format)))
	dst = append(dst, h.Format...)
	dst = AppendVarInt(dst, uint32(len(h.Version)))
	return append(dst, h.Version...)
}

func eofToUnexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
