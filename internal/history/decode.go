package history

import (
	"bytes"
	"encoding/binary"
	"errors"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// ErrUnsupportedEncoding is returned for content that is neither UTF-8 nor
// well-formed UTF-16.
var ErrUnsupportedEncoding = errors.New("unsupported text encoding")

var (
	bomUTF16LE = []byte{0xff, 0xfe}
	bomUTF16BE = []byte{0xfe, 0xff}
)

// Decode converts file content to text. UTF-8 is tried first, then UTF-16:
// big-endian only with a byte order mark, little-endian otherwise.
func Decode(b []byte) (string, error) {
	if utf8.Valid(b) {
		return string(b), nil
	}

	body := b
	var order binary.ByteOrder = binary.LittleEndian
	endianness := unicode.LittleEndian
	switch {
	case bytes.HasPrefix(b, bomUTF16LE):
		body = b[len(bomUTF16LE):]
	case bytes.HasPrefix(b, bomUTF16BE):
		body = b[len(bomUTF16BE):]
		order = binary.BigEndian
		endianness = unicode.BigEndian
	}
	if !wellFormedUTF16(body, order) {
		return "", ErrUnsupportedEncoding
	}

	out, err := unicode.UTF16(endianness, unicode.IgnoreBOM).NewDecoder().Bytes(body)
	if err != nil {
		return "", errors.Join(ErrUnsupportedEncoding, err)
	}
	return string(out), nil
}

// wellFormedUTF16 reports whether b is a whole number of code units in which
// every surrogate is part of a high-low pair.
func wellFormedUTF16(b []byte, order binary.ByteOrder) bool {
	if len(b)%2 != 0 {
		return false
	}
	for i := 0; i < len(b); i += 2 {
		u := rune(order.Uint16(b[i:]))
		if !utf16.IsSurrogate(u) {
			continue
		}
		if u >= 0xdc00 || i+4 > len(b) {
			return false
		}
		next := rune(order.Uint16(b[i+2:]))
		if next < 0xdc00 || next >= 0xe000 {
			return false
		}
		i += 2
	}
	return true
}
