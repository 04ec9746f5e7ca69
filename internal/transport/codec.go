package transport

import (
	"encoding/binary"
	"errors"
)

// ErrShortPayload is returned when an integer payload has fewer than 4 bytes.
var ErrShortPayload = errors.New("integer payload shorter than 4 bytes")

// EncodeInt32 encodes v the way integer commands and services carry it.
func EncodeInt32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

// DecodeInt32 decodes an integer payload.
func DecodeInt32(b []byte) (int32, error) {
	if len(b) < 4 {
		return 0, ErrShortPayload
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// DecodeString decodes a string payload, dropping a trailing NUL if present.
func DecodeString(b []byte) string {
	if n := len(b); n > 0 && b[n-1] == 0 {
		b = b[:n-1]
	}
	return string(b)
}
