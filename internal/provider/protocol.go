// Package provider locates, loads and binds the chevron signing library and
// defines the result buffer protocol every provider function follows.
//
// Each provider call receives a caller owned result buffer and returns an
// integer status. StatusError means the buffer holds an error message, any
// other status means it holds the success payload. The buffer is always
// NUL terminated within its capacity.
package provider

import "bytes"

// BufferSize is the capacity of every result buffer handed to the provider.
// Existing provider binaries depend on this value.
const BufferSize = 16384

// Status codes returned by provider functions.
const (
	StatusError int32 = -1
	StatusFalse int32 = 0
	StatusTrue  int32 = 1
	StatusOK          = StatusTrue
)

// LoadKeyReturn mirrors the C struct returned by LoadKey.
type LoadKeyReturn struct {
	Status            int32
	LoadedPrivateKeys int32
}

// NewBuffer returns a zero filled result buffer of BufferSize bytes.
func NewBuffer() []byte {
	return make([]byte, BufferSize)
}

// ReadResult returns the buffer content up to the first NUL byte. A buffer
// without a terminator is returned whole; overrunning the capacity is the
// provider's own contract violation and is not checked here.
func ReadResult(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}

// WriteResult copies msg into dst the way provider libraries do: at most
// len(dst)-1 bytes are copied and the remainder is zero filled, so the
// result is always terminated.
func WriteResult(dst []byte, msg string) {
	n := len(dst)
	if n == 0 {
		return
	}
	copied := copy(dst[:n-1], msg)
	clear(dst[copied:])
}

// WriteError writes msg into dst and returns StatusError.
func WriteError(dst []byte, msg string) int32 {
	WriteResult(dst, msg)
	return StatusError
}
