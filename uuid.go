package btbricks

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// A UUID is a 16-bit or 128-bit Bluetooth UUID, stored in little-endian
// byte order as it appears on the wire.
type UUID []byte

// UUID16 returns a 16-bit UUID.
func UUID16(u uint16) UUID {
	return UUID{byte(u), byte(u >> 8)}
}

// ParseUUID parses a standard hex UUID string, with or without dashes.
func ParseUUID(s string) (UUID, error) {
	s = strings.Replace(strings.ToLower(s), "-", "", -1)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "parse uuid")
	}
	if len(b) != 2 && len(b) != 4 && len(b) != 16 {
		return nil, errors.Errorf("invalid uuid length %d", len(b))
	}
	return Reverse(b), nil
}

// MustParseUUID parses a UUID string and panics on failure.
// For package-level UUID constants only.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Len returns the length of the UUID in bytes.
func (u UUID) Len() int { return len(u) }

// String returns the canonical hex form, most significant byte first.
func (u UUID) String() string {
	return hex.EncodeToString(Reverse(u))
}

// Equal reports whether two UUIDs are the same.
func (u UUID) Equal(v UUID) bool {
	if len(u) != len(v) {
		return false
	}
	for i := range u {
		if u[i] != v[i] {
			return false
		}
	}
	return true
}

// Contains reports whether u is a member of s.
func Contains(s []UUID, u UUID) bool {
	for _, v := range s {
		if u.Equal(v) {
			return true
		}
	}
	return false
}

// Reverse returns a new slice with the bytes in reverse order.
func Reverse(b []byte) []byte {
	r := make([]byte, len(b))
	for i, v := range b {
		r[len(b)-1-i] = v
	}
	return r
}
