// Package registry maps service identities to typed channel handles. A
// driver registers the producing end of its request channel under a Uuid;
// clients look the service up with the same request/response types and get
// a cloned producer back. A second, type-erased path accepts serialized
// requests from outside the kernel and forwards them onto the same
// channels.
package registry

import (
	"encoding/hex"
	"fmt"
)

// Uuid identifies a service. Text form is RFC 4122:
// xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx.
type Uuid [16]byte

// ParseUuid parses the RFC 4122 text form.
func ParseUuid(s string) (Uuid, error) {
	var u Uuid
	if len(s) != 36 || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return u, fmt.Errorf("registry: malformed uuid %q", s)
	}
	hexed := s[0:8] + s[9:13] + s[14:18] + s[19:23] + s[24:36]
	if _, err := hex.Decode(u[:], []byte(hexed)); err != nil {
		return u, fmt.Errorf("registry: malformed uuid %q: %w", s, err)
	}
	return u, nil
}

// MustUuid parses the text form and panics on error. For declaring
// well-known service ids as package variables.
func MustUuid(s string) Uuid {
	u, err := ParseUuid(s)
	if err != nil {
		panic(err)
	}
	return u
}

// String returns the RFC 4122 text form.
func (u Uuid) String() string {
	var b [36]byte
	hex.Encode(b[0:8], u[0:4])
	b[8] = '-'
	hex.Encode(b[9:13], u[4:6])
	b[13] = '-'
	hex.Encode(b[14:18], u[6:8])
	b[18] = '-'
	hex.Encode(b[19:23], u[8:10])
	b[23] = '-'
	hex.Encode(b[24:36], u[10:16])
	return string(b[:])
}

// Well-known service ids. Declaring them here keeps userspace and kernel
// agreeing on identity without exchanging strings at runtime.
var (
	// EchoService replies to each request with its own payload.
	EchoService = MustUuid("23a5b685-fd4f-42f8-b4e3-6bd6e2b3a0a5")
	// UptimeService reports ticks elapsed since boot.
	UptimeService = MustUuid("31f2d016-7b57-42b5-a1ee-9f7a3c29b40f")
)
