// Package id mints identifiers for traced requests.
//
// Record identifiers are ULIDs (Universally Unique Lexicographically
// Sortable Identifiers): 26 characters, a millisecond timestamp followed by
// randomness. Every record emitted for one request carries the same ULID, so
// a receiver can merge partial records and still sort the stream by time.
// Short produces a compact hex ID for transient things like connections.
//
// All randomness comes from crypto/rand.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// crockford is Crockford's Base32 alphabet (no I, L, O, U).
const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var (
	mu      sync.Mutex
	lastMs  int64
	counter uint16
)

// Record returns a new ULID suitable as a record identifier.
func Record() string {
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UnixMilli()
	if now == lastMs {
		counter++
		if counter == 0 {
			// Counter wrapped within one millisecond; wait it out.
			for now == lastMs {
				time.Sleep(time.Millisecond)
				now = time.Now().UnixMilli()
			}
		}
	} else {
		counter = 0
	}
	lastMs = now

	entropy := make([]byte, 10)
	_, _ = rand.Read(entropy)
	entropy[0] ^= byte(counter >> 8)
	entropy[1] ^= byte(counter)

	return encodeULID(uint64(now), entropy)
}

// encodeULID packs a 48-bit millisecond timestamp and 80 bits of entropy
// into the 26-character ULID text form.
func encodeULID(ms uint64, entropy []byte) string {
	out := make([]byte, 26)

	// 10 characters of timestamp, most significant bits first.
	for i := 9; i >= 0; i-- {
		out[i] = crockford[ms&0x1F]
		ms >>= 5
	}

	// 16 characters of entropy: treat the 10 bytes as an 80-bit big-endian
	// integer and peel off 5 bits at a time.
	var acc uint64
	bits := 0
	pos := 25
	for i := 9; i >= 0; i-- {
		acc |= uint64(entropy[i]) << bits
		bits += 8
		for bits >= 5 && pos >= 10 {
			out[pos] = crockford[acc&0x1F]
			acc >>= 5
			bits -= 5
			pos--
		}
	}
	return string(out)
}

// Short returns a 16-character random hex identifier.
func Short() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Valid reports whether s has the shape of a record identifier.
func Valid(s string) bool {
	if len(s) != 26 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if decodeChar(s[i]) < 0 {
			return false
		}
	}
	return true
}

// Time extracts the embedded timestamp from a record identifier.
func Time(s string) (time.Time, error) {
	if !Valid(s) {
		return time.Time{}, fmt.Errorf("invalid record id: %q", s)
	}
	var ms int64
	for i := 0; i < 10; i++ {
		ms = (ms << 5) | int64(decodeChar(s[i]))
	}
	return time.UnixMilli(ms), nil
}

func decodeChar(c byte) int {
	for i := 0; i < len(crockford); i++ {
		if crockford[i] == c {
			return i
		}
	}
	return -1
}
