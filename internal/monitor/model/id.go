package model

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// idCounter disambiguates IDs minted within the same second on this process.
var idCounter atomic.Uint32

// NewID mints a 12-byte, 24-hex-character opaque identifier: a 4-byte
// big-endian unix-second timestamp, a 5-byte random block, and a 3-byte
// process-local counter. This mirrors the layout of a Mongo ObjectID
// closely enough to satisfy spec.md's literal "24-hex opaque ids"
// requirement, which google/uuid (32 hex digits) cannot produce without
// truncating entropy in an ungrounded way (see DESIGN.md).
func NewID() string {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(time.Now().Unix()))

	if _, err := rand.Read(buf[4:9]); err != nil {
		// crypto/rand failure is effectively unrecoverable; fall back to the
		// counter alone to keep uniqueness from the timestamp+counter pair.
	}

	c := idCounter.Add(1)
	buf[9] = byte(c >> 16)
	buf[10] = byte(c >> 8)
	buf[11] = byte(c)

	return hex.EncodeToString(buf[:])
}

// ValidID reports whether s is a well-formed 24-hex-character identifier.
func ValidID(s string) bool {
	if len(s) != 24 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// MustValidID panics with a descriptive message if id is malformed; used
// only in contexts that have already validated input (internal invariants).
func MustValidID(id string) {
	if !ValidID(id) {
		panic(fmt.Sprintf("model: malformed id %q", id))
	}
}
