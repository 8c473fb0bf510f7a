package session

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// ULID session identifiers: 48-bit millisecond timestamp plus 80 random bits,
// Crockford Base32 encoded. Lexicographic order follows creation time, which
// keeps bbolt scans chronological.

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var (
	ulidMu  sync.Mutex
	lastTS  uint64
	lastSeq uint16
)

func newULID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()

	ts := uint64(time.Now().UnixMilli())
	if ts == lastTS {
		lastSeq++
	} else {
		lastTS = ts
		lastSeq = 0
	}

	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], ts<<16)
	rand.Read(b[6:])
	// Sequence keeps ids unique within the same millisecond.
	binary.BigEndian.PutUint16(b[6:8], lastSeq)

	// 128 bits read as 26 five-bit groups, high bits first. The first group
	// only carries 3 bits, so the whole value fits exactly.
	var out [26]byte
	bitPos := -2
	for i := range out {
		var v byte
		for k := 0; k < 5; k++ {
			v <<= 1
			p := bitPos + k
			if p >= 0 && b[p/8]&(1<<(7-p%8)) != 0 {
				v |= 1
			}
		}
		out[i] = crockford[v]
		bitPos += 5
	}
	return string(out[:])
}
