// Package ids generates request identifiers.
package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const maxInboundLength = 128

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRequestID returns a ULID, sortable by creation time.
func NewRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// RequestID keeps a client supplied X-Request-ID when it is printable ASCII of sane length,
// otherwise it generates a fresh one.
func RequestID(inbound string) string {
	inbound = strings.TrimSpace(inbound)
	if inbound == "" || len(inbound) > maxInboundLength {
		return NewRequestID()
	}
	for i := 0; i < len(inbound); i++ {
		if c := inbound[i]; c < 0x21 || c > 0x7e {
			return NewRequestID()
		}
	}
	return inbound
}

// Time extracts the creation time of a generated id.
func Time(id string) (time.Time, bool) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}
