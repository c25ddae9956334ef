package transport

import (
	"time"

	proto "github.com/ystepanoff/mdrelay/protocol"
)

// defaultSeenExpiry bounds how long a sequence id marks a retransmission.
// It must outlast the sender's full retry cycle.
const defaultSeenExpiry = 5 * time.Second

// seenCache remembers the last datagram id accepted from each sender so
// retransmissions whose ACK was lost are acknowledged again but not
// delivered twice. Entries expire so a restarted sender reusing low ids is
// not mistaken for a duplicate forever.
type seenCache struct {
	entries map[proto.Address]seenEntry
	expiry  time.Duration
	now     func() time.Time
}

type seenEntry struct {
	id      byte
	expires time.Time
}

func newSeenCache(expiry time.Duration) *seenCache {
	return &seenCache{
		entries: make(map[proto.Address]seenEntry),
		expiry:  expiry,
		now:     time.Now,
	}
}

// Add records id for from. Returns true if this is new traffic.
func (c *seenCache) Add(from proto.Address, id byte) bool {
	now := c.now()
	if e, ok := c.entries[from]; ok && e.id == id && now.Before(e.expires) {
		return false
	}
	c.entries[from] = seenEntry{id: id, expires: now.Add(c.expiry)}
	return true
}

// Len returns the number of senders tracked.
func (c *seenCache) Len() int { return len(c.entries) }
