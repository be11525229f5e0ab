package transport

import (
	"sync"

	"github.com/replistore/crdb/internal/ids"
)

// RoomHub fans locally authored operations out to every other replica
// currently connected to a repo's room, the one-to-many half of §6's
// transport contract. Each subscriber gets its own buffered channel so a
// slow reader can't stall the repo mutex a LocalOperation notification
// fires under; a full subscriber simply drops the message rather than
// blocking the broadcaster, matching the "best-effort FIFO" room delivery
// §5 describes (durability comes from the PublishOperations half, not the
// broadcast).
type RoomHub struct {
	mu    sync.Mutex
	rooms map[ids.RepoId]map[chan []byte]struct{}
}

// NewRoomHub returns an empty hub.
func NewRoomHub() *RoomHub {
	return &RoomHub{rooms: map[ids.RepoId]map[chan []byte]struct{}{}}
}

// subscriberBuffer bounds how many broadcast messages a slow subscriber may
// lag behind before messages are dropped for it.
const subscriberBuffer = 64

// Join subscribes to repoId's room, returning a channel of encoded
// ops.MessageEnvelope payloads and a leave func to unsubscribe.
func (h *RoomHub) Join(repoId ids.RepoId) (ch <-chan []byte, leave func()) {
	c := make(chan []byte, subscriberBuffer)

	h.mu.Lock()
	room, ok := h.rooms[repoId]
	if !ok {
		room = map[chan []byte]struct{}{}
		h.rooms[repoId] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	return c, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if room, ok := h.rooms[repoId]; ok {
			delete(room, c)
			close(c)
			if len(room) == 0 {
				delete(h.rooms, repoId)
			}
		}
	}
}

// Broadcast fans data out to every current subscriber of repoId's room.
func (h *RoomHub) Broadcast(repoId ids.RepoId, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.rooms[repoId] {
		select {
		case c <- data:
		default:
		}
	}
}
