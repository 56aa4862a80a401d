package room

import (
	"crypto/rand"
	"fmt"
	"sync"

	"hokm/internal/datalayer"
	"hokm/internal/ratelimit"
)

const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Registry tracks live rooms by code and creates fresh ones on demand.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	dl   *datalayer.DataLayer
	chat *ratelimit.ChatLimiter
	cfg  Config
}

// NewRegistry creates an empty room registry.
func NewRegistry(dl *datalayer.DataLayer, chat *ratelimit.ChatLimiter, cfg Config) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		dl:    dl,
		chat:  chat,
		cfg:   cfg,
	}
}

// JoinOrCreate returns the room for code, creating it if it doesn't
// exist yet, per the join operation's "join or create the room"
// semantics.
func (reg *Registry) JoinOrCreate(code string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[code]; ok {
		return r
	}
	r := New(code, reg.dl, reg.chat, reg.cfg, reg.destroy)
	reg.rooms[code] = r
	return r
}

// Get returns an existing room, or nil if code is unknown.
func (reg *Registry) Get(code string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[code]
}

// NewRoomCode generates a short, human-typeable room code.
func NewRoomCode() (string, error) {
	const length = 6
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("room: generate code: %w", err)
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(out), nil
}

func (reg *Registry) destroy(code string) {
	reg.mu.Lock()
	r, ok := reg.rooms[code]
	if ok {
		delete(reg.rooms, code)
	}
	reg.mu.Unlock()
	if ok {
		r.Stop()
	}
}
