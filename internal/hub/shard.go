package hub

import (
	"sync"

	"github.com/DoyleJ11/arena-sessions/internal/arena"
	"github.com/DoyleJ11/arena-sessions/internal/conns"
)

type shard struct {
	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
}

// slot is one arena. actor is nil while the arena is hibernating.
type slot struct {
	actor   *arena.Actor
	sockets *conns.Registry
}
