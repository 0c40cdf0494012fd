// Package conns tracks the live sockets of one arena. Identity travels with
// the socket as an opaque attachment, so it survives the actor that wrote it.
package conns

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var ErrClosed = errors.New("socket closed")
var ErrBufferFull = errors.New("socket buffer full")

// Peer is the transport half of a socket. Send must not block.
type Peer interface {
	Send(b []byte) error
	Close(code int, reason string) error
}

type Identity struct {
	ParticipantID string `json:"participantId"`
	Username      string `json:"username"`
	JoinedAt      int64  `json:"joinedAt"` // unix millis
}

type Socket struct {
	id   string
	peer Peer

	mu         sync.Mutex
	attachment []byte
}

func NewSocket(id string, peer Peer) *Socket {
	return &Socket{id: id, peer: peer}
}

func (s *Socket) ID() string { return s.id }

func (s *Socket) Send(b []byte) error { return s.peer.Send(b) }

func (s *Socket) Close(code int, reason string) error { return s.peer.Close(code, reason) }

// SerializeAttachment replaces the data bound to this socket.
func (s *Socket) SerializeAttachment(v any) error {
	var b []byte
	if v != nil {
		var err error
		if b, err = json.Marshal(v); err != nil {
			return fmt.Errorf("serialize attachment: %w", err)
		}
	}
	s.mu.Lock()
	s.attachment = b
	s.mu.Unlock()
	return nil
}

// DeserializeAttachment decodes the bound data into v. It reports false when
// nothing has been attached yet.
func (s *Socket) DeserializeAttachment(v any) (bool, error) {
	s.mu.Lock()
	b := s.attachment
	s.mu.Unlock()
	if len(b) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("deserialize attachment: %w", err)
	}
	return true, nil
}

// Identity is the attached identity, if the socket has completed init.
func (s *Socket) Identity() (Identity, bool) {
	var id Identity
	ok, err := s.DeserializeAttachment(&id)
	if err != nil || !ok || id.ParticipantID == "" {
		return Identity{}, false
	}
	return id, true
}

// Registry is the set of sockets attached to one arena, in accept order.
type Registry struct {
	mu      sync.RWMutex
	sockets []*Socket
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Accept registers s with an empty attachment placeholder.
func (r *Registry) Accept(s *Socket) {
	_ = s.SerializeAttachment(nil)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sockets {
		if existing == s {
			return
		}
	}
	r.sockets = append(r.sockets, s)
}

// Remove reports whether s was registered.
func (r *Registry) Remove(s *Socket) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.sockets {
		if existing == s {
			r.sockets = append(r.sockets[:i], r.sockets[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry) Contains(s *Socket) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, existing := range r.sockets {
		if existing == s {
			return true
		}
	}
	return false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sockets)
}

// Sockets returns a snapshot safe to iterate while the registry changes.
func (r *Registry) Sockets() []*Socket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Socket, len(r.sockets))
	copy(out, r.sockets)
	return out
}

// Identities lists attached identities, one per participant, in accept order.
func (r *Registry) Identities() []Identity {
	seen := map[string]bool{}
	var out []Identity
	for _, s := range r.Sockets() {
		id, ok := s.Identity()
		if !ok || seen[id.ParticipantID] {
			continue
		}
		seen[id.ParticipantID] = true
		out = append(out, id)
	}
	return out
}

// Broadcast sends b to every socket except exclude. Delivery is
// fire-and-forget; the returned map holds per-socket send errors.
func (r *Registry) Broadcast(b []byte, exclude *Socket) map[string]error {
	var failed map[string]error
	for _, s := range r.Sockets() {
		if s == exclude {
			continue
		}
		if err := s.Send(b); err != nil {
			if failed == nil {
				failed = map[string]error{}
			}
			failed[s.ID()] = err
		}
	}
	return failed
}
