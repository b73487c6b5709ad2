// Realtime delivery of job offers and status updates.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"beam/internal/modules/beaming"
	"beam/internal/types"
)

var ErrNoSession = errors.New("no active session")

// Session wraps one courier's websocket. Writes are serialized; gorilla
// connections do not allow concurrent writers.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *Session) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// WSRegistry tracks connected courier sessions and delivers job offers to
// them. It satisfies the search engine's Notifier.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[types.ID]*Session
	log      zerolog.Logger
}

func NewWSRegistry(log zerolog.Logger) *WSRegistry {
	return &WSRegistry{
		sessions: make(map[types.ID]*Session),
		log:      log,
	}
}

func (r *WSRegistry) Add(courierID types.ID, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[courierID]; ok {
		_ = old.conn.Close()
	}
	r.sessions[courierID] = &Session{conn: conn}
}

func (r *WSRegistry) Remove(courierID types.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, courierID)
}

// NotifyCandidate pushes a job offer to a connected courier. A courier
// without a session just misses this wave.
func (r *WSRegistry) NotifyCandidate(_ context.Context, courierID types.ID, offer beaming.Offer) {
	r.mu.RLock()
	s, ok := r.sessions[courierID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if err := s.Send(map[string]any{"type": "job_offer", "offer": offer}); err != nil {
		r.log.Warn().Err(err).Str("courier_id", string(courierID)).Msg("ws offer send failed")
		r.Remove(courierID)
	}
}
