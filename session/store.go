package session

import (
	"sort"

	"github.com/m4xw311/acpbridge/errors"
)

// Store owns every live session and the upstream-to-client id map. It does
// no locking of its own; the agent serializes all access.
type Store struct {
	sessions map[string]*Session
	owners   map[string]string
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		owners:   make(map[string]string),
	}
}

// Create adds a session with empty state.
func (s *Store) Create(id, cwd string) (*Session, error) {
	if _, ok := s.sessions[id]; ok {
		return nil, errors.Wrapf(errors.ErrSessionExists, "session %s", id)
	}
	sess := newSession(id, cwd)
	s.sessions[id] = sess
	return sess, nil
}

func (s *Store) Get(id string) (*Session, bool) {
	sess, ok := s.sessions[id]
	return sess, ok
}

// Delete removes the session and any upstream id mapped to it.
func (s *Store) Delete(id string) {
	s.Unbind(id)
	delete(s.sessions, id)
}

// IDs returns the live session ids, sorted.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Bind records the upstream session id announced for clientID. Only the
// first announcement sets it; it reports whether this call did. A repeated
// announcement of the same id restores a mapping dropped by Unbind.
func (s *Store) Bind(clientID, upstreamID string) bool {
	sess, ok := s.sessions[clientID]
	if !ok || upstreamID == "" {
		return false
	}
	if sess.UpstreamSessionID != "" {
		if sess.UpstreamSessionID == upstreamID {
			s.owners[upstreamID] = clientID
		}
		return false
	}
	sess.UpstreamSessionID = upstreamID
	s.owners[upstreamID] = clientID
	return true
}

// Owner returns the client session an upstream id is bound to.
func (s *Store) Owner(upstreamID string) (string, bool) {
	id, ok := s.owners[upstreamID]
	return id, ok
}

// Unbind drops the upstream mapping of clientID. The session keeps its
// UpstreamSessionID so a later prompt still resumes the same conversation.
func (s *Store) Unbind(clientID string) {
	for up, owner := range s.owners {
		if owner == clientID {
			delete(s.owners, up)
		}
	}
}
