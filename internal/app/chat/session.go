package chat

import "sync"

// Session is an admitted connection. It is created by Service.Connect and ends with
// Service.Disconnect.
type Session struct {
	// Identity is the stable user id the connection authenticated as.
	Identity string

	// Handle is the transport handle registered in the presence registry.
	Handle Handle

	// mu orders message creation against disconnect for this connection.
	mu     sync.Mutex
	closed bool
}

func newSession(identity string, handle Handle) *Session {
	return &Session{Identity: identity, Handle: handle}
}

// Closed reports whether Disconnect has run for the session.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}
