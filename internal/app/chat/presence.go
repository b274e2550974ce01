package chat

import (
	"sync"

	"tempchat/internal/pkg/errs"
)

// Registry maps each identity to its single live connection handle.
// A second connection for an identity that is already registered is rejected; the
// existing session is never replaced.
type Registry struct {
	// mu serializes admits and releases, which linearizes operations per identity.
	mu sync.Mutex

	// sessions maps identity to the handle currently holding it.
	sessions map[string]Handle

	// onChange receives the registry size after every successful admit or release.
	// It runs under mu so observers see sizes in mutation order.
	onChange func(n int)

	// onAdmit, when set, runs under mu right before the size is published for an admit.
	onAdmit func(handle Handle)
}

// NewRegistry creates an empty registry. onChange may be nil.
func NewRegistry(onChange func(n int)) *Registry {
	if onChange == nil {
		onChange = func(int) {}
	}

	return &Registry{
		sessions: make(map[string]Handle),
		onChange: onChange,
	}
}

// TryAdmit registers handle for identity iff the identity holds no live connection.
// On rejection nothing is mutated and nothing is published.
func (r *Registry) TryAdmit(identity string, handle Handle) *errs.CustomError {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[identity]; ok {
		return errs.NewError(errs.ErrAlreadyConnected)
	}

	r.sessions[identity] = handle
	if r.onAdmit != nil {
		r.onAdmit(handle)
	}
	r.onChange(len(r.sessions))
	return nil
}

// Release removes the entry for identity only if it still belongs to handle, so a stale
// disconnect cannot evict a newer session. It reports whether an entry was removed.
func (r *Registry) Release(identity string, handle Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[identity]
	if !ok || current != handle {
		return false
	}

	delete(r.sessions, identity)
	r.onChange(len(r.sessions))
	return true
}

// Holds reports whether handle is the registered connection for identity.
func (r *Registry) Holds(identity string, handle Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[identity]
	return ok && current == handle
}

// Contains reports whether identity holds any live connection.
func (r *Registry) Contains(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[identity]
	return ok
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}
