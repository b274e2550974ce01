package chat

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

var errStoreDown = errors.New("store down")

type sentEvent struct {
	// to is empty for broadcasts.
	to      Handle
	event   string
	payload any
}

// recordingHub captures everything the core asks the transport to do.
type recordingHub struct {
	mu     sync.Mutex
	events []sentEvent
	closed map[Handle]string

	// admitted maps a handle to the number of events recorded before its admission.
	admitted map[Handle]int
}

func newRecordingHub() *recordingHub {
	return &recordingHub{
		closed:   make(map[Handle]string),
		admitted: make(map[Handle]int),
	}
}

func (h *recordingHub) Admit(handle Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.admitted[handle] = len(h.events)
}

func (h *recordingHub) isAdmitted(handle Handle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.admitted[handle]
	return ok
}

// seenBy returns what a real transport would have delivered to handle: its direct
// events, plus broadcasts recorded after its admission.
func (h *recordingHub) seenBy(handle Handle) []sentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	from, admitted := h.admitted[handle]
	var out []sentEvent
	for i, e := range h.events {
		if e.to == handle || (e.to == "" && admitted && i >= from) {
			out = append(out, e)
		}
	}
	return out
}

func (h *recordingHub) SendToAll(event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, sentEvent{event: event, payload: payload})
}

func (h *recordingHub) SendTo(handle Handle, event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, sentEvent{to: handle, event: event, payload: payload})
}

func (h *recordingHub) Close(handle Handle, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed[handle] = reason
}

func (h *recordingHub) all() []sentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.events)
}

func (h *recordingHub) named(event string) []sentEvent {
	var out []sentEvent
	for _, e := range h.all() {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (h *recordingHub) expiredIDs() []int64 {
	var ids []int64
	for _, e := range h.named(EventMessageExpired) {
		ids = append(ids, e.payload.(ExpiredPayload).ID)
	}
	return ids
}

func (h *recordingHub) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = nil
	for handle := range h.admitted {
		h.admitted[handle] = 0
	}
}

func (h *recordingHub) closeReason(handle Handle) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	reason, ok := h.closed[handle]
	return reason, ok
}

// fakeStore is a map-backed Store with switchable failures.
type fakeStore struct {
	mu         sync.Mutex
	lastID     int64
	messages   map[int64]Message
	failInsert bool
	failQuery  bool
	failDelete bool
	inserts    int

	// beforeRecentLive runs at the start of QueryRecentLive, outside the store lock.
	beforeRecentLive func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[int64]Message)}
}

func (s *fakeStore) setFailDelete(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDelete = fail
}

func (s *fakeStore) setFailQuery(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failQuery = fail
}

func (s *fakeStore) Insert(_ context.Context, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failInsert {
		return Message{}, errStoreDown
	}
	s.inserts++
	s.lastID++
	msg.ID = s.lastID
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *fakeStore) Get(_ context.Context, id int64) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	return msg, nil
}

func (s *fakeStore) DeleteByID(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.messages[id]
	delete(s.messages, id)
	return ok, nil
}

func (s *fakeStore) DeleteBatch(_ context.Context, ids []int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failDelete {
		return nil, errStoreDown
	}

	var deleted []int64
	for _, id := range ids {
		if _, ok := s.messages[id]; ok {
			delete(s.messages, id)
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}

func (s *fakeStore) where(keep func(Message) bool) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failQuery {
		return nil, errStoreDown
	}

	var out []Message
	for _, m := range s.messages {
		if keep(m) {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b Message) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *fakeStore) QueryDueExpirations(_ context.Context, now time.Time) ([]Message, error) {
	return s.where(func(m Message) bool { return m.ExpiresAt != nil && !m.ExpiresAt.After(now) })
}

func (s *fakeStore) QueryByAuthorAndMode(_ context.Context, authorID string, mode ExpiryMode) ([]Message, error) {
	return s.where(func(m Message) bool { return m.AuthorID == authorID && m.Mode() == mode })
}

func (s *fakeStore) QueryByMode(_ context.Context, mode ExpiryMode) ([]Message, error) {
	return s.where(func(m Message) bool { return m.Mode() == mode })
}

func (s *fakeStore) QueryRecentLive(_ context.Context, now time.Time, limit int) ([]Message, error) {
	if s.beforeRecentLive != nil {
		s.beforeRecentLive()
	}

	live, err := s.where(func(m Message) bool { return m.IsLive(now) })
	if limit > 0 && len(live) > limit {
		live = live[len(live)-limit:]
	}
	return live, err
}

func (s *fakeStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// fakeImages is an in-memory ImageStore.
type fakeImages struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newFakeImages() *fakeImages {
	return &fakeImages{objects: make(map[string][]byte)}
}

func (f *fakeImages) Put(_ context.Context, key, _ string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failPut {
		return errStoreDown
	}
	f.objects[key] = data
	return nil
}

func (f *fakeImages) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.objects, key)
	return nil
}

func (f *fakeImages) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}
