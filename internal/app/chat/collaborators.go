package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Store implementations when a message id does not exist.
var ErrNotFound = errors.New("message not found")

// Store is the durable message collaborator.
//
// Insert assigns a unique, monotonically increasing ID. DeleteBatch removes the given ids in
// one atomic unit and returns only the ids that existed and were removed by this call, so
// concurrent deleters never both report the same id.
type Store interface {
	Insert(ctx context.Context, msg Message) (Message, error)
	Get(ctx context.Context, id int64) (Message, error)
	DeleteByID(ctx context.Context, id int64) (bool, error)
	DeleteBatch(ctx context.Context, ids []int64) ([]int64, error)

	// QueryDueExpirations returns messages whose absolute expiry is at or before now.
	QueryDueExpirations(ctx context.Context, now time.Time) ([]Message, error)

	QueryByAuthorAndMode(ctx context.Context, authorID string, mode ExpiryMode) ([]Message, error)
	QueryByMode(ctx context.Context, mode ExpiryMode) ([]Message, error)

	// QueryRecentLive returns up to limit of the newest messages that are still live at now,
	// ordered oldest to newest.
	QueryRecentLive(ctx context.Context, now time.Time, limit int) ([]Message, error)
}

// Handle identifies one live transport session.
type Handle string

// NewHandle mints a handle that is never reused.
func NewHandle() Handle {
	return Handle(uuid.NewString())
}

// Hub is the realtime transport collaborator. Implementations must not block on slow
// connections: sends are queued, and Close delivers already queued frames first.
//
// A connection is pending until Admit is called for it. SendToAll skips pending
// connections; SendTo reaches them.
type Hub interface {
	Admit(handle Handle)
	SendToAll(event string, payload any)
	SendTo(handle Handle, event string, payload any)
	Close(handle Handle, reason string)
}

// ImageStore offloads image bytes to object storage. It is optional.
type ImageStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Delete(ctx context.Context, key string) error
}
