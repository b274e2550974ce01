/*
Package user contains core data structures and logic related to user identity.

It defines the basic representation of a chat participant (the User struct) and the
Directory collaborator that owns display names and colors. Renaming a user never touches
live sessions; the realtime core only reads profiles and writes them on explicit update.
*/
package user

import (
	"context"
	"errors"
	"time"
)

// MaxNameLength is the maximum display name length in characters.
const MaxNameLength = 20

// ErrNotFound is returned when an identity has no directory entry.
var ErrNotFound = errors.New("user not found")

// User represents the basic identity information of a chat participant.
// Fields use JSON tags for serialization in WebSocket messages.
type User struct {
	// ID is the opaque, stable identity resolved from the connection's token.
	ID string `json:"id"`

	// Name is the mutable display name.
	Name string `json:"name"`

	// Color is the mutable display color, as a hex string.
	Color string `json:"color"`

	// UpdatedAt records the last profile change.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Directory stores display profiles keyed by identity.
type Directory interface {
	// Ensure returns the user, creating it with a generated name and color on first sight.
	Ensure(ctx context.Context, id string) (User, error)

	Get(ctx context.Context, id string) (User, error)

	// UpdateProfile applies the non-nil fields and returns the resulting user.
	UpdateProfile(ctx context.Context, id string, name, color *string) (User, error)
}
