/*
Package chat contains the realtime session and ephemeral-message core of the server.

It owns the presence registry (one live connection per identity), the typing aggregate,
per-identity flood control, message creation and deletion, and the background sweeper
that expires messages by wall-clock time. Delivery to connections goes through the Hub
collaborator; durability goes through the Store collaborator.

This file defines the Message model, its expiry modes, and the TTL policy applied to
client requests.
*/
package chat

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxContentChars is the maximum number of characters in a message text.
	MaxContentChars = 4000

	// MaxImageBytes is the maximum decoded size of an image payload.
	MaxImageBytes = 7_000_000

	// DefaultTTL applies whenever a TTL spec cannot be understood.
	DefaultTTL = 24 * time.Hour

	// MaxTTLHours bounds integer TTL specs (ten years).
	MaxTTLHours = 87600

	// DisconnectTTL is the TTL spec that ties a message to its author's connection.
	DisconnectTTL = "disconnect"
)

// ExpiryMode describes how a message leaves the room.
type ExpiryMode int

const (
	// ExpireNever messages stay until explicitly deleted.
	ExpireNever ExpiryMode = iota

	// ExpireAt messages are removed by the sweeper once their absolute timestamp passes.
	ExpireAt

	// ExpireOnDisconnect messages are removed when their author's connection is released.
	ExpireOnDisconnect
)

// String returns the wire name of the mode.
func (m ExpiryMode) String() string {
	switch m {
	case ExpireAt:
		return "absolute"
	case ExpireOnDisconnect:
		return "disconnect"
	default:
		return "never"
	}
}

// Message is a persisted chat message. ExpiresAt and ExpireOnDisconnect are mutually exclusive.
type Message struct {
	ID                 int64      `json:"id"`
	AuthorID           string     `json:"authorId"`
	Content            string     `json:"content,omitempty"`
	Image              []byte     `json:"image,omitempty"`
	ImageType          string     `json:"imageType,omitempty"`
	ImageKey           string     `json:"imageKey,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	ExpiresAt          *time.Time `json:"expiresAt,omitempty"`
	ExpireOnDisconnect bool       `json:"expireOnDisconnect,omitempty"`
}

// Mode derives the expiry mode from the stored columns.
func (m Message) Mode() ExpiryMode {
	switch {
	case m.ExpireOnDisconnect:
		return ExpireOnDisconnect
	case m.ExpiresAt != nil:
		return ExpireAt
	default:
		return ExpireNever
	}
}

// HasImage reports whether the message carries an image, inline or offloaded.
func (m Message) HasImage() bool {
	return len(m.Image) > 0 || m.ImageKey != ""
}

// IsLive reports whether an absolute expiry has not yet been reached at now.
// Messages that are due but not yet swept are not live.
func (m Message) IsLive(now time.Time) bool {
	return m.ExpiresAt == nil || now.Before(*m.ExpiresAt)
}

// ExpiresLabel renders the expiry for clients: "disconnect", "never", or an RFC 3339 timestamp.
func (m Message) ExpiresLabel() string {
	switch m.Mode() {
	case ExpireOnDisconnect:
		return DisconnectTTL
	case ExpireAt:
		return m.ExpiresAt.UTC().Format(time.RFC3339)
	default:
		return "never"
	}
}

// TTLSpec is the client's requested lifetime: "disconnect", or a whole number of hours
// sent either as a JSON number or a numeric string.
type TTLSpec string

// UnmarshalJSON accepts strings and numbers. Anything else decodes to an empty spec,
// which resolves to the default TTL rather than failing the whole frame.
func (t *TTLSpec) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = TTLSpec(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*t = TTLSpec(n.String())
		return nil
	}

	*t = ""
	return nil
}

// Resolve turns the spec into storage columns relative to now.
// Unparseable, non-positive, or oversized hour counts fall back to DefaultTTL.
func (t TTLSpec) Resolve(now time.Time) (expiresAt *time.Time, onDisconnect bool) {
	spec := strings.TrimSpace(string(t))

	if strings.EqualFold(spec, DisconnectTTL) {
		return nil, true
	}

	ttl := DefaultTTL
	if hours, err := strconv.Atoi(spec); err == nil && hours > 0 && hours <= MaxTTLHours {
		ttl = time.Duration(hours) * time.Hour
	}

	at := now.Add(ttl)
	return &at, false
}
