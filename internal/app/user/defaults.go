package user

import (
	"time"

	"tempchat/internal/pkg/randx"
)

// NewDefault builds a user entry with a generated nickname and palette color.
func NewDefault(id string, now time.Time) User {
	name, err := randx.UserNickname()
	if err != nil {
		name = "User_X"
	}

	return User{
		ID:        id,
		Name:      name,
		Color:     randx.Color(),
		UpdatedAt: now,
	}
}

// Apply copies the non-nil profile fields onto u.
func (u User) Apply(name, color *string, now time.Time) User {
	if name != nil {
		u.Name = *name
	}
	if color != nil {
		u.Color = *color
	}
	u.UpdatedAt = now
	return u
}
