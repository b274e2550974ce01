/*
Package randx provides functions for generating cryptographically secure random values.

It is used to give newly seen identities a default display name and color, and to mint
guest identities.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// GuestIDPrefix is the prefix of server-minted guest identities.
	GuestIDPrefix = "guest_"
)

// Palette is the set of display colors handed out to new users.
var Palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#46f0f0", "#f032e6", "#bcf60c", "#008080", "#9a6324",
}

// base62 returns n cryptographically random Base62 characters.
func base62(n int) (string, error) {
	result := make([]byte, n)

	for i := range n {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %v", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// UserNickname generates a random nickname with a "User_" prefix and 6 random Base62 characters.
func UserNickname() (string, error) {
	suffix, err := base62(6)
	if err != nil {
		return "", err
	}
	return "User_" + suffix, nil
}

// Color picks a random entry from Palette, falling back to the first color on RNG failure.
func Color() string {
	num, err := rand.Int(rand.Reader, big.NewInt(int64(len(Palette))))
	if err != nil {
		return Palette[0]
	}
	return Palette[num.Int64()]
}

// GuestID mints a new opaque guest identity.
func GuestID() string {
	return GuestIDPrefix + uuid.NewString()
}
