package randx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserNickname(t *testing.T) {
	name, err := UserNickname()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(name, "User_"))
	assert.Len(t, name, len("User_")+6)
	for _, c := range strings.TrimPrefix(name, "User_") {
		assert.True(t, strings.ContainsRune(Base62Chars, c))
	}
}

func TestColorComesFromPalette(t *testing.T) {
	for range 20 {
		assert.Contains(t, Palette, Color())
	}
}

func TestGuestIDIsUnique(t *testing.T) {
	a, b := GuestID(), GuestID()

	assert.True(t, strings.HasPrefix(a, GuestIDPrefix))
	assert.NotEqual(t, a, b)
}
